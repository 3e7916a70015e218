// AngelaMos | 2026
// server_test.go

package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/imagegate/internal/config"
)

type healthFlag struct{ down atomic.Bool }

func (f *healthFlag) SetShutdown(v bool) { f.down.Store(v) }

func TestRouterRecoversPanics(t *testing.T) {
	srv := New(Config{
		ServerConfig: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Logger:       slog.New(slog.DiscardHandler),
	})
	srv.Router().Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestShutdownMarksHealth(t *testing.T) {
	health := &healthFlag{}
	srv := New(Config{
		ServerConfig:  config.ServerConfig{Host: "127.0.0.1", Port: 0},
		HealthHandler: health,
		Logger:        slog.New(slog.DiscardHandler),
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, srv.Shutdown(ctx, 10*time.Millisecond))
	assert.True(t, health.down.Load())
}
