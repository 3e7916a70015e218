// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadiness(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("refused") })

	t.Run("all healthy", func(t *testing.T) {
		h := NewHandler(
			Dependency{Name: "database", Checker: ok},
			Dependency{Name: "redis", Checker: ok},
		)
		rec := serve(h, "/readyz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("one degraded", func(t *testing.T) {
		h := NewHandler(
			Dependency{Name: "database", Checker: ok},
			Dependency{Name: "storage", Checker: down},
		)
		rec := serve(h, "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.True(t, resp.Checks[0].Healthy)
		assert.False(t, resp.Checks[1].Healthy)
		assert.Equal(t, "storage", resp.Checks[1].Name)
	})

	t.Run("missing checker", func(t *testing.T) {
		rec := serve(NewHandler(Dependency{Name: "redis"}), "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestShutdownFailsProbes(t *testing.T) {
	h := NewHandler()
	assert.Equal(t, http.StatusOK, serve(h, "/livez").Code)

	h.SetShutdown(true)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "/livez").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "/readyz").Code)
}

func TestNotReady(t *testing.T) {
	h := NewHandler()
	h.SetReady(false)

	rec := serve(h, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, http.StatusOK, serve(h, "/livez").Code)

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(h, "/readyz").Code)
}
