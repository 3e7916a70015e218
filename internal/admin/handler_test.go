// AngelaMos | 2026
// handler_test.go

package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/imagegate/internal/account"
	"github.com/carterperez-dev/templates/imagegate/internal/checkout"
	"github.com/carterperez-dev/templates/imagegate/internal/core"
	"github.com/carterperez-dev/templates/imagegate/internal/middleware"
	"github.com/carterperez-dev/templates/imagegate/internal/testutil"
	"github.com/carterperez-dev/templates/imagegate/internal/usage"
)

type fixedSessions int

func (n fixedSessions) Count(context.Context) (int, error) { return int(n), nil }

type countingSweeper struct{ calls int }

func (s *countingSweeper) SweepOnce(context.Context) int {
	s.calls++
	return 2
}

func newRouter(t *testing.T, sweeper Sweeper) http.Handler {
	t.Helper()

	db := testutil.NewDB(t)
	logger := slog.New(slog.DiscardHandler)
	accounts := account.NewService(db.DB, logger)
	ledger := usage.NewService(db.DB)

	a, err := accounts.Signup(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.NoError(t, accounts.MarkPaid(context.Background(), a.ID))
	_, err = ledger.Append(context.Background(), a.ID, "cat", "")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := core.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewHandler(HandlerConfig{
		DBStats:    db.Stats,
		DBPing:     db.Ping,
		RedisStats: rdb.PoolStats,
		RedisPing:  rdb.Ping,
		Accounts:   accounts,
		Usage:      ledger,
		Checkouts:  checkout.NewService(db.DB, accounts, nil, checkout.Settings{}, logger),
		Sessions:   fixedSessions(3),
		Sweeper:    sweeper,
	})

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		h.RegisterRoutes(r, middleware.RequireAdminToken("s3cret"))
	})
	return r
}

func get(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAdminRequiresToken(t *testing.T) {
	r := newRouter(t, nil)

	assert.Equal(t, http.StatusUnauthorized, get(r, http.MethodGet, "/v1/admin/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, http.MethodGet, "/v1/admin/stats", "wrong").Code)
}

func TestAdminDomainStats(t *testing.T) {
	r := newRouter(t, nil)

	rec := get(r, http.MethodGet, "/v1/admin/stats/domain", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data DomainStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 1, env.Data.Accounts)
	assert.Equal(t, 1, env.Data.PaidAccounts)
	assert.Equal(t, 1, env.Data.UsageRecords)
	assert.Equal(t, 3, env.Data.ActiveSessions)
	assert.Empty(t, env.Data.Checkouts)

	rec = get(r, http.MethodGet, "/v1/admin/stats", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)

	var system struct {
		Data SystemStatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &system))
	assert.True(t, system.Data.Database.Healthy)
	assert.True(t, system.Data.Redis.Healthy)
	assert.NotNil(t, system.Data.Redis.Stats)
}

func TestAdminSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	r := newRouter(t, sweeper)

	rec := get(r, http.MethodPost, "/v1/admin/checkouts/sweep", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sweeper.calls)
	assert.JSONEq(t, `{"success":true,"data":{"canceled":2}}`, rec.Body.String())
}
