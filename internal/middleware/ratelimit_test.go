// AngelaMos | 2026
// ratelimit_test.go

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func featureLimited(t *testing.T, addr string) http.Handler {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	limiter := NewRateLimiter(rdb, RateLimitConfig{
		Limit:    PerMinute(2, 2),
		KeyFunc:  KeyByAccountAndEndpoint,
		FailOpen: true,
	})

	return limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
}

func postImage(h http.Handler, accountID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/images", nil)
	req = req.WithContext(WithIdentity(req.Context(), &AccessTokenClaims{
		AccountID: accountID,
		SessionID: "sid-" + accountID,
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterPerAccount(t *testing.T) {
	mr := miniredis.RunT(t)
	h := featureLimited(t, mr.Addr())

	for range 2 {
		assert.Equal(t, http.StatusCreated, postImage(h, "a1").Code)
	}

	rec := postImage(h, "a1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	resp := decodeBody(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RATE_LIMITED", resp.Error.Code)

	assert.Equal(t, http.StatusCreated, postImage(h, "a2").Code)
}

func TestRateLimiterFallsBackWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	h := featureLimited(t, addr)

	for range 2 {
		assert.Equal(t, http.StatusCreated, postImage(h, "a1").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, postImage(h, "a1").Code)
}
