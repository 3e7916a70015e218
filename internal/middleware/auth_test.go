// AngelaMos | 2026
// auth_test.go

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/imagegate/internal/core"
)

type stubVerifier struct {
	claims *AccessTokenClaims
	err    error
}

func (s stubVerifier) VerifyAccessToken(context.Context, string) (*AccessTokenClaims, error) {
	return s.claims, s.err
}

func echoIdentity(w http.ResponseWriter, r *http.Request) {
	core.OK(w, map[string]string{
		"account_id": GetAccountID(r.Context()),
		"session_id": GetSessionID(r.Context()),
	})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) core.Response {
	t.Helper()
	var resp core.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestAuthenticatorBindsIdentity(t *testing.T) {
	h := Authenticator(stubVerifier{
		claims: &AccessTokenClaims{AccountID: "acct-1", SessionID: "sid-1"},
	})(http.HandlerFunc(echoIdentity))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "acct-1", data["account_id"])
	assert.Equal(t, "sid-1", data["session_id"])
}

func TestAuthenticatorRejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
		code   string
	}{
		{"missing header", "", nil, "UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", nil, "UNAUTHORIZED"},
		{"expired", "Bearer abc", core.ErrTokenExpired, "TOKEN_EXPIRED"},
		{"revoked", "Bearer abc", core.ErrTokenRevoked, "TOKEN_REVOKED"},
		{"invalid", "Bearer abc", core.ErrTokenInvalid, "TOKEN_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Authenticator(stubVerifier{err: tt.err})(http.HandlerFunc(echoIdentity))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			resp := decodeBody(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestRequireAdminToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		header     string
		want       int
	}{
		{"disabled", "", "Bearer anything", http.StatusForbidden},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"wrong", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"right", "s3cret", "Bearer s3cret", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireAdminToken(tt.configured)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestKeyByAccountFallsBackToIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/history/42", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "ratelimit:ip:10.0.0.1", KeyByAccount(req))

	ctx := WithIdentity(req.Context(), &AccessTokenClaims{AccountID: "a1", SessionID: "s1"})
	req = req.WithContext(ctx)
	assert.Equal(t, "ratelimit:account:a1:endpoint:/v1/history/{id}", KeyByAccountAndEndpoint(req))
}
