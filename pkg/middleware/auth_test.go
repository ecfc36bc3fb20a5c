package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type authorizerFunc func(subject, role, method, path string) bool

func (f authorizerFunc) Allow(_ context.Context, subject, role, method, path string) (bool, error) {
	return f(subject, role, method, path), nil
}

var superAdminOnly = authorizerFunc(func(_, role, _, _ string) bool { return role == "super_admin" })

type testKeys struct {
	priv jwk.Key
	set  jwk.Set
}

func newTestKeys(t *testing.T) testKeys {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, "k1"))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256))
	pub, err := priv.PublicKey()
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "k1"))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	return testKeys{priv: priv, set: set}
}

func (k testKeys) token(t *testing.T, aud, role string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer("https://idp.example").
		Audience([]string{aud}).
		Subject("alice").
		Expiration(exp).
		Claim("role", role).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, k.priv))
	require.NoError(t, err)
	return string(signed)
}

func protected(t *testing.T, cfg AuthConfig, keys KeySet) (http.Handler, *Principal) {
	seen := &Principal{}
	h := AdminAuth(cfg, keys, superAdminOnly, zaptest.NewLogger(t).Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		require.True(t, ok)
		*seen = p
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, seen
}

func TestAdminAuth_Bearer(t *testing.T) {
	keys := newTestKeys(t)
	cfg := AuthConfig{Env: "prod", Issuer: "https://idp.example", Audience: "zienshield-admin"}
	h, seen := protected(t, cfg, StaticKeySet{Set: keys.set})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid super admin", "Bearer " + keys.token(t, "zienshield-admin", "super_admin", time.Now().Add(time.Hour)), http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong audience", "Bearer " + keys.token(t, "other", "super_admin", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", "Bearer " + keys.token(t, "zienshield-admin", "super_admin", time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"denied role", "Bearer " + keys.token(t, "zienshield-admin", "viewer", time.Now().Add(time.Hour)), http.StatusForbidden},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/sync/tenants", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want != http.StatusNoContent {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
	assert.Equal(t, Principal{Subject: "alice", Role: "super_admin"}, *seen)
}

func TestAdminAuth_DevHeaders(t *testing.T) {
	h, seen := protected(t, AuthConfig{Env: "dev"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/engine/groups", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, Principal{Subject: "dev", Role: "super_admin"}, *seen)

	req = httptest.NewRequest(http.MethodGet, "/admin/engine/groups", nil)
	req.Header.Set("X-Admin-Subject", "bob")
	req.Header.Set("X-Admin-Role", "viewer")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminAuth_ProdWithoutKeys(t *testing.T) {
	h, _ := protected(t, AuthConfig{Env: "prod"}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/engine/groups", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", got)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, got, 36)
}

func TestRecover(t *testing.T) {
	h := Recover(zaptest.NewLogger(t).Sugar())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
