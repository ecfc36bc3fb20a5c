// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"zienshield/pkg/problems"
)

// KeySet yields the keys used to verify admin bearer tokens.
type KeySet interface {
	Keys(ctx context.Context) (jwk.Set, error)
}

// JWKSCache fetches a remote JWKS and keeps it for ttl.
type JWKSCache struct {
	url string
	ttl time.Duration

	mu      sync.RWMutex
	set     jwk.Set
	expires time.Time
}

func NewJWKSCache(url string, ttl time.Duration) *JWKSCache {
	return &JWKSCache{url: url, ttl: ttl}
}

func (c *JWKSCache) Keys(ctx context.Context) (jwk.Set, error) {
	c.mu.RLock()
	if c.set != nil && time.Now().Before(c.expires) {
		defer c.mu.RUnlock()
		return c.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set != nil && time.Now().Before(c.expires) {
		return c.set, nil
	}
	set, err := jwk.Fetch(ctx, c.url)
	if err != nil {
		return nil, err
	}
	c.set, c.expires = set, time.Now().Add(c.ttl)
	return set, nil
}

// StaticKeySet serves a fixed set.
type StaticKeySet struct{ Set jwk.Set }

func (s StaticKeySet) Keys(context.Context) (jwk.Set, error) { return s.Set, nil }

// Authorizer decides whether a principal may call method+path.
type Authorizer interface {
	Allow(ctx context.Context, subject, role, method, path string) (bool, error)
}

// Principal is the authenticated caller of an admin route.
type Principal struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
}

type ctxPrincipalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey{}).(Principal)
	return p, ok
}

type AuthConfig struct {
	Env      string
	Issuer   string
	Audience string
}

// AdminAuth authenticates the bearer token against keys and asks authz whether
// the caller may use the route. With no keys outside prod, the principal comes
// from X-Admin-Subject / X-Admin-Role.
func AdminAuth(cfg AuthConfig, keys KeySet, authz Authorizer, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			var p Principal
			if keys == nil {
				if cfg.Env == "prod" {
					problems.Write(w, http.StatusInternalServerError, "auth-not-configured", "Admin auth not configured", "ADMIN_JWKS_URL is required in prod")
					return
				}
				p = Principal{Subject: r.Header.Get("X-Admin-Subject"), Role: r.Header.Get("X-Admin-Role")}
				if p.Subject == "" {
					p.Subject = "dev"
				}
				if p.Role == "" {
					p.Role = "super_admin"
				}
			} else {
				hdr := r.Header.Get("Authorization")
				if !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
					problems.Write(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token", "")
					return
				}
				set, err := keys.Keys(r.Context())
				if err != nil {
					log.Errorw("jwks fetch", "err", err)
					problems.Write(w, http.StatusServiceUnavailable, "jwks-unavailable", "Signing keys unavailable", "")
					return
				}
				opts := []jwt.ParseOption{jwt.WithKeySet(set), jwt.WithValidate(true), jwt.WithAcceptableSkew(30 * time.Second)}
				if cfg.Issuer != "" {
					opts = append(opts, jwt.WithIssuer(cfg.Issuer))
				}
				if cfg.Audience != "" {
					opts = append(opts, jwt.WithAudience(cfg.Audience))
				}
				jt, err := jwt.Parse([]byte(strings.TrimSpace(hdr[len("Bearer "):])), opts...)
				if err != nil {
					problems.Write(w, http.StatusUnauthorized, "unauthorized", "Invalid token", err.Error())
					return
				}
				p.Subject = jt.Subject()
				if v, ok := jt.Get("role"); ok {
					p.Role, _ = v.(string)
				}
			}

			ok, err := authz.Allow(r.Context(), p.Subject, p.Role, r.Method, r.URL.Path)
			if err != nil {
				log.Errorw("admin policy evaluation", "err", err)
				problems.Write(w, http.StatusInternalServerError, "policy-error", "Authorization failed", "")
				return
			}
			if !ok {
				log.Warnw("admin request denied", "sub", p.Subject, "role", p.Role, "method", r.Method, "path", r.URL.Path)
				problems.Write(w, http.StatusForbidden, "forbidden", "Forbidden", "role "+p.Role+" may not "+r.Method+" "+r.URL.Path)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
