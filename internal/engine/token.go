package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenTTL is how long a freshly issued credential is trusted.
const TokenTTL = 15 * time.Minute

// Credential is a bearer token and the instant after which it must not be reused.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Authenticator obtains a new bearer token from the engine.
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context) (string, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context) (string, error) { return f(ctx) }

// TokenCache holds at most one credential. Concurrent misses share a single
// authentication call.
type TokenCache struct {
	auth Authenticator
	ttl  time.Duration
	now  func() time.Time

	mu   sync.RWMutex
	cred *Credential

	sf singleflight.Group
}

func NewTokenCache(auth Authenticator) *TokenCache {
	return &TokenCache{auth: auth, ttl: TokenTTL, now: time.Now}
}

// Credential returns the cached credential while it is valid, otherwise it
// authenticates once and caches the result. Failures clear the slot and are
// returned as *AuthError.
func (c *TokenCache) Credential(ctx context.Context) (Credential, error) {
	if cred, ok := c.cached(); ok {
		return cred, nil
	}

	// The refresh is shared, so one caller going away must not fail the others.
	authCtx := context.WithoutCancel(ctx)
	v, err, _ := c.sf.Do("credential", func() (interface{}, error) {
		// another refresh may have landed since the check above
		if cred, ok := c.cached(); ok {
			return &cred, nil
		}
		token, err := c.auth.Authenticate(authCtx)
		if err != nil {
			c.Clear()
			var ae *AuthError
			if errors.As(err, &ae) {
				return nil, err
			}
			return nil, &AuthError{Cause: err}
		}
		cred := &Credential{Token: token, ExpiresAt: c.now().Add(c.ttl)}
		c.mu.Lock()
		c.cred = cred
		c.mu.Unlock()
		return cred, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return *v.(*Credential), nil
}

func (c *TokenCache) cached() (Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred != nil && c.now().Before(c.cred.ExpiresAt) {
		return *c.cred, true
	}
	return Credential{}, false
}

// Clear drops the cached credential.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	c.cred = nil
	c.mu.Unlock()
}

// Status reports whether a credential is held and when it expires.
func (c *TokenCache) Status() (cached bool, expiresAt time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred == nil {
		return false, time.Time{}
	}
	return true, c.cred.ExpiresAt
}
