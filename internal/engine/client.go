// Package engine talks to the security engine (Wazuh) REST API.
package engine

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jmes "github.com/jmespath/go-jmespath"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"zienshield/pkg/config"
)

type waitFunc func(time.Duration) <-chan time.Time

// Client performs authenticated calls against the engine with bounded retries.
type Client struct {
	baseURL  string
	username string
	password string
	attempts int

	http    *http.Client
	tokens  *TokenCache
	wait    waitFunc
	log     *zap.SugaredLogger
	metrics *Metrics
	cache   Cache
}

type Option func(*Client)

// WithHTTPClient replaces the default TLS-configured client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithWait replaces the timer used for the backoff between attempts.
func WithWait(w func(time.Duration) <-chan time.Time) Option {
	return func(c *Client) { c.wait = w }
}

func WithLogger(log *zap.SugaredLogger) Option { return func(c *Client) { c.log = log } }
func WithMetrics(m *Metrics) Option            { return func(c *Client) { c.metrics = m } }

// WithCache sets the listing cache used by ListGroups and ListAgents.
func WithCache(cache Cache) Option { return func(c *Client) { c.cache = cache } }

func New(cfg config.EngineConfig, opts ...Option) *Client {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	c := &Client{
		baseURL:  strings.TrimRight(cfg.APIURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		attempts: attempts,
		wait:     time.After,
		log:      zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if !cfg.SSLVerify {
			// self-signed engine certificates are the norm outside prod
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		c.http = &http.Client{Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(tr)}
	}
	if c.cache == nil {
		c.cache = NewMemoryCache()
	}
	c.tokens = NewTokenCache(AuthenticatorFunc(c.Authenticate))
	return c
}

// ClearTokenCache forces the next call to authenticate.
func (c *Client) ClearTokenCache() {
	c.log.Infow("engine token cache cleared")
	c.tokens.Clear()
}

// Authenticate exchanges the configured username/password for a bearer token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/security/user/authenticate", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.auth("error")
		return "", &AuthError{Cause: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.auth("error")
		return "", &AuthError{Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.auth("rejected")
		return "", &AuthError{Cause: newStatusError(resp.StatusCode, raw)}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.metrics.auth("malformed")
		return "", &AuthError{Cause: fmt.Errorf("decode authenticate response: %w", err)}
	}
	v, _ := jmes.Search("data.token", doc)
	token, _ := v.(string)
	if token == "" {
		c.metrics.auth("malformed")
		return "", &AuthError{Cause: errors.New("authenticate response has no data.token")}
	}
	c.metrics.auth("ok")
	c.log.Debugw("engine token issued", "ttl", TokenTTL)
	return token, nil
}

// Call sends method+endpoint with an optional JSON body, retrying failed attempts
// with a 2^attempt second backoff. The decoded JSON body of the first 2xx response
// is returned; after the last failed attempt a *ServiceError is returned.
func (c *Client) Call(ctx context.Context, method, endpoint string, body any) (any, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, endpoint, err)
		}
		payload = b
	}

	var last error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		out, err := c.do(ctx, method, endpoint, payload)
		if err == nil {
			return out, nil
		}
		last = err
		c.log.Warnw("engine call failed", "method", method, "endpoint", endpoint, "attempt", attempt, "attempts", c.attempts, "err", err)
		if attempt == c.attempts {
			break
		}
		c.metrics.retry()
		select {
		case <-ctx.Done():
			return nil, &ServiceError{Method: method, Endpoint: endpoint, Attempts: attempt, Last: ctx.Err()}
		case <-c.wait(time.Duration(1<<attempt) * time.Second):
		}
	}
	return nil, &ServiceError{Method: method, Endpoint: endpoint, Attempts: c.attempts, Last: last}
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (any, error) {
	cred, err := c.tokens.Credential(ctx)
	if err != nil {
		return nil, err
	}
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.request(method, endpoint, "error", start)
		return nil, err
	}
	defer resp.Body.Close()
	c.metrics.request(method, endpoint, fmt.Sprintf("%dxx", resp.StatusCode/100), start)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Clear()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp.StatusCode, raw)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}
	return out, nil
}

// affectedItems decodes data.affected_items of an engine response into []T.
// A response without the field yields an empty slice.
func affectedItems[T any](doc any) ([]T, error) {
	out := []T{}
	v, err := jmes.Search("data.affected_items", doc)
	if err != nil || v == nil {
		return out, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode affected_items: %w", err)
	}
	return out, nil
}
