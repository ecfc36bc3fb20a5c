package engine

import (
	"context"
	"net/http"
	"time"

	jmes "github.com/jmespath/go-jmespath"
)

type Health struct {
	Status       string     `json:"status"`
	APIURL       string     `json:"api_url"`
	ResponseMS   int64      `json:"response_time_ms,omitempty"`
	TokenCached  bool       `json:"token_cached"`
	TokenExpires *time.Time `json:"token_expires,omitempty"`
	Version      string     `json:"engine_version,omitempty"`
	Error        string     `json:"error,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Healthy reports whether the last check reached the engine.
func (h Health) Healthy() bool { return h.Status == "healthy" }

// Health checks the engine root endpoint. It never returns an error; failures
// are reported in the result.
func (c *Client) Health(ctx context.Context) Health {
	h := Health{APIURL: c.baseURL}
	start := time.Now()
	doc, err := c.Call(ctx, http.MethodGet, "/", nil)
	h.Timestamp = time.Now().UTC()
	if err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
		return h
	}
	h.Status = "healthy"
	h.ResponseMS = time.Since(start).Milliseconds()
	if cached, exp := c.tokens.Status(); cached {
		h.TokenCached = true
		h.TokenExpires = &exp
	}
	h.Version = "unknown"
	if v, _ := jmes.Search("data.api_version", doc); v != nil {
		if s, ok := v.(string); ok && s != "" {
			h.Version = s
		}
	}
	return h
}
