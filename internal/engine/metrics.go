package engine

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments engine traffic. A nil *Metrics records nothing.
type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	Retries  prometheus.Counter
	Auth     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zienshield_engine_requests_total",
			Help: "Engine API requests by method, path and status class",
		}, []string{"method", "path", "status"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zienshield_engine_request_duration_seconds",
			Help:    "Engine API request latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "path"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "zienshield_engine_retries_total",
			Help: "Engine API attempts that were retried after a failure",
		}),
		Auth: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zienshield_engine_auth_total",
			Help: "Engine authentication calls by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) request(method, endpoint, status string, start time.Time) {
	if m == nil {
		return
	}
	path, _, _ := strings.Cut(endpoint, "?")
	m.Requests.WithLabelValues(method, path, status).Inc()
	m.Latency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
}

func (m *Metrics) retry() {
	if m != nil {
		m.Retries.Inc()
	}
}

func (m *Metrics) auth(result string) {
	if m != nil {
		m.Auth.WithLabelValues(result).Inc()
	}
}
