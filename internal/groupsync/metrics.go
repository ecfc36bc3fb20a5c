package groupsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments sync runs. A nil *Metrics records nothing.
type Metrics struct {
	Runs        *prometheus.CounterVec
	Tenants     *prometheus.CounterVec
	RunDuration prometheus.Histogram
	Pending     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zienshield_sync_runs_total",
			Help: "Group sync runs by result (ok, partial, aborted, skipped)",
		}, []string{"result"}),
		Tenants: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zienshield_sync_tenants_total",
			Help: "Tenants processed by outcome",
		}, []string{"outcome"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "zienshield_sync_run_duration_seconds",
			Help:    "Wall time of a full sync run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "zienshield_sync_pending_tenants",
			Help: "Unsynced tenants found at the start of the last run",
		}),
	}
}

func (m *Metrics) tenant(o Outcome) {
	if m != nil {
		m.Tenants.WithLabelValues(string(o)).Inc()
	}
}

func (m *Metrics) run(result string, seconds float64) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(result).Inc()
	if result != "skipped" {
		m.RunDuration.Observe(seconds)
	}
}

func (m *Metrics) pending(n int) {
	if m != nil {
		m.Pending.Set(float64(n))
	}
}
