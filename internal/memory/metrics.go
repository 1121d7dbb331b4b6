package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the compositor.
type Metrics struct {
	TierResultsTotal *prometheus.CounterVec
	ComposeBytes     prometheus.Histogram
	ComposeDuration  prometheus.Histogram
}

// NewMetrics creates and registers compositor metrics with reg. A nil
// registerer uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		TierResultsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialogd_memory_tier_results_total",
				Help: "Total number of memory tier queries by outcome",
			},
			[]string{"tier", "status"},
		),
		ComposeBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dialogd_memory_compose_bytes",
				Help:    "Serialized size of composed memory contexts",
				Buckets: prometheus.LinearBuckets(0, 256, 9), // 0 to 2KB
			},
		),
		ComposeDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dialogd_memory_compose_duration_seconds",
				Help:    "Wall-clock duration of a compose call",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 9), // 1ms to ~256ms
			},
		),
	}
}

func (m *Metrics) recordTier(t Tier, s Status) {
	if m == nil {
		return
	}
	m.TierResultsTotal.WithLabelValues(t.String(), string(s)).Inc()
}

func (m *Metrics) recordCompose(bytes int, seconds float64) {
	if m == nil {
		return
	}
	m.ComposeBytes.Observe(float64(bytes))
	m.ComposeDuration.Observe(seconds)
}
