package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the detector bank.
type Metrics struct {
	ClaimsTotal      *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
	FailClosedTotal  prometheus.Counter
	BankDuration     prometheus.Histogram
	BankTimeoutTotal prometheus.Counter
}

// NewMetrics creates and registers bank metrics with reg. A nil registerer
// uses prometheus.DefaultRegisterer.
//
// Metrics:
//   - dialogd_detector_claims_total{detector,tier}
//   - dialogd_detector_failures_total{detector,reason}
//   - dialogd_detector_fail_closed_total
//   - dialogd_detector_bank_duration_seconds
//   - dialogd_detector_bank_timeouts_total
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ClaimsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialogd_detector_claims_total",
				Help: "Total number of claims produced by detectors",
			},
			[]string{"detector", "tier"},
		),
		FailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialogd_detector_failures_total",
				Help: "Total number of detector failures by reason",
			},
			[]string{"detector", "reason"}, // "error", "panic", "timeout", "invalid"
		),
		FailClosedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dialogd_detector_fail_closed_total",
				Help: "Total number of synthesized ambiguous-safety claims",
			},
		),
		BankDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dialogd_detector_bank_duration_seconds",
				Help:    "Wall-clock duration of a detector bank run",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~256ms
			},
		),
		BankTimeoutTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dialogd_detector_bank_timeouts_total",
				Help: "Total number of bank runs that hit the budget",
			},
		),
	}
}

func (m *Metrics) recordClaim(c Claim) {
	if m == nil {
		return
	}
	m.ClaimsTotal.WithLabelValues(string(c.Source), c.Tier.String()).Inc()
}

func (m *Metrics) recordFailure(id ID, reason string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(string(id), reason).Inc()
}

func (m *Metrics) recordRun(seconds float64, timedOut, failClosed bool) {
	if m == nil {
		return
	}
	m.BankDuration.Observe(seconds)
	if timedOut {
		m.BankTimeoutTotal.Inc()
	}
	if failClosed {
		m.FailClosedTotal.Inc()
	}
}
