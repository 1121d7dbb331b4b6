package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for turn processing.
type Metrics struct {
	TurnsTotal      *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
	DegradedTotal   *prometheus.CounterVec
	LoopTransitions *prometheus.CounterVec
}

// NewMetrics creates and registers turn metrics with reg. A nil registerer
// uses prometheus.DefaultRegisterer.
//
// Metrics:
//   - dialogd_turns_total{kind,tier}
//   - dialogd_turn_duration_seconds
//   - dialogd_turns_degraded_total{reason}
//   - dialogd_loop_transitions_total{action}
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialogd_turns_total",
				Help: "Total number of committed turns by directive kind and tier",
			},
			[]string{"kind", "tier"},
		),
		TurnDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dialogd_turn_duration_seconds",
				Help:    "Time spent planning one turn",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		DegradedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialogd_turns_degraded_total",
				Help: "Total number of turns answered with a degraded plan",
			},
			[]string{"reason"},
		),
		LoopTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialogd_loop_transitions_total",
				Help: "Total number of loop actions taken",
			},
			[]string{"action"},
		),
	}
}

func (m *Metrics) recordTurn(kind, tier string, seconds float64) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(kind, tier).Inc()
	m.TurnDuration.Observe(seconds)
}

func (m *Metrics) recordDegraded(reason string) {
	if m == nil {
		return
	}
	m.DegradedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordLoop(action string) {
	if m == nil || action == "" || action == "none" {
		return
	}
	m.LoopTransitions.WithLabelValues(action).Inc()
}
