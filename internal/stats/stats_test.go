package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	reg        *prometheus.Registry
	turns      *prometheus.CounterVec
	duration   prometheus.Histogram
	degraded   *prometheus.CounterVec
	loop       *prometheus.CounterVec
	sessions   prometheus.Gauge
	tiers      *prometheus.CounterVec
	failClosed prometheus.Counter
}

func newFixture() *fixture {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &fixture{
		reg:        reg,
		turns:      f.NewCounterVec(prometheus.CounterOpts{Name: metricTurns, Help: "x"}, []string{"kind", "tier"}),
		duration:   f.NewHistogram(prometheus.HistogramOpts{Name: metricTurnDuration, Help: "x", Buckets: []float64{0.1, 0.2, 0.5, 1}}),
		degraded:   f.NewCounterVec(prometheus.CounterOpts{Name: metricDegraded, Help: "x"}, []string{"reason"}),
		loop:       f.NewCounterVec(prometheus.CounterOpts{Name: metricLoop, Help: "x"}, []string{"action"}),
		sessions:   f.NewGauge(prometheus.GaugeOpts{Name: metricSessionsActive, Help: "x"}),
		tiers:      f.NewCounterVec(prometheus.CounterOpts{Name: metricTierResults, Help: "x"}, []string{"tier", "status"}),
		failClosed: f.NewCounter(prometheus.CounterOpts{Name: metricFailClosed, Help: "x"}),
	}
}

func TestGather(t *testing.T) {
	f := newFixture()
	f.turns.WithLabelValues("bypass-to-resource", "P0").Add(2)
	f.turns.WithLabelValues("pass-through", "none").Add(5)
	f.degraded.WithLabelValues("panic").Inc()
	f.loop.WithLabelValues("converged").Add(3)
	f.sessions.Set(4)
	f.tiers.WithLabelValues("episodic", "timeout").Add(2)
	f.tiers.WithLabelValues("profile", "ok").Add(9)
	f.failClosed.Inc()
	for _, v := range []float64{0.05, 0.15, 0.15, 0.4, 2} {
		f.duration.Observe(v)
	}

	now := time.Unix(1_700_000_000, 0)
	s, err := Gather(f.reg, now)
	require.NoError(t, err)

	assert.Equal(t, now, s.At)
	assert.Equal(t, 7.0, s.Turns)
	assert.Equal(t, 2.0, s.TurnsByKind["bypass-to-resource"])
	assert.Equal(t, 1.0, s.Degraded)
	assert.Equal(t, 3.0, s.LoopTransitions["converged"])
	assert.Equal(t, 4.0, s.SessionsActive)
	assert.Equal(t, 2.0, s.TierTimeouts)
	assert.Equal(t, 1.0, s.FailClosed)
	assert.Equal(t, uint64(5), s.TurnLatency.Count)
	assert.Equal(t, []Bucket{{0.1, 1}, {0.2, 3}, {0.5, 4}, {1, 4}}, s.TurnLatency.Buckets)
}

func TestGatherEmpty(t *testing.T) {
	s, err := Gather(prometheus.NewRegistry(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, s.Turns)
	assert.Zero(t, s.TurnLatency.Quantile(0.95))
}

func TestQuantile(t *testing.T) {
	h := Histogram{Count: 10, Buckets: []Bucket{{0.1, 5}, {0.2, 9}, {1, 10}}}

	assert.InDelta(t, 0.1, h.Quantile(0.5), 1e-9)
	assert.InDelta(t, 0.6, h.Quantile(0.95), 1e-9)
	assert.InDelta(t, 1.0, h.Quantile(1), 1e-9)
	assert.Zero(t, Histogram{}.Quantile(0.5))
	assert.Zero(t, h.Quantile(2))

	over := Histogram{Count: 4, Buckets: []Bucket{{0.1, 1}}}
	assert.Equal(t, 0.1, over.Quantile(0.95), "observations beyond the top bucket report its bound")
}

func TestHistogramSub(t *testing.T) {
	prev := Histogram{Count: 4, Sum: 1, Buckets: []Bucket{{0.1, 2}, {1, 4}}}
	cur := Histogram{Count: 10, Sum: 3, Buckets: []Bucket{{0.1, 3}, {1, 10}}}

	d := cur.Sub(prev)
	assert.Equal(t, uint64(6), d.Count)
	assert.Equal(t, []Bucket{{0.1, 1}, {1, 6}}, d.Buckets)

	assert.Equal(t, prev, prev.Sub(cur), "reset returns the newer histogram")
}

func TestBetween(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	prev := Stats{
		At:              t0,
		Turns:           10,
		TurnsByKind:     map[string]float64{"bypass-to-resource": 1},
		Degraded:        1,
		LoopTransitions: map[string]float64{"converged": 2},
		TurnLatency:     Histogram{Count: 10, Buckets: []Bucket{{0.1, 10}, {1, 10}}},
	}
	cur := Stats{
		At:              t0.Add(30 * time.Second),
		Turns:           40,
		TurnsByKind:     map[string]float64{"bypass-to-resource": 2},
		Degraded:        1,
		FailClosed:      1,
		BankTimeouts:    2,
		SessionsActive:  3,
		LoopTransitions: map[string]float64{"converged": 5},
		TurnLatency:     Histogram{Count: 40, Buckets: []Bucket{{0.1, 10}, {1, 40}}},
	}

	r := Between(prev, cur)
	assert.Equal(t, 30*time.Second, r.Interval)
	assert.InDelta(t, 60, r.TurnsPerMin, 1e-9)
	assert.InDelta(t, 2, r.BypassPerMin, 1e-9)
	assert.Zero(t, r.DegradedPerMin)
	assert.Equal(t, 1.0, r.FailClosed)
	assert.Equal(t, 2.0, r.Timeouts)
	assert.Equal(t, 3.0, r.Converged)
	assert.Equal(t, 3.0, r.SessionsActive)
	assert.Greater(t, r.LatencyP50, 0.1, "window excludes the fast turns before prev")

	first := Between(Stats{}, cur)
	assert.Zero(t, first.TurnsPerMin)
	assert.Equal(t, 3.0, first.SessionsActive)
}

func TestBetweenCounterReset(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	r := Between(Stats{At: t0, Turns: 100}, Stats{At: t0.Add(time.Minute), Turns: 5})
	assert.InDelta(t, 5, r.TurnsPerMin, 1e-9)
}
