// Package stats summarizes dialogd's Prometheus metrics into a compact
// snapshot and derives rates between two snapshots.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metric names summarized by Gather.
const (
	metricTurns          = "dialogd_turns_total"
	metricTurnDuration   = "dialogd_turn_duration_seconds"
	metricDegraded       = "dialogd_turns_degraded_total"
	metricLoop           = "dialogd_loop_transitions_total"
	metricSessionsActive = "dialogd_sessions_active"
	metricFailClosed     = "dialogd_detector_fail_closed_total"
	metricBankTimeouts   = "dialogd_detector_bank_timeouts_total"
	metricTierResults    = "dialogd_memory_tier_results_total"
)

// Bucket is one cumulative histogram bucket.
type Bucket struct {
	UpperBound float64 `json:"le"`
	Count      uint64  `json:"count"`
}

// Histogram is a cumulative histogram. Buckets are sorted by UpperBound
// and exclude +Inf.
type Histogram struct {
	Count   uint64   `json:"count"`
	Sum     float64  `json:"sum"`
	Buckets []Bucket `json:"buckets"`
}

// Stats is a point-in-time summary of the counters a dashboard needs.
type Stats struct {
	At              time.Time          `json:"at"`
	Turns           float64            `json:"turns"`
	TurnsByKind     map[string]float64 `json:"turns_by_kind"`
	Degraded        float64            `json:"degraded"`
	FailClosed      float64            `json:"fail_closed"`
	BankTimeouts    float64            `json:"bank_timeouts"`
	TierTimeouts    float64            `json:"tier_timeouts"`
	SessionsActive  float64            `json:"sessions_active"`
	LoopTransitions map[string]float64 `json:"loop_transitions"`
	TurnLatency     Histogram          `json:"turn_latency"`
}

// Gather summarizes everything g exposes. Missing metrics read as zero.
func Gather(g prometheus.Gatherer, now time.Time) (Stats, error) {
	families, err := g.Gather()
	if err != nil {
		return Stats{}, err
	}
	return Summarize(families, now), nil
}

// Summarize folds metric families into Stats.
func Summarize(families []*dto.MetricFamily, now time.Time) Stats {
	s := Stats{
		At:              now,
		TurnsByKind:     map[string]float64{},
		LoopTransitions: map[string]float64{},
	}
	for _, mf := range families {
		switch mf.GetName() {
		case metricTurns:
			for _, m := range mf.GetMetric() {
				v := m.GetCounter().GetValue()
				s.Turns += v
				s.TurnsByKind[label(m, "kind")] += v
			}
		case metricDegraded:
			s.Degraded = sumCounters(mf)
		case metricFailClosed:
			s.FailClosed = sumCounters(mf)
		case metricBankTimeouts:
			s.BankTimeouts = sumCounters(mf)
		case metricTierResults:
			for _, m := range mf.GetMetric() {
				if label(m, "status") == "timeout" {
					s.TierTimeouts += m.GetCounter().GetValue()
				}
			}
		case metricSessionsActive:
			for _, m := range mf.GetMetric() {
				s.SessionsActive += m.GetGauge().GetValue()
			}
		case metricLoop:
			for _, m := range mf.GetMetric() {
				s.LoopTransitions[label(m, "action")] += m.GetCounter().GetValue()
			}
		case metricTurnDuration:
			for _, m := range mf.GetMetric() {
				s.TurnLatency = mergeHistogram(s.TurnLatency, m.GetHistogram())
			}
		}
	}
	return s
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func sumCounters(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func mergeHistogram(into Histogram, h *dto.Histogram) Histogram {
	if h == nil {
		return into
	}
	into.Count += h.GetSampleCount()
	into.Sum += h.GetSampleSum()
	byBound := make(map[float64]uint64, len(into.Buckets))
	for _, b := range into.Buckets {
		byBound[b.UpperBound] = b.Count
	}
	for _, b := range h.GetBucket() {
		if math.IsInf(b.GetUpperBound(), 1) {
			continue
		}
		byBound[b.GetUpperBound()] += b.GetCumulativeCount()
	}
	into.Buckets = into.Buckets[:0]
	for ub, c := range byBound {
		into.Buckets = append(into.Buckets, Bucket{UpperBound: ub, Count: c})
	}
	sort.Slice(into.Buckets, func(i, j int) bool { return into.Buckets[i].UpperBound < into.Buckets[j].UpperBound })
	return into
}

// Sub returns the per-bucket difference h - prev. A counter reset makes the
// result equal to h.
func (h Histogram) Sub(prev Histogram) Histogram {
	if h.Count < prev.Count {
		return h
	}
	out := Histogram{Count: h.Count - prev.Count, Sum: h.Sum - prev.Sum}
	old := make(map[float64]uint64, len(prev.Buckets))
	for _, b := range prev.Buckets {
		old[b.UpperBound] = b.Count
	}
	for _, b := range h.Buckets {
		c := b.Count
		if o := old[b.UpperBound]; o <= c {
			c -= o
		}
		out.Buckets = append(out.Buckets, Bucket{UpperBound: b.UpperBound, Count: c})
	}
	return out
}

// Quantile estimates the q-th quantile by linear interpolation within the
// bucket that holds it, the way PromQL's histogram_quantile does.
// Observations above the highest bound report that bound.
func (h Histogram) Quantile(q float64) float64 {
	if h.Count == 0 || len(h.Buckets) == 0 || q < 0 || q > 1 {
		return 0
	}
	rank := q * float64(h.Count)
	var lowerBound float64
	var lowerCount uint64
	for _, b := range h.Buckets {
		if float64(b.Count) >= rank {
			inBucket := float64(b.Count - lowerCount)
			if inBucket == 0 {
				return b.UpperBound
			}
			return lowerBound + (b.UpperBound-lowerBound)*(rank-float64(lowerCount))/inBucket
		}
		lowerBound, lowerCount = b.UpperBound, b.Count
	}
	return h.Buckets[len(h.Buckets)-1].UpperBound
}

// Rates are per-minute deltas between two Stats.
type Rates struct {
	Interval       time.Duration
	TurnsPerMin    float64
	BypassPerMin   float64
	DegradedPerMin float64
	FailClosed     float64
	Timeouts       float64
	SessionsActive float64
	Converged      float64
	LatencyP50     float64
	LatencyP95     float64
}

// Between derives rates from prev to cur. Without an earlier sample only
// the gauges and lifetime latency quantiles are set.
func Between(prev, cur Stats) Rates {
	r := Rates{SessionsActive: cur.SessionsActive}
	if prev.At.IsZero() || !cur.At.After(prev.At) {
		r.LatencyP50 = cur.TurnLatency.Quantile(0.5)
		r.LatencyP95 = cur.TurnLatency.Quantile(0.95)
		return r
	}
	r.Interval = cur.At.Sub(prev.At)
	perMin := func(a, b float64) float64 {
		d := b - a
		if d < 0 {
			d = b
		}
		return d / r.Interval.Minutes()
	}
	delta := func(a, b float64) float64 {
		if b < a {
			return b
		}
		return b - a
	}
	r.TurnsPerMin = perMin(prev.Turns, cur.Turns)
	r.BypassPerMin = perMin(prev.TurnsByKind[kindBypass], cur.TurnsByKind[kindBypass])
	r.DegradedPerMin = perMin(prev.Degraded, cur.Degraded)
	r.FailClosed = delta(prev.FailClosed, cur.FailClosed)
	r.Timeouts = delta(prev.BankTimeouts+prev.TierTimeouts, cur.BankTimeouts+cur.TierTimeouts)
	r.Converged = delta(prev.LoopTransitions[actionConverged], cur.LoopTransitions[actionConverged])

	window := cur.TurnLatency.Sub(prev.TurnLatency)
	r.LatencyP50 = window.Quantile(0.5)
	r.LatencyP95 = window.Quantile(0.95)
	return r
}

// Label values read by Between. They mirror arbitration.KindBypass and
// loop.ActionConverged without importing the pipeline.
const (
	kindBypass      = "bypass-to-resource"
	actionConverged = "converged"
)
