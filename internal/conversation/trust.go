package conversation

import "math"

// DefaultTrustRate scales how far one turn moves the trust level.
const DefaultTrustRate = 0.1

// Trust signals derived from a turn's outcome.
const (
	SignalConverged    = 1.0
	SignalConfirmation = 0.5
	SignalNone         = 0.0
	SignalCorrection   = -0.25
	SignalBoundary     = -0.5
)

// UpdateTrust moves t toward 1 for positive signals and toward 0 for
// negative ones, proportionally to the remaining distance. The result stays
// in [0,1] for any s in [-1,1] and rate in [0,1].
func UpdateTrust(t, s, rate float64) float64 {
	if math.IsNaN(t) {
		t = InitialTrust
	}
	t = math.Max(0, math.Min(1, t))
	s = math.Max(-1, math.Min(1, s))
	rate = math.Max(0, math.Min(1, rate))

	switch {
	case s > 0:
		t += rate * s * (1 - t)
	case s < 0:
		t += rate * s * t
	}
	return math.Max(0, math.Min(1, t))
}
