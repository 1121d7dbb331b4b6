package detector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultBudget is the wall-clock budget shared by every detector in a run.
const DefaultBudget = 100 * time.Millisecond

var tracer = otel.Tracer("dialogd/detector")

// Failure records a detector that produced no usable report.
type Failure struct {
	Detector ID     `json:"detector"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// Result is the outcome of one bank run.
type Result struct {
	// Claims are sorted by tier, then confidence, then precedence.
	Claims   []Claim   `json:"claims"`
	Failures []Failure `json:"failures,omitempty"`
	TimedOut bool      `json:"timed_out"`
	// FailedClosed is set when an ambiguous-safety claim was synthesized.
	FailedClosed bool          `json:"failed_closed"`
	Duration     time.Duration `json:"duration"`
}

// Bank runs detectors concurrently under a shared budget.
type Bank struct {
	detectors []Detector
	budget    time.Duration
	metrics   *Metrics
	logger    *zap.Logger
}

// BankOption configures a Bank.
type BankOption func(*Bank)

// WithBudget overrides DefaultBudget.
func WithBudget(d time.Duration) BankOption {
	return func(b *Bank) {
		if d > 0 {
			b.budget = d
		}
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) BankOption {
	return func(b *Bank) { b.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) BankOption {
	return func(b *Bank) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBank creates a bank over the given detectors.
func NewBank(detectors []Detector, opts ...BankOption) *Bank {
	b := &Bank{
		detectors: detectors,
		budget:    DefaultBudget,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Budget returns the bank's run budget.
func (b *Bank) Budget() time.Duration { return b.budget }

type report struct {
	id    ID
	claim *Claim
	err   error
	cause string
}

// Run executes every detector concurrently and returns once all have
// reported or the budget expires. Detectors that are still running when the
// budget expires are abandoned; their results are discarded.
//
// Run never returns an error. A CatastrophicGuard that fails, panics, times
// out or is not registered yields a synthesized P1 ambiguous-safety claim.
func (b *Bank) Run(ctx context.Context, in Input) Result {
	ctx, span := tracer.Start(ctx, "detector.Bank.Run")
	defer span.End()

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, b.budget)
	defer cancel()

	// Buffered so abandoned detectors never block on send.
	reports := make(chan report, len(b.detectors))
	for _, d := range b.detectors {
		go func(d Detector) {
			reports <- b.invoke(runCtx, d, in)
		}(d)
	}

	var (
		res      Result
		reported = make(map[ID]bool, len(b.detectors))
		guardOK  bool
		hasGuard bool
	)
	for _, d := range b.detectors {
		if d.ID() == CatastrophicGuardID {
			hasGuard = true
		}
	}

	pending := len(b.detectors)
collect:
	for pending > 0 {
		select {
		case r := <-reports:
			pending--
			reported[r.id] = true
			if r.err != nil {
				if r.cause == "timeout" {
					res.TimedOut = true
				}
				res.Failures = append(res.Failures, Failure{Detector: r.id, Reason: r.cause, Err: r.err})
				b.metrics.recordFailure(r.id, r.cause)
				b.logger.Warn("detector failed",
					zap.String("detector", string(r.id)),
					zap.String("reason", r.cause),
					zap.Error(r.err))
				continue
			}
			if r.id == CatastrophicGuardID {
				guardOK = true
			}
			if r.claim != nil {
				res.Claims = append(res.Claims, *r.claim)
				b.metrics.recordClaim(*r.claim)
			}
		case <-runCtx.Done():
			res.TimedOut = true
			break collect
		}
	}

	if res.TimedOut {
		for _, d := range b.detectors {
			if reported[d.ID()] {
				continue
			}
			res.Failures = append(res.Failures, Failure{Detector: d.ID(), Reason: "timeout", Err: ErrBankTimeout})
			b.metrics.recordFailure(d.ID(), "timeout")
		}
		b.logger.Warn("detector bank budget exceeded",
			zap.Duration("budget", b.budget),
			zap.Int("pending", pending))
	}

	if !guardOK {
		reason := "guard did not report"
		if !hasGuard {
			reason = ErrGuardMissing.Error()
		}
		for _, f := range res.Failures {
			if f.Detector == CatastrophicGuardID {
				reason = fmt.Sprintf("guard %s: %v", f.Reason, f.Err)
				break
			}
		}
		res.Claims = append(res.Claims, ambiguousSafety(reason))
		res.FailedClosed = true
		b.logger.Error("catastrophic guard unavailable, failing closed", zap.String("reason", reason))
	}

	SortClaims(res.Claims)
	res.Duration = time.Since(start)
	b.metrics.recordRun(res.Duration.Seconds(), res.TimedOut, res.FailedClosed)

	span.SetAttributes(
		attribute.Int("claims.count", len(res.Claims)),
		attribute.Int("failures.count", len(res.Failures)),
		attribute.Bool("bank.timed_out", res.TimedOut),
		attribute.Bool("bank.failed_closed", res.FailedClosed),
	)
	return res
}

// invoke runs one detector, converting panics and malformed claims into
// failures.
func (b *Bank) invoke(ctx context.Context, d Detector, in Input) (r report) {
	r.id = d.ID()
	defer func() {
		if p := recover(); p != nil {
			r.claim = nil
			r.err = fmt.Errorf("%w: panic: %v", ErrDetectorFailure, p)
			r.cause = "panic"
		}
	}()

	claim, err := d.Detect(ctx, in)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			r.cause = "timeout"
			r.err = fmt.Errorf("%w: %s: %w", ErrBankTimeout, d.ID(), err)
			return r
		}
		r.cause = "error"
		r.err = fmt.Errorf("%w: %s: %w", ErrDetectorFailure, d.ID(), err)
		return r
	}
	if claim == nil {
		return r
	}
	if claim.Hint == nil {
		r.cause = "invalid"
		r.err = fmt.Errorf("%w: %s: claim without hint", ErrDetectorFailure, d.ID())
		return r
	}

	c := *claim
	c.Source = d.ID()
	if !c.Tier.Valid() {
		c.Tier = d.Tier()
	}
	c.Confidence = clamp01(c.Confidence)
	r.claim = &c
	return r
}

func ambiguousSafety(reason string) Claim {
	return Claim{
		Source:     CatastrophicGuardID,
		Tier:       P1,
		Confidence: 1.0,
		Hint:       AmbiguousSafetyHint{Reason: reason},
		Rationale:  "safety check unavailable: " + reason,
	}
}

// SortClaims orders claims by tier, then confidence descending, then
// detector precedence. The first element is the arbitration winner.
func SortClaims(claims []Claim) {
	sort.SliceStable(claims, func(i, j int) bool {
		a, b := claims[i], claims[j]
		if c := CompareTiers(a.Tier, b.Tier); c != 0 {
			return c < 0
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return Precedence(a.Source) < Precedence(b.Source)
	})
}

// DefaultDetectors returns the standard six-detector set.
func DefaultDetectors(negationWindow int, loopThreshold float64, loopThresholds map[string]float64) []Detector {
	return []Detector{
		NewCatastrophicGuard(negationWindow),
		NewBoundary(),
		NewUrgency(),
		NewLoopingTrigger(loopThreshold, parseThresholds(loopThresholds)),
		NewElementalResonance(),
		NewContemplativeSpace(),
	}
}
