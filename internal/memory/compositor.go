package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// DefaultTierTimeout bounds each tier query.
	DefaultTierTimeout = 150 * time.Millisecond
	// DefaultSlack is added to the largest tier timeout for the overall bound.
	DefaultSlack = 25 * time.Millisecond
	// DefaultBudget caps the serialized context size in bytes.
	DefaultBudget = 2048
	// DefaultLimit caps entries requested per tier.
	DefaultLimit = 8
)

var tracer = otel.Tracer("dialogd/memory")

// Compositor composes a Context from tier stores.
type Compositor struct {
	stores       map[Tier]Store
	tierTimeouts map[Tier]time.Duration
	tierTimeout  time.Duration
	slack        time.Duration
	budget       int
	limit        int
	logger       *zap.Logger
	metrics      *Metrics
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithTierTimeout sets the default per-tier timeout.
func WithTierTimeout(d time.Duration) Option {
	return func(c *Compositor) {
		if d > 0 {
			c.tierTimeout = d
		}
	}
}

// WithTierTimeoutFor overrides the timeout for one tier.
func WithTierTimeoutFor(t Tier, d time.Duration) Option {
	return func(c *Compositor) {
		if d > 0 {
			c.tierTimeouts[t] = d
		}
	}
}

// WithSlack sets the margin between the largest tier timeout and the overall timeout.
func WithSlack(d time.Duration) Option {
	return func(c *Compositor) {
		if d >= 0 {
			c.slack = d
		}
	}
}

// WithBudget sets the byte budget.
func WithBudget(bytes int) Option {
	return func(c *Compositor) {
		if bytes > 0 {
			c.budget = bytes
		}
	}
}

// WithLimit sets the per-tier entry limit passed to stores.
func WithLimit(n int) Option {
	return func(c *Compositor) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Compositor) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Compositor) { c.metrics = m }
}

// NewCompositor creates a compositor over the given tier stores. Tiers with
// no store are reported as skipped.
func NewCompositor(stores map[Tier]Store, opts ...Option) *Compositor {
	c := &Compositor{
		stores:       make(map[Tier]Store, len(stores)),
		tierTimeouts: make(map[Tier]time.Duration),
		tierTimeout:  DefaultTierTimeout,
		slack:        DefaultSlack,
		budget:       DefaultBudget,
		limit:        DefaultLimit,
		logger:       zap.NewNop(),
	}
	for t, s := range stores {
		if s != nil {
			c.stores[t] = s
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compositor) timeoutFor(t Tier) time.Duration {
	if d, ok := c.tierTimeouts[t]; ok {
		return d
	}
	return c.tierTimeout
}

// OverallTimeout is the upper bound on a Compose call.
func (c *Compositor) OverallTimeout() time.Duration {
	longest := time.Duration(0)
	for t := range c.stores {
		longest = max(longest, c.timeoutFor(t))
	}
	return longest + c.slack
}

type tierResult struct {
	tier    Tier
	entries []Entry
	status  Status
	err     error
}

// Compose queries every configured tier concurrently and returns the merged,
// budgeted context. It never fails and returns within OverallTimeout.
func (c *Compositor) Compose(ctx context.Context, req Request) Context {
	ctx, span := tracer.Start(ctx, "memory.Compositor.Compose")
	defer span.End()

	start := time.Now()
	out := Empty()
	if len(c.stores) == 0 {
		return out
	}
	if req.Limit <= 0 || req.Limit > c.limit {
		req.Limit = c.limit
	}

	ctx, cancel := context.WithTimeout(ctx, c.OverallTimeout())
	defer cancel()

	results := make(chan tierResult, len(c.stores))
	for tier, store := range c.stores {
		go func(tier Tier, store Store) {
			results <- c.query(ctx, tier, store, req)
		}(tier, store)
	}

	collected := make(map[Tier]tierResult, len(c.stores))
collect:
	for len(collected) < len(c.stores) {
		select {
		case r := <-results:
			collected[r.tier] = r
		case <-ctx.Done():
			break collect
		}
	}

	for _, tier := range Tiers {
		if _, ok := c.stores[tier]; !ok {
			continue
		}
		r, ok := collected[tier]
		if !ok {
			r = tierResult{tier: tier, status: StatusTimeout, err: ErrTierTimeout}
		}
		out.Status[tier.String()] = r.status
		c.metrics.recordTier(tier, r.status)
		if r.err != nil {
			c.logger.Warn("memory tier unavailable",
				zap.String("tier", tier.String()),
				zap.String("status", string(r.status)),
				zap.Error(r.err))
		}
		collected[tier] = r
	}

	c.fill(&out, collected)

	c.metrics.recordCompose(out.Size, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("memory.size", out.Size),
		attribute.Int("memory.entries", out.Len()),
		attribute.Int("memory.truncated", out.Truncated),
	)
	return out
}

// query runs one tier under its own timeout. Results that arrive after the
// tier deadline are discarded.
func (c *Compositor) query(ctx context.Context, tier Tier, store Store, req Request) (r tierResult) {
	r.tier = tier
	tctx, cancel := context.WithTimeout(ctx, c.timeoutFor(tier))
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			r.entries = nil
			r.status = StatusError
			r.err = fmt.Errorf("%w: %s: panic: %v", ErrTierFailure, tier, p)
		}
	}()

	entries, err := store.Query(tctx, tier, req)
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
		r.status, r.err = StatusTimeout, fmt.Errorf("%w: %s: %w", ErrTierTimeout, tier, err)
	case err != nil:
		r.status, r.err = StatusError, fmt.Errorf("%w: %s: %w", ErrTierFailure, tier, err)
	case tctx.Err() != nil:
		r.status, r.err = StatusTimeout, fmt.Errorf("%w: %s: late result", ErrTierTimeout, tier)
	default:
		r.status, r.entries = StatusOK, entries
	}
	return r
}

// fill copies entries into out in tier priority order until the budget is
// spent. Entries that do not fit are skipped so smaller later ones can.
func (c *Compositor) fill(out *Context, results map[Tier]tierResult) {
	remaining := c.budget
	for _, tier := range Tiers {
		r := results[tier]
		if r.status != StatusOK {
			continue
		}
		dst := out.list(tier)
		for i, e := range r.entries {
			if i >= c.limit {
				out.Truncated += len(r.entries) - i
				break
			}
			size := entrySize(e)
			if size > remaining {
				out.Truncated++
				continue
			}
			*dst = append(*dst, e)
			remaining -= size
			out.Size += size
		}
	}
}

func entrySize(e Entry) int {
	b, err := json.Marshal(e)
	if err != nil {
		return len(e.Content)
	}
	return len(b)
}
