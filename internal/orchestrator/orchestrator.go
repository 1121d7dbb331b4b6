package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/dialogd/internal/arbitration"
	"github.com/fyrsmithlabs/dialogd/internal/conversation"
	"github.com/fyrsmithlabs/dialogd/internal/crisis"
	"github.com/fyrsmithlabs/dialogd/internal/detector"
	"github.com/fyrsmithlabs/dialogd/internal/events"
	"github.com/fyrsmithlabs/dialogd/internal/logging"
	"github.com/fyrsmithlabs/dialogd/internal/loop"
	"github.com/fyrsmithlabs/dialogd/internal/memory"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

// Degrade reasons reported on TurnPlan.DegradedReason and in metrics.
const (
	ReasonPanic       = "panic"
	ReasonArbitration = "arbitration_invariant"
	ReasonInternal    = "internal"
)

// DefaultCrisisTimeout bounds crisis router lookups unless overridden.
const DefaultCrisisTimeout = 250 * time.Millisecond

var (
	// ErrMissingDependency is returned by New when a required component is nil.
	ErrMissingDependency = errors.New("missing orchestrator dependency")
)

// fault is an internal pipeline failure that degrades the turn.
type fault struct {
	reason string
	err    error
}

func (f *fault) Error() string { return f.reason + ": " + f.err.Error() }
func (f *fault) Unwrap() error { return f.err }

// Deps are the components an Orchestrator sequences.
type Deps struct {
	Sessions *conversation.Manager
	Bank     *detector.Bank
	Machine  *loop.Machine
	Memory   *memory.Compositor
	// Extractor defaults to the lexical extractor.
	Extractor signal.Extractor
	// Engine defaults to a fresh arbitration engine.
	Engine *arbitration.Engine
	// Crisis may be nil; bypass turns then always carry the fallback.
	Crisis crisis.Router
}

// TurnOptions carry per-turn caller settings.
type TurnOptions struct {
	// Deadline bounds the turn. Zero uses the orchestrator's turn timeout.
	Deadline time.Time
	// Region selects crisis resources. Empty uses the default region.
	Region string
	// TurnID makes retries idempotent: a turn whose ID matches the last
	// committed turn returns that turn's plan without reprocessing.
	TurnID string
}

// Orchestrator plans turns. It is safe for concurrent use; turns on one
// session are serialized.
type Orchestrator struct {
	sessions  *conversation.Manager
	extractor signal.Extractor
	bank      *detector.Bank
	engine    *arbitration.Engine
	machine   *loop.Machine
	memory    *memory.Compositor
	crisis    crisis.Router

	fallback    crisis.Resource
	region      string
	trustRate   float64
	turnTimeout time.Duration
	crisisWait  time.Duration

	reporter events.Reporter
	metrics  *Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithReporter sets where reportable events go.
func WithReporter(r events.Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracerProvider sets the provider for the turn span. It defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer("dialogd/orchestrator")
		}
	}
}

// WithFallback sets the resource used when the crisis router cannot answer.
func WithFallback(r crisis.Resource) Option {
	return func(o *Orchestrator) { o.fallback = r }
}

// WithDefaultRegion sets the crisis region used when a turn names none.
func WithDefaultRegion(region string) Option {
	return func(o *Orchestrator) {
		if region != "" {
			o.region = region
		}
	}
}

// WithTrustRate overrides conversation.DefaultTrustRate.
func WithTrustRate(rate float64) Option {
	return func(o *Orchestrator) {
		if rate > 0 && rate <= 1 {
			o.trustRate = rate
		}
	}
}

// WithTurnTimeout sets the deadline applied to turns that carry none.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.turnTimeout = d
		}
	}
}

// WithCrisisTimeout bounds the crisis router lookup. The bound is measured
// from the lookup itself, not the turn deadline.
func WithCrisisTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.crisisWait = d
		}
	}
}

// WithClock overrides time.Now for turn timestamps. Deadlines always use
// the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides the turn ID source.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newID = f
		}
	}
}

// New creates an orchestrator from deps.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	var missing []string
	if deps.Sessions == nil {
		missing = append(missing, "sessions")
	}
	if deps.Bank == nil {
		missing = append(missing, "detector bank")
	}
	if deps.Machine == nil {
		missing = append(missing, "loop machine")
	}
	if deps.Memory == nil {
		missing = append(missing, "memory compositor")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}

	o := &Orchestrator{
		sessions:    deps.Sessions,
		extractor:   deps.Extractor,
		bank:        deps.Bank,
		engine:      deps.Engine,
		machine:     deps.Machine,
		memory:      deps.Memory,
		crisis:      deps.Crisis,
		fallback:    crisis.DefaultFallback,
		region:      crisis.DefaultRegion,
		trustRate:   conversation.DefaultTrustRate,
		turnTimeout: 2 * time.Second,
		crisisWait:  DefaultCrisisTimeout,
		reporter:    events.Nop{},
		logger:      logging.Nop(),
		tracer:      otel.GetTracerProvider().Tracer("dialogd/orchestrator"),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.extractor == nil {
		o.extractor = signal.NewLexical()
	}
	if o.engine == nil {
		o.engine = arbitration.NewEngine(o.logger.Underlying())
	}
	return o, nil
}

// CreateSession starts a session and returns its ID.
func (o *Orchestrator) CreateSession() string {
	return o.sessions.Create().ID
}

// ExpireSession ends a session. An in-flight turn on it finishes but is
// not committed.
func (o *Orchestrator) ExpireSession(id string) error {
	return o.sessions.Expire(id)
}

// ProcessTurn plans one turn for a session and commits the resulting
// session state. The error is non-nil only for caller-side conditions: an
// unknown or expired session, or ctx ending before commit. A crisis bypass
// is committed even when ctx ends first. Internal faults yield a degraded
// plan and a nil error.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, input string, audio *signal.AudioFeatures, opts TurnOptions) (conversation.TurnPlan, error) {
	start := time.Now()

	deadline := opts.Deadline
	if deadline.IsZero() {
		deadline = start.Add(o.turnTimeout)
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "orchestrator.ProcessTurn",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	lease, err := o.sessions.Acquire(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire session")
		return conversation.TurnPlan{}, err
	}
	defer lease.Release()

	sess := lease.Session()
	if opts.TurnID != "" {
		if last, ok := lastTurn(sess); ok && last.ID == opts.TurnID {
			o.logger.Debug(ctx, "duplicate turn, returning committed plan", zap.String("turn.id", opts.TurnID))
			return last.Plan, nil
		}
	}

	turnID := opts.TurnID
	if turnID == "" {
		turnID = o.newID()
	}
	ctx = logging.WithSessionID(ctx, sessionID)
	ctx = logging.WithTurnID(ctx, turnID)
	span.SetAttributes(attribute.String("turn.id", turnID))
	o.logger.Debug(ctx, "processing turn", o.logger.Input(input))

	next, plan, perr := o.plan(ctx, sess, turnID, input, audio, opts.Region)
	bypass := perr == nil && plan.Directive.Kind == arbitration.KindBypass
	if err := ctx.Err(); err != nil && !bypass {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn cancelled")
		o.logger.Debug(ctx, "turn discarded before commit", zap.Error(err))
		return conversation.TurnPlan{}, err
	}
	if perr != nil {
		next, plan = o.degrade(ctx, sess, turnID, input, audio, perr)
	}

	if err := lease.Commit(next); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit session")
		return conversation.TurnPlan{}, err
	}

	elapsed := time.Since(start)
	o.metrics.recordTurn(string(plan.Directive.Kind), plan.Directive.Tier.String(), elapsed.Seconds())
	o.metrics.recordLoop(string(plan.LoopOutcome.Action))
	span.SetAttributes(
		attribute.String("directive.kind", string(plan.Directive.Kind)),
		attribute.String("directive.tier", plan.Directive.Tier.String()),
		attribute.String("loop.action", string(plan.LoopOutcome.Action)),
		attribute.Bool("degraded", plan.Degraded),
	)
	o.logger.Debug(ctx, "turn committed",
		zap.String("directive.kind", string(plan.Directive.Kind)),
		zap.String("directive.tier", plan.Directive.Tier.String()),
		zap.String("loop.action", string(plan.LoopOutcome.Action)),
		zap.Float64("trust", next.TrustLevel),
		zap.Duration("elapsed", elapsed),
	)
	return plan, nil
}

// plan runs the pipeline against a snapshot of the session and returns the
// state to commit. It never mutates sess.
func (o *Orchestrator) plan(ctx context.Context, sess conversation.Session, turnID, input string, audio *signal.AudioFeatures, region string) (next conversation.Session, plan conversation.TurnPlan, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &fault{reason: ReasonPanic, err: fmt.Errorf("%v", r)}
		}
	}()

	history := sess.History.Inputs()
	ext := signal.Safe(ctx, o.extractor, o.logger.Underlying(), input, history, audio)

	bankIn := detector.Input{
		Extraction: ext,
		State: detector.State{
			LoopActive:      sess.Loop.Active,
			LoopPhase:       sess.Loop.Phase.String(),
			CycleCount:      sess.Loop.CycleCount,
			DominantElement: sess.DominantElement,
			TrustLevel:      sess.TrustLevel,
		},
		Recent: history,
	}

	var (
		bank detector.Result
		mem  memory.Context
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard(func() { bank = o.bank.Run(gctx, bankIn) }))
	g.Go(guard(func() {
		mem = o.memory.Compose(gctx, memory.Request{SessionID: sess.ID, Hint: ext.Normalized})
	}))
	if err := g.Wait(); err != nil {
		return sess, conversation.TurnPlan{}, err
	}
	if err := ctx.Err(); err != nil {
		return sess, conversation.TurnPlan{}, err
	}

	if bank.FailedClosed {
		o.emit(ctx, events.Event{
			Type:      events.TypeSafetyFailClosed,
			Severity:  events.SeverityCritical,
			SessionID: sess.ID,
			TurnID:    turnID,
			Detail:    "safety check did not complete; elevating caution",
			Fields:    failureFields(bank.Failures),
		})
	}

	dir, err := o.engine.Resolve(bank.Claims)
	if err != nil {
		o.emit(ctx, events.Event{
			Type:      events.TypeArbitrationInvariant,
			Severity:  events.SeverityCritical,
			SessionID: sess.ID,
			TurnID:    turnID,
			Detail:    err.Error(),
		})
		return sess, conversation.TurnPlan{}, &fault{reason: ReasonArbitration, err: err}
	}

	elem := turnElement(dir, ext, sess.DominantElement)

	nextLoop := sess.Loop
	outcome := loop.Outcome{Action: loop.ActionNone}
	if sess.Loop.Active || dir.Kind == arbitration.KindEngageLoop {
		nextLoop, outcome = o.machine.Advance(sess.Loop, loop.Input{
			Engage:     dir.Kind == arbitration.KindEngageLoop,
			Extraction: ext,
			Element:    elem,
			Freeze:     freezesLoop(dir),
			Exit:       exitsLoop(dir),
		})
		if outcome.Err != nil {
			o.emit(ctx, events.Event{
				Type:      events.TypeLoopCorruption,
				Severity:  events.SeverityCritical,
				SessionID: sess.ID,
				TurnID:    turnID,
				Detail:    outcome.Err.Error(),
			})
		}
	}

	if dir.Kind == arbitration.KindBypass {
		dir.Payload.Resources = o.resources(ctx, sess.ID, turnID, region, dir)
	}

	next = sess.Clone()
	next.Loop = nextLoop
	next.DominantElement = elem
	next.TrustLevel = conversation.UpdateTrust(sess.TrustLevel, trustSignal(dir, outcome), o.trustRate)

	plan = conversation.TurnPlan{
		TurnID:      turnID,
		SessionID:   sess.ID,
		Directive:   dir,
		LoopOutcome: outcome,
		Memory:      mem,
		Tone:        toneFor(dir, elem, next.TrustLevel),
	}
	record(&next, turnID, input, audio, o.now(), plan)
	return next, plan, nil
}

// resources resolves crisis resources for a bypass directive and reports
// the bypass.
func (o *Orchestrator) resources(ctx context.Context, sessionID, turnID, region string, dir arbitration.Directive) []arbitration.Resource {
	if region == "" {
		region = o.region
	}
	category := detector.CategoryAmbiguous
	if dir.Payload.Crisis != nil {
		category = dir.Payload.Crisis.Category
	}

	// A P0 turn must not lose its resources or reports to a nearly spent
	// turn deadline.
	ctx = context.WithoutCancel(ctx)
	rctx, cancel := context.WithTimeout(ctx, o.crisisWait)
	defer cancel()
	found, err := crisis.Resolve(rctx, o.crisis, region, category, o.fallback)
	if err != nil {
		o.emit(ctx, events.Event{
			Type:      events.TypeCrisisRouterFallback,
			Severity:  events.SeverityWarning,
			SessionID: sessionID,
			TurnID:    turnID,
			Detail:    err.Error(),
			Fields:    map[string]string{"region": region, "category": string(category)},
		})
	}
	o.emit(ctx, events.Event{
		Type:      events.TypeSafetyBypass,
		Severity:  events.SeverityCritical,
		SessionID: sessionID,
		TurnID:    turnID,
		Detail:    "routing to crisis resources",
		Fields:    map[string]string{"region": region, "category": string(category)},
	})

	out := make([]arbitration.Resource, 0, len(found))
	for _, r := range found {
		out = append(out, arbitration.Resource{Name: r.Name, Contact: r.Contact, URL: r.URL, Note: r.Note})
	}
	return out
}

// degrade builds the minimal plan for a turn that hit an internal fault.
// The loop and trust level are carried over unchanged.
func (o *Orchestrator) degrade(ctx context.Context, sess conversation.Session, turnID, input string, audio *signal.AudioFeatures, cause error) (conversation.Session, conversation.TurnPlan) {
	reason := ReasonInternal
	var f *fault
	if errors.As(cause, &f) {
		reason = f.reason
	}

	o.logger.Error(ctx, "turn degraded", zap.String("reason", reason), zap.Error(cause))
	o.metrics.recordDegraded(reason)
	o.emit(ctx, events.Event{
		Type:      events.TypeTurnDegraded,
		Severity:  events.SeverityCritical,
		SessionID: sess.ID,
		TurnID:    turnID,
		Detail:    cause.Error(),
		Fields:    map[string]string{"reason": reason},
	})

	next := sess.Clone()
	plan := conversation.TurnPlan{
		TurnID:         turnID,
		SessionID:      sess.ID,
		Directive:      arbitration.PassThrough(),
		LoopOutcome:    loop.Outcome{Action: loop.ActionNone},
		Memory:         memory.Empty(),
		Tone:           conversation.ToneModulation{Element: sess.DominantElement, Pace: conversation.PaceSteady, Trust: sess.TrustLevel},
		Degraded:       true,
		DegradedReason: reason,
	}
	record(&next, turnID, input, audio, o.now(), plan)
	return next, plan
}

func (o *Orchestrator) emit(ctx context.Context, ev events.Event) {
	events.Emit(ctx, o.reporter, o.logger.Underlying(), ev)
}

// guard turns a panic in f into an error so errgroup reports it.
func guard(f func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &fault{reason: ReasonPanic, err: fmt.Errorf("%v", r)}
			}
		}()
		f()
		return nil
	}
}

func record(s *conversation.Session, turnID, input string, audio *signal.AudioFeatures, at time.Time, plan conversation.TurnPlan) {
	s.TurnCount++
	s.History.Push(conversation.Turn{ID: turnID, Input: input, Audio: audio, At: at, Plan: plan})
}

func lastTurn(s conversation.Session) (conversation.Turn, bool) {
	turns := s.History.Turns()
	if len(turns) == 0 {
		return conversation.Turn{}, false
	}
	return turns[len(turns)-1], true
}

func failureFields(failures []detector.Failure) map[string]string {
	if len(failures) == 0 {
		return nil
	}
	out := make(map[string]string, len(failures))
	for _, f := range failures {
		out[string(f.Detector)] = f.Reason
	}
	return out
}
