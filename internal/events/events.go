// Package events carries reportable operational events out of the turn
// pipeline: degraded turns, safety bypasses, fail-closed checks and
// invariant violations. Reporting never blocks or fails a turn.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type names an event.
type Type string

const (
	TypeTurnDegraded         Type = "turn_degraded"
	TypeSafetyBypass         Type = "safety_bypass"
	TypeSafetyFailClosed     Type = "safety_fail_closed"
	TypeArbitrationInvariant Type = "arbitration_invariant"
	TypeLoopCorruption       Type = "loop_corruption"
	TypeCrisisRouterFallback Type = "crisis_router_fallback"
)

// Severity ranks an event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one reportable occurrence.
type Event struct {
	Type      Type              `json:"type"`
	Severity  Severity          `json:"severity"`
	SessionID string            `json:"session_id,omitempty"`
	TurnID    string            `json:"turn_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Time      time.Time         `json:"time"`
}

// Reporter delivers events. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(ctx context.Context, ev Event) error
}

// Nop discards events.
type Nop struct{}

// Report implements Reporter.
func (Nop) Report(context.Context, Event) error { return nil }

// Recording keeps every event in memory. It is meant for tests and for
// the CLI's local mode.
type Recording struct {
	mu     sync.Mutex
	events []Event
}

// Report implements Reporter.
func (r *Recording) Report(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recording) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of type t.
func (r *Recording) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Logging writes each event to a logger and forwards it to Next.
type Logging struct {
	Logger *zap.Logger
	Next   Reporter
}

// Report implements Reporter.
func (l Logging) Report(ctx context.Context, ev Event) error {
	if l.Logger != nil {
		fields := []zap.Field{
			zap.String("event.type", string(ev.Type)),
			zap.String("session.id", ev.SessionID),
			zap.String("turn.id", ev.TurnID),
			zap.String("detail", ev.Detail),
		}
		for k, v := range ev.Fields {
			fields = append(fields, zap.String(k, v))
		}
		switch ev.Severity {
		case SeverityCritical:
			l.Logger.Error("reportable event", fields...)
		case SeverityWarning:
			l.Logger.Warn("reportable event", fields...)
		default:
			l.Logger.Info("reportable event", fields...)
		}
	}
	if l.Next == nil {
		return nil
	}
	return l.Next.Report(ctx, ev)
}

// Emit stamps ev and reports it, logging any delivery error instead of
// returning it.
func Emit(ctx context.Context, r Reporter, logger *zap.Logger, ev Event) {
	if r == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if ev.Severity == "" {
		ev.Severity = SeverityWarning
	}
	if err := r.Report(ctx, ev); err != nil && logger != nil {
		logger.Warn("failed to report event",
			zap.String("event.type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
