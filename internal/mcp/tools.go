package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/arbitration"
	"github.com/fyrsmithlabs/dialogd/internal/conversation"
	"github.com/fyrsmithlabs/dialogd/internal/orchestrator"
	"github.com/fyrsmithlabs/dialogd/internal/sanitize"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

// ErrInvalidInput marks arguments rejected before reaching the orchestrator.
var ErrInvalidInput = errors.New("invalid input")

type sessionCreateInput struct{}

type sessionCreateOutput struct {
	SessionID string `json:"session_id" jsonschema:"Identifier to pass to session_turn and session_expire"`
}

type sessionTurnInput struct {
	SessionID  string                `json:"session_id" jsonschema:"Session returned by session_create"`
	Input      string                `json:"input" jsonschema:"What the user said"`
	Audio      *signal.AudioFeatures `json:"audio,omitempty" jsonschema:"Prosody features of the utterance, each in [0,1]"`
	Region     string                `json:"region,omitempty" jsonschema:"ISO region for crisis resources, e.g. US"`
	TurnID     string                `json:"turn_id,omitempty" jsonschema:"Client turn id; a repeat of the last id returns the cached plan"`
	DeadlineMS int                   `json:"deadline_ms,omitempty" jsonschema:"Turn budget in milliseconds, capped by the server"`
}

type resourceOutput struct {
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
	URL     string `json:"url,omitempty"`
}

type sessionTurnOutput struct {
	TurnID     string           `json:"turn_id" jsonschema:"Turn identifier"`
	Kind       string           `json:"kind" jsonschema:"Directive: bypass-to-resource, engage-loop, modulate-tone or pass-through"`
	Tier       string           `json:"tier" jsonschema:"Priority tier of the winning claim"`
	LoopAction string           `json:"loop_action" jsonschema:"Reflective loop step taken this turn"`
	Reflection string           `json:"reflection,omitempty" jsonschema:"Statement to reflect back when loop_action is reflect"`
	Pace       string           `json:"pace" jsonschema:"Suggested pace: slow, steady or brisk"`
	Resources  []resourceOutput `json:"resources,omitempty" jsonschema:"Crisis resources to surface verbatim"`
	Degraded   bool             `json:"degraded,omitempty" jsonschema:"Set when an internal fault forced a minimal plan"`
	Message    string           `json:"message,omitempty" jsonschema:"Generated reply, when a responder is configured"`
}

type sessionExpireInput struct {
	SessionID string `json:"session_id" jsonschema:"Session to end"`
}

type sessionExpireOutput struct {
	Expired bool `json:"expired"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_create",
		Description: "Start a conversation session and return its id",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ sessionCreateInput) (*mcp.CallToolResult, sessionCreateOutput, error) {
		done := s.track(ctx, "session_create")
		id := s.turns.CreateSession()
		done(nil)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: id}},
		}, sessionCreateOutput{SessionID: id}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_turn",
		Description: "Process one user turn and return the plan the reply must follow. Bypass plans carry crisis resources that must be shown to the user.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionTurnInput) (*mcp.CallToolResult, sessionTurnOutput, error) {
		done := s.track(ctx, "session_turn")
		res, out, err := s.sessionTurn(ctx, args)
		done(err)
		return res, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_expire",
		Description: "End a session and discard its state",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionExpireInput) (*mcp.CallToolResult, sessionExpireOutput, error) {
		done := s.track(ctx, "session_expire")
		var err error
		if err = sanitize.ValidateSessionID(args.SessionID); err != nil {
			err = fmt.Errorf("%w: session_id: %v", ErrInvalidInput, err)
		} else {
			err = s.turns.ExpireSession(args.SessionID)
		}
		done(err)
		if err != nil {
			return nil, sessionExpireOutput{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "session expired"}},
		}, sessionExpireOutput{Expired: true}, nil
	})
}

func (s *Server) sessionTurn(ctx context.Context, args sessionTurnInput) (*mcp.CallToolResult, sessionTurnOutput, error) {
	if err := sanitize.ValidateSessionID(args.SessionID); err != nil {
		return nil, sessionTurnOutput{}, fmt.Errorf("%w: session_id: %v", ErrInvalidInput, err)
	}
	if args.Input == "" {
		return nil, sessionTurnOutput{}, fmt.Errorf("%w: input is required", ErrInvalidInput)
	}
	if args.DeadlineMS < 0 {
		return nil, sessionTurnOutput{}, fmt.Errorf("%w: deadline_ms must not be negative", ErrInvalidInput)
	}
	region, err := sanitize.NormalizeRegion(args.Region)
	if err != nil {
		return nil, sessionTurnOutput{}, fmt.Errorf("%w: region: %v", ErrInvalidInput, err)
	}

	timeout := s.turnTimeout
	if args.DeadlineMS > 0 {
		timeout = min(timeout, time.Duration(args.DeadlineMS)*time.Millisecond)
	}
	plan, err := s.turns.ProcessTurn(ctx, args.SessionID, args.Input, args.Audio, orchestrator.TurnOptions{
		Deadline: time.Now().Add(timeout),
		Region:   region,
		TurnID:   args.TurnID,
	})
	if err != nil {
		return nil, sessionTurnOutput{}, err
	}

	out := summarize(plan)
	if s.responder != nil {
		msg, err := s.responder.Generate(ctx, plan, args.Input)
		if err != nil {
			s.logger.Warn("responder failed",
				zap.String("session.id", plan.SessionID),
				zap.String("turn.id", plan.TurnID),
				zap.Error(err))
		}
		out.Message = msg
	}

	full, err := json.Marshal(plan)
	if err != nil {
		return nil, sessionTurnOutput{}, fmt.Errorf("encoding plan: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(full)}},
	}, out, nil
}

// summarize flattens plan into the tool's structured output.
func summarize(plan conversation.TurnPlan) sessionTurnOutput {
	out := sessionTurnOutput{
		TurnID:     plan.TurnID,
		Kind:       string(plan.Directive.Kind),
		Tier:       plan.Directive.Tier.String(),
		LoopAction: string(plan.LoopOutcome.Action),
		Pace:       plan.Tone.Pace,
		Degraded:   plan.Degraded,
	}
	if r := plan.LoopOutcome.Reflection; r != nil {
		out.Reflection = r.Target
	}
	if plan.Directive.Kind == arbitration.KindBypass {
		for _, r := range plan.Directive.Payload.Resources {
			out.Resources = append(out.Resources, resourceOutput{Name: r.Name, Contact: r.Contact, URL: r.URL})
		}
	}
	return out
}

// track records a tool invocation; call the returned func with its error.
func (s *Server) track(ctx context.Context, tool string) func(error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	return func(err error) {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
		if err != nil {
			s.logger.Debug("tool failed", zap.String("tool", tool), zap.Error(err))
		}
	}
}
