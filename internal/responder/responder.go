package responder

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/dialogd/internal/conversation"
)

// ErrEmptyReply is returned when a backend answers with no content.
var ErrEmptyReply = errors.New("responder returned an empty reply")

// Responder produces the reply for one planned turn.
type Responder interface {
	Generate(ctx context.Context, plan conversation.TurnPlan, input string) (string, error)
}

// Func adapts a function to Responder.
type Func func(ctx context.Context, plan conversation.TurnPlan, input string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, plan conversation.TurnPlan, input string) (string, error) {
	return f(ctx, plan, input)
}
