package responder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/config"
	"github.com/fyrsmithlabs/dialogd/internal/conversation"
	"github.com/fyrsmithlabs/dialogd/internal/secrets"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 20 * time.Second
	MaxRetries     = 2
)

// OpenAI generates replies through a chat-completions endpoint.
type OpenAI struct {
	client   openaigo.Client
	model    string
	scrubber secrets.Scrubber
	logger   *zap.Logger
}

// OpenAIOption configures an OpenAI responder.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	httpClient *http.Client
	retries    int
	scrubber   secrets.Scrubber
	logger     *zap.Logger
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(o *openAIOptions) { o.httpClient = c }
}

// WithMaxRetries overrides MaxRetries.
func WithMaxRetries(n int) OpenAIOption {
	return func(o *openAIOptions) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithScrubber redacts secrets from the prompt and the user's words before
// they are sent upstream.
func WithScrubber(s secrets.Scrubber) OpenAIOption {
	return func(o *openAIOptions) { o.scrubber = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) OpenAIOption {
	return func(o *openAIOptions) { o.logger = l }
}

// NewOpenAI creates a responder from configuration. The API key is required.
func NewOpenAI(cfg config.ResponderConfig, opts ...OpenAIOption) (*OpenAI, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: responder api_key is required", config.ErrInvalidConfig)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	o := openAIOptions{retries: MaxRetries}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: timeout}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.scrubber == nil {
		o.scrubber = secrets.Nop{}
	}

	client := openaigo.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey.Value())),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(o.retries),
		option.WithRequestTimeout(timeout),
	)
	return &OpenAI{client: client, model: model, scrubber: o.scrubber, logger: o.logger}, nil
}

// Generate implements Responder.
func (r *OpenAI) Generate(ctx context.Context, plan conversation.TurnPlan, input string) (string, error) {
	system := r.scrubber.Scrub(Prompt(plan))
	user := r.scrubber.Scrub(strings.TrimSpace(input))
	if n := len(system.Findings) + len(user.Findings); n > 0 {
		r.logger.Warn("redacted secrets from responder request",
			zap.String("session.id", plan.SessionID),
			zap.String("turn.id", plan.TurnID),
			zap.Int("findings", n),
			zap.Strings("rules", append(system.RuleIDs(), user.RuleIDs()...)),
		)
	}

	params := openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(r.model),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(system.Text),
			openaigo.UserMessage(user.Text),
		},
	}

	start := time.Now()
	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyReply
	}
	r.logger.Debug("reply generated",
		zap.String("session.id", plan.SessionID),
		zap.String("turn.id", plan.TurnID),
		zap.String("model", r.model),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
