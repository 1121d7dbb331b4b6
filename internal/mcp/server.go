package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/conversation"
	"github.com/fyrsmithlabs/dialogd/internal/orchestrator"
	"github.com/fyrsmithlabs/dialogd/internal/responder"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
)

// Turns is the orchestrator surface the tools drive.
type Turns interface {
	CreateSession() string
	ExpireSession(id string) error
	ProcessTurn(ctx context.Context, sessionID, input string, audio *signal.AudioFeatures, opts orchestrator.TurnOptions) (conversation.TurnPlan, error)
}

// Server serves dialogd tools over MCP.
type Server struct {
	mcp         *mcp.Server
	turns       Turns
	responder   responder.Responder
	metrics     *Metrics
	turnTimeout time.Duration
	logger      *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "dialogd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// TurnTimeout caps session_turn deadlines (default: 2s)
	TurnTimeout time.Duration

	// Logger for structured logging
	Logger *zap.Logger

	// MeterProvider records tool metrics; nil uses the global provider.
	MeterProvider metric.MeterProvider

	// Responder, when set, adds a generated reply to session_turn results.
	Responder responder.Responder
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:        "dialogd",
		Version:     "dev",
		TurnTimeout: 2 * time.Second,
		Logger:      zap.NewNop(),
	}
}

// NewServer creates an MCP server with the dialog tools registered.
func NewServer(cfg *Config, turns Turns) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if turns == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = def.TurnTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		turns:       turns,
		responder:   cfg.Responder,
		metrics:     NewMetrics(cfg.MeterProvider, cfg.Logger),
		turnTimeout: cfg.TurnTimeout,
		logger:      cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Serve serves one client on t until ctx is done or the client disconnects.
func (s *Server) Serve(ctx context.Context, t mcp.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t. Mainly for tests and embedding.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
