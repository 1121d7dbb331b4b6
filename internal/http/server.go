// Package http serves the dialogd turn API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/conversation"
	"github.com/fyrsmithlabs/dialogd/internal/orchestrator"
	"github.com/fyrsmithlabs/dialogd/internal/responder"
	"github.com/fyrsmithlabs/dialogd/internal/sanitize"
	"github.com/fyrsmithlabs/dialogd/internal/signal"
	"github.com/fyrsmithlabs/dialogd/internal/stats"
	"github.com/fyrsmithlabs/dialogd/internal/telemetry"
)

// maxBodyBytes bounds a turn request body.
const maxBodyBytes = "64K"

// Turns is the orchestrator surface the server drives.
type Turns interface {
	CreateSession() string
	ExpireSession(id string) error
	ProcessTurn(ctx context.Context, sessionID, input string, audio *signal.AudioFeatures, opts orchestrator.TurnOptions) (conversation.TurnPlan, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// TurnTimeout caps client-supplied deadlines and applies when none is sent.
	TurnTimeout time.Duration
	// RateLimit is turns per second per session; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Server provides the HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	turns     Turns
	responder responder.Responder
	limiters  *sessionLimiters
	health    func() telemetry.HealthStatus
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
	config    *Config
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	responder     responder.Responder
	health        func() telemetry.HealthStatus
	gatherer      prometheus.Gatherer
	meterProvider metric.MeterProvider
}

// WithResponder adds a generated message to every turn response.
func WithResponder(r responder.Responder) Option {
	return func(o *serverOptions) { o.responder = r }
}

// WithHealth reports telemetry health on /health.
func WithHealth(f func() telemetry.HealthStatus) Option {
	return func(o *serverOptions) { o.health = f }
}

// WithGatherer serves g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *serverOptions) { o.gatherer = g }
}

// WithMeterProvider records request metrics on mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *serverOptions) { o.meterProvider = mp }
}

// NewServer creates a new HTTP server.
func NewServer(turns Turns, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if turns == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 2 * time.Second
	}

	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.gatherer == nil {
		o.gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(NewHTTPMetrics(o.meterProvider, logger).MetricsMiddleware())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		turns:     turns,
		responder: o.responder,
		limiters:  newSessionLimiters(cfg.RateLimit, cfg.RateBurst),
		health:    o.health,
		gatherer:  o.gatherer,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/stats", s.handleStats)
	v1.POST("/sessions", s.handleCreateSession)
	v1.POST("/sessions/:id/turns", s.handleTurn, middleware.BodyLimit(maxBodyBytes))
	v1.DELETE("/sessions/:id", s.handleExpireSession)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// CreateSessionResponse is the response body for POST /api/v1/sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// TurnRequest is the request body for POST /api/v1/sessions/:id/turns.
type TurnRequest struct {
	Input string                `json:"input"`
	Audio *signal.AudioFeatures `json:"audio,omitempty"`
	// DeadlineMS bounds the turn in milliseconds from receipt.
	DeadlineMS int    `json:"deadline_ms,omitempty"`
	Region     string `json:"region,omitempty"`
	TurnID     string `json:"turn_id,omitempty"`
}

// TurnResponse is the response body for a turn.
type TurnResponse struct {
	conversation.TurnPlan
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// handleHealth reports liveness. Degraded telemetry does not fail it.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.health != nil {
		h := s.health()
		resp.Telemetry = &h
		if h.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleStats serves a summary of the turn metrics for dashboards.
func (s *Server) handleStats(c echo.Context) error {
	st, err := stats.Gather(s.gatherer, time.Now())
	if err != nil {
		s.logger.Warn("gathering metrics failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "metrics unavailable")
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleCreateSession(c echo.Context) error {
	id := s.turns.CreateSession()
	return c.JSON(http.StatusCreated, CreateSessionResponse{SessionID: id})
}

func (s *Server) handleExpireSession(c echo.Context) error {
	id := c.Param("id")
	if err := sanitize.ValidateSessionID(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	if err := s.turns.ExpireSession(id); err != nil {
		return sessionError(err)
	}
	s.limiters.Forget(id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTurn(c echo.Context) error {
	id := c.Param("id")
	if err := sanitize.ValidateSessionID(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}

	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid turn request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Input == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "input field is required")
	}
	if req.DeadlineMS < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "deadline_ms must not be negative")
	}
	region, err := sanitize.NormalizeRegion(req.Region)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid region")
	}
	if req.TurnID != "" {
		if err := sanitize.ValidateSessionID(req.TurnID); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid turn id")
		}
	}

	if !s.limiters.Allow(id) {
		s.logger.Warn("rate limit exceeded", zap.String("session.id", id))
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	timeout := s.config.TurnTimeout
	if req.DeadlineMS > 0 {
		timeout = min(timeout, time.Duration(req.DeadlineMS)*time.Millisecond)
	}

	ctx := c.Request().Context()
	plan, err := s.turns.ProcessTurn(ctx, id, req.Input, req.Audio, orchestrator.TurnOptions{
		Deadline: time.Now().Add(timeout),
		Region:   region,
		TurnID:   req.TurnID,
	})
	if err != nil {
		return sessionError(err)
	}

	resp := TurnResponse{TurnPlan: plan}
	if s.responder != nil {
		msg, err := s.responder.Generate(ctx, plan, req.Input)
		if err != nil {
			s.logger.Warn("responder failed", zap.String("session.id", id), zap.String("turn.id", plan.TurnID), zap.Error(err))
		}
		resp.Message = msg
	}
	return c.JSON(http.StatusOK, resp)
}

// sessionError maps orchestrator errors to HTTP statuses.
func sessionError(err error) error {
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound), errors.Is(err, conversation.ErrSessionExpired):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "turn deadline exceeded")
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(499, "request cancelled")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
