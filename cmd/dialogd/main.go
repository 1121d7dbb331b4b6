// Dialogd is the conversational turn orchestrator daemon.
//
// It loads configuration, wires the detector bank, loop machine, memory
// compositor and crisis router behind an orchestrator, and serves the
// turn API over HTTP, or as MCP tools on stdio.
//
// Usage:
//
//	# Start with ~/.config/dialogd/config.yaml, if present
//	dialogd
//
//	# Explicit config file and environment overrides
//	DIALOGD_SERVER_HTTP_PORT=9000 dialogd -config /etc/dialogd/config.yaml
//
//	# Serve MCP tools on stdio for an agent host; logs go to stderr
//	dialogd mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/dialogd/internal/app"
	"github.com/fyrsmithlabs/dialogd/internal/config"
	dialoghttp "github.com/fyrsmithlabs/dialogd/internal/http"
	"github.com/fyrsmithlabs/dialogd/internal/logging"
	dialogmcp "github.com/fyrsmithlabs/dialogd/internal/mcp"
	"github.com/fyrsmithlabs/dialogd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Metrics registry served on /metrics. Tests swap in a fresh one.
var (
	registerer prometheus.Registerer = prometheus.DefaultRegisterer
	gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	mcpMode := false
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		case "mcp":
			mcpMode = true
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  dialogd [-config path]       Start the dialogd daemon\n")
			fmt.Fprintf(os.Stderr, "  dialogd [-config path] mcp   Serve MCP tools on stdio\n")
			fmt.Fprintf(os.Stderr, "  dialogd version              Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if mcpMode {
		if err := runMCP(ctx, cfg, &mcp.StdioTransport{}); err != nil {
			log.Fatalf("MCP server error: %v", err)
		}
		return
	}
	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("dialogd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// daemon is what both serving modes share.
type daemon struct {
	tel    *telemetry.Telemetry
	logger *logging.Logger
	app    *app.App
	cfg    *config.Config
}

// start validates cfg, initializes telemetry with the logger on top of it,
// and builds the orchestrator with its stores. logOut, when set, replaces
// stdout as the log destination.
func start(ctx context.Context, cfg *config.Config, logOut zapcore.WriteSyncer) (*daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	d := &daemon{tel: tel, cfg: cfg}

	d.logger, err = initLogger(cfg, tel, logOut)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := d.logger.Underlying()

	if h := tel.Health(); h.Degraded {
		zl.Warn("telemetry degraded", zap.String("reason", h.Reason))
	}

	zl.Info("Starting dialogd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName),
		zap.Duration("turn_timeout", cfg.Server.TurnTimeout.Duration()))

	d.app, err = app.Build(ctx, cfg, d.logger, app.Options{
		Registerer:     registerer,
		TracerProvider: tel.TracerProvider(),
	})
	if err != nil {
		d.close()
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}
	go d.app.Run(ctx)

	zl.Info("Orchestrator initialized",
		zap.Bool("sqlite", cfg.Memory.SQLitePath != ""),
		zap.Bool("chromem_persistent", cfg.Memory.ChromemPath != ""),
		zap.Bool("crisis_catalog", cfg.Crisis.CatalogPath != ""),
		zap.Bool("nats", cfg.Events.NATSURL != ""),
		zap.Bool("responder", d.app.Responder != nil))
	return d, nil
}

// close releases the app, flushes logs and shuts telemetry down.
func (d *daemon) close() {
	if d.app != nil {
		if err := d.app.Close(); err != nil && d.logger != nil {
			d.logger.Underlying().Warn("failed to release resources", zap.Error(err))
		}
	}
	if d.logger != nil {
		_ = d.logger.Sync() // Best-effort sync on shutdown
	}
	sctx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	_ = d.tel.Shutdown(sctx)
}

// run starts dialogd and serves HTTP until ctx is cancelled, then drains
// within shutdown_timeout.
func run(ctx context.Context, cfg *config.Config) error {
	d, err := start(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer d.close()
	a, tel, zl := d.app, d.tel, d.logger.Underlying()

	opts := []dialoghttp.Option{
		dialoghttp.WithHealth(tel.Health),
		dialoghttp.WithGatherer(gatherer),
		dialoghttp.WithMeterProvider(tel.MeterProvider()),
	}
	if a.Responder != nil {
		opts = append(opts, dialoghttp.WithResponder(a.Responder))
	}
	srv, err := dialoghttp.NewServer(a.Orchestrator, zl.Named("http"), &dialoghttp.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		TurnTimeout: cfg.Server.TurnTimeout.Duration(),
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
	}, opts...)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// runMCP starts dialogd and serves MCP tools on t until ctx is cancelled
// or the client disconnects. Logs go to stderr so stdio stays clean.
func runMCP(ctx context.Context, cfg *config.Config, t mcp.Transport) error {
	d, err := start(ctx, cfg, zapcore.Lock(os.Stderr))
	if err != nil {
		return err
	}
	defer d.close()

	srv, err := dialogmcp.NewServer(&dialogmcp.Config{
		Name:          "dialogd",
		Version:       version,
		TurnTimeout:   cfg.Server.TurnTimeout.Duration(),
		Logger:        d.logger.Underlying().Named("mcp"),
		MeterProvider: d.tel.MeterProvider(),
		Responder:     d.app.Responder,
	}, d.app.Orchestrator)
	if err != nil {
		return err
	}
	err = srv.Serve(ctx, t)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// initLogger builds the structured logger. OTEL output goes through the
// global log provider unless telemetry supplies one.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry, out zapcore.WriteSyncer) (*logging.Logger, error) {
	lc, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if out != nil {
		lc.Output.Writer = out
	}
	lp := tel.LoggerProvider()
	if lp == nil {
		lp = global.GetLoggerProvider()
	}
	return logging.NewLogger(lc, lp)
}
