// Package app assembles a dialogd instance from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/config"
	"github.com/fyrsmithlabs/dialogd/internal/conversation"
	"github.com/fyrsmithlabs/dialogd/internal/crisis"
	"github.com/fyrsmithlabs/dialogd/internal/detector"
	"github.com/fyrsmithlabs/dialogd/internal/events"
	"github.com/fyrsmithlabs/dialogd/internal/logging"
	"github.com/fyrsmithlabs/dialogd/internal/loop"
	"github.com/fyrsmithlabs/dialogd/internal/memory"
	"github.com/fyrsmithlabs/dialogd/internal/memory/chromemstore"
	"github.com/fyrsmithlabs/dialogd/internal/memory/qdrantstore"
	"github.com/fyrsmithlabs/dialogd/internal/memory/sqlitestore"
	"github.com/fyrsmithlabs/dialogd/internal/orchestrator"
	"github.com/fyrsmithlabs/dialogd/internal/responder"
	"github.com/fyrsmithlabs/dialogd/internal/secrets"
)

// App holds a wired orchestrator and the resources behind it.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *conversation.Manager
	// Responder is nil unless responder.enabled is set.
	Responder responder.Responder

	logger  *logging.Logger
	closers []func() error
}

// Options tune Build for embedding callers.
type Options struct {
	// Registerer receives every Prometheus collector. Nil uses the
	// default registerer.
	Registerer prometheus.Registerer
	// TracerProvider receives the turn spans. Nil uses the global one.
	TracerProvider trace.TracerProvider
	// Reporter overrides the events section.
	Reporter events.Reporter
	// Stores overrides the memory section's backends.
	Stores map[memory.Tier]memory.Store
}

// Build wires every component named by cfg. Close releases what it opened,
// including on error.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts Options) (a *App, err error) {
	if logger == nil {
		logger = logging.Nop()
	}
	zl := logger.Underlying()
	a = &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	loopCfg, err := cfg.LoopMachineConfig()
	if err != nil {
		return nil, err
	}
	machine, err := loop.NewMachine(loopCfg)
	if err != nil {
		return nil, fmt.Errorf("creating loop machine: %w", err)
	}

	bank := detector.NewBank(
		detector.DefaultDetectors(cfg.Detectors.NegationWindow, cfg.Detectors.LoopThreshold, cfg.Detectors.LoopThresholds),
		detector.WithBudget(cfg.Detectors.Budget.Duration()),
		detector.WithMetrics(detector.NewMetrics(opts.Registerer)),
		detector.WithLogger(zl.Named("detector")),
	)

	stores := opts.Stores
	if stores == nil {
		if stores, err = a.openStores(ctx, cfg.Memory, zl); err != nil {
			return nil, err
		}
	}
	compositor := memory.NewCompositor(stores,
		memory.WithTierTimeout(cfg.Memory.TierTimeout.Duration()),
		memory.WithSlack(cfg.Memory.Slack.Duration()),
		memory.WithBudget(cfg.Memory.Budget),
		memory.WithLimit(cfg.Memory.Limit),
		memory.WithLogger(zl.Named("memory")),
		memory.WithMetrics(memory.NewMetrics(opts.Registerer)),
	)

	router, err := a.openRouter(ctx, cfg.Crisis, zl)
	if err != nil {
		return nil, err
	}

	reporter := opts.Reporter
	if reporter == nil {
		if reporter, err = a.openReporter(cfg.Events, zl); err != nil {
			return nil, err
		}
	}

	a.Sessions = conversation.NewManager(conversation.ManagerConfig{
		TTL:           cfg.Session.TTL.Duration(),
		SweepInterval: cfg.Session.SweepInterval.Duration(),
		HistorySize:   cfg.Session.HistorySize,
		Registerer:    opts.Registerer,
	}, zl.Named("sessions"))

	a.Orchestrator, err = orchestrator.New(orchestrator.Deps{
		Sessions: a.Sessions,
		Bank:     bank,
		Machine:  machine,
		Memory:   compositor,
		Crisis:   router,
	},
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithReporter(reporter),
		orchestrator.WithMetrics(orchestrator.NewMetrics(opts.Registerer)),
		orchestrator.WithTracerProvider(opts.TracerProvider),
		orchestrator.WithFallback(crisis.Fallback(cfg.Crisis.FallbackText)),
		orchestrator.WithDefaultRegion(cfg.Crisis.DefaultRegion),
		orchestrator.WithTrustRate(cfg.Session.TrustRate),
		orchestrator.WithTurnTimeout(cfg.Server.TurnTimeout.Duration()),
		orchestrator.WithCrisisTimeout(cfg.Crisis.Timeout.Duration()),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Responder.Enabled {
		ropts := []responder.OpenAIOption{responder.WithLogger(zl.Named("responder"))}
		if cfg.Responder.Redact {
			scrubber, err := secrets.New(cfg.Responder.RedactAllowList)
			if err != nil {
				return nil, fmt.Errorf("building secret scrubber: %w", err)
			}
			ropts = append(ropts, responder.WithScrubber(scrubber))
		}
		r, err := responder.NewOpenAI(cfg.Responder, ropts...)
		if err != nil {
			return nil, err
		}
		a.Responder = r
	}
	return a, nil
}

// openStores backs the conversational tiers with SQLite and the document
// tiers with chromem or qdrant. Without a SQLite path the conversational
// tiers use a map store.
func (a *App) openStores(ctx context.Context, cfg config.MemoryConfig, logger *zap.Logger) (map[memory.Tier]memory.Store, error) {
	var conversational memory.Store
	if cfg.SQLitePath != "" {
		s, err := sqlitestore.Open(cfg.SQLitePath, logger.Named("sqlite"))
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		conversational = s
	} else {
		conversational = memory.NewMapStore()
	}

	docs, err := a.openVectorStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return map[memory.Tier]memory.Store{
		memory.TierSession:          conversational,
		memory.TierProfile:          conversational,
		memory.TierEpisodic:         conversational,
		memory.TierSymbolic:         docs,
		memory.TierExternalDocument: docs,
	}, nil
}

// vectorStore is a document tier store that carries the symbol library.
type vectorStore interface {
	memory.Store
	SeedSymbols(ctx context.Context) error
}

// openVectorStore opens the configured document tier backend and seeds
// the symbol library into it.
func (a *App) openVectorStore(ctx context.Context, cfg config.MemoryConfig, logger *zap.Logger) (vectorStore, error) {
	var docs vectorStore
	switch cfg.VectorBackend {
	case "qdrant":
		client, err := qdrantstore.NewGRPCClient(ctx, &qdrantstore.ClientConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			UseTLS: cfg.Qdrant.UseTLS,
			APIKey: cfg.Qdrant.APIKey.Value(),
		}, logger.Named("qdrant"))
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		s, err := qdrantstore.New(client, qdrantstore.Config{Prefix: cfg.Qdrant.CollectionPrefix}, logger.Named("qdrant"))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		docs = s
	default:
		s, err := chromemstore.Open(chromemstore.Config{
			Path:     cfg.ChromemPath,
			Compress: cfg.ChromemCompress,
		}, logger.Named("chromem"))
		if err != nil {
			return nil, fmt.Errorf("opening chromem store: %w", err)
		}
		docs = s
	}
	if err := docs.SeedSymbols(ctx); err != nil {
		return nil, fmt.Errorf("seeding symbol library: %w", err)
	}
	return docs, nil
}

// openRouter returns the file-backed catalog router, or nil so that every
// bypass carries the configured fallback.
func (a *App) openRouter(ctx context.Context, cfg config.CrisisConfig, logger *zap.Logger) (crisis.Router, error) {
	if cfg.CatalogPath == "" {
		logger.Warn("no crisis catalog configured; bypass turns carry the fallback resource only")
		return nil, nil
	}
	r, err := crisis.NewFileRouter(cfg.CatalogPath, logger.Named("crisis"))
	if err != nil {
		return nil, fmt.Errorf("loading crisis catalog: %w", err)
	}
	a.closers = append(a.closers, r.Close)
	if cfg.Watch {
		if err := r.Watch(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// openReporter logs every event and publishes it to NATS when configured.
func (a *App) openReporter(cfg config.EventsConfig, logger *zap.Logger) (events.Reporter, error) {
	rep := events.Logging{Logger: logger.Named("events")}
	if cfg.NATSURL == "" {
		return rep, nil
	}
	p, err := events.Connect(cfg.NATSURL, cfg.SubjectPrefix, logger.Named("nats"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p.Close)
	rep.Next = p
	return rep, nil
}

// Run sweeps expired sessions until ctx is done.
func (a *App) Run(ctx context.Context) {
	a.Sessions.Run(ctx)
}

// Close releases stores, watchers and connections in reverse order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
