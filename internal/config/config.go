// Package config loads dialogd configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// DIALOGD_<SECTION>_<FIELD> environment variables.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/dialogd/internal/element"
	"github.com/fyrsmithlabs/dialogd/internal/loop"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete dialogd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Detectors     DetectorsConfig     `koanf:"detectors"`
	Loop          LoopConfig          `koanf:"loop"`
	Memory        MemoryConfig        `koanf:"memory"`
	Session       SessionConfig       `koanf:"session"`
	Events        EventsConfig        `koanf:"events"`
	Crisis        CrisisConfig        `koanf:"crisis"`
	Responder     ResponderConfig     `koanf:"responder"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// TurnTimeout is the default per-turn deadline when the client sends none.
	TurnTimeout Duration `koanf:"turn_timeout"`
	// RateLimit is the sustained turns per second allowed per session.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// LoggingConfig selects the logger setup.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
	OTEL     bool   `koanf:"otel"`
}

// ObservabilityConfig configures OpenTelemetry and Prometheus.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	EnableMetrics   bool    `koanf:"enable_metrics"`
	ServiceName     string  `koanf:"service_name"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPProtocol    string  `koanf:"otlp_protocol"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	TLSSkipVerify   bool    `koanf:"tls_skip_verify"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// DetectorsConfig tunes the detector bank.
type DetectorsConfig struct {
	Budget         Duration `koanf:"budget"`
	NegationWindow int      `koanf:"negation_window"`
	LoopThreshold  float64  `koanf:"loop_threshold"`
	// LoopThresholds overrides LoopThreshold by element name.
	LoopThresholds map[string]float64 `koanf:"loop_thresholds"`
}

// LoopConfig tunes the clarification loop.
type LoopConfig struct {
	Threshold        float64      `koanf:"threshold"`
	Weights          loop.Weights `koanf:"weights"`
	DefaultMaxCycles int          `koanf:"default_max_cycles"`
	// MaxCycles overrides DefaultMaxCycles by element name.
	MaxCycles map[string]int `koanf:"max_cycles"`
}

// MemoryConfig tunes the compositor and selects tier backends.
type MemoryConfig struct {
	TierTimeout Duration `koanf:"tier_timeout"`
	Slack       Duration `koanf:"slack"`
	Budget      int      `koanf:"budget"`
	Limit       int      `koanf:"limit"`
	// SQLitePath backs the session, profile and episodic tiers. Empty
	// uses an in-memory map store.
	SQLitePath string `koanf:"sqlite_path"`
	// ChromemPath backs the symbolic and external document tiers. Empty
	// keeps the vector store in memory.
	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`
	// VectorBackend selects the document tier store: chromem or qdrant.
	VectorBackend string       `koanf:"vector_backend"`
	Qdrant        QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig points the document tiers at a Qdrant server over gRPC.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey Secret `koanf:"api_key"`
	// CollectionPrefix namespaces the per-tier collections.
	CollectionPrefix string `koanf:"collection_prefix"`
}

// SessionConfig tunes session lifecycle.
type SessionConfig struct {
	HistorySize   int      `koanf:"history_size"`
	TTL           Duration `koanf:"ttl"`
	SweepInterval Duration `koanf:"sweep_interval"`
	TrustRate     float64  `koanf:"trust_rate"`
}

// EventsConfig selects where reportable events go.
type EventsConfig struct {
	// NATSURL enables the NATS publisher when set.
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// CrisisConfig configures crisis resources.
type CrisisConfig struct {
	CatalogPath   string   `koanf:"catalog_path"`
	DefaultRegion string   `koanf:"default_region"`
	FallbackText  string   `koanf:"fallback_text"`
	Watch         bool     `koanf:"watch"`
	Timeout       Duration `koanf:"timeout"`
}

// ResponderConfig configures the optional chat-completions responder.
type ResponderConfig struct {
	Enabled bool     `koanf:"enabled"`
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
	// Redact scrubs credentials from text before it is sent upstream.
	Redact bool `koanf:"redact"`
	// RedactAllowList holds regexps for matches that are left in place.
	RedactAllowList []string `koanf:"redact_allow_list"`
}

// Default returns the built-in configuration.
func Default() *Config {
	lc := loop.DefaultConfig()
	maxCycles := make(map[string]int, len(lc.MaxCyclesByElement))
	for e, n := range lc.MaxCyclesByElement {
		maxCycles[e.String()] = n
	}
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8085,
			ShutdownTimeout: Duration(10 * time.Second),
			TurnTimeout:     Duration(2 * time.Second),
			RateLimit:       2,
			RateBurst:       5,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Sampling: true},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			ServiceName:   "dialogd",
			OTLPEndpoint:  "localhost:4317",
			OTLPProtocol:  "grpc",
			OTLPInsecure:  true,
			SampleRate:    1.0,
		},
		Detectors: DetectorsConfig{
			Budget:         Duration(100 * time.Millisecond),
			NegationWindow: 40,
			LoopThreshold:  0.6,
			LoopThresholds: map[string]float64{"water": 0.5, "fire": 0.7},
		},
		Loop: LoopConfig{
			Threshold:        lc.Threshold,
			Weights:          lc.Weights,
			DefaultMaxCycles: lc.DefaultMaxCycles,
			MaxCycles:        maxCycles,
		},
		Memory: MemoryConfig{
			TierTimeout: Duration(150 * time.Millisecond),
			Slack:       Duration(25 * time.Millisecond),
			Budget:      2048,
			Limit:       8,

			VectorBackend: "chromem",
			Qdrant: QdrantConfig{
				Host:             "localhost",
				Port:             6334,
				CollectionPrefix: "dialogd",
			},
		},
		Session: SessionConfig{
			HistorySize:   8,
			TTL:           Duration(30 * time.Minute),
			SweepInterval: Duration(time.Minute),
			TrustRate:     0.1,
		},
		Events: EventsConfig{SubjectPrefix: "dialogd.events"},
		Crisis: CrisisConfig{Watch: true, Timeout: Duration(250 * time.Millisecond)},
		Responder: ResponderConfig{
			Model:   "gpt-4o-mini",
			Timeout: Duration(20 * time.Second),
			Redact:  true,
		},
	}
}

// LoopMachineConfig converts the loop section.
func (c *Config) LoopMachineConfig() (loop.Config, error) {
	lc := loop.Config{
		Threshold:          c.Loop.Threshold,
		Weights:            c.Loop.Weights,
		DefaultMaxCycles:   c.Loop.DefaultMaxCycles,
		MaxCyclesByElement: make(map[element.Element]int, len(c.Loop.MaxCycles)),
	}
	for name, n := range c.Loop.MaxCycles {
		e, err := element.Parse(name)
		if err != nil {
			return loop.Config{}, fmt.Errorf("%w: loop.max_cycles: %v", ErrInvalidConfig, err)
		}
		lc.MaxCyclesByElement[e] = n
	}
	if err := lc.Validate(); err != nil {
		return loop.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return lc, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		bad("server.http_port %d must be 1-65535", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		bad("server.shutdown_timeout must be positive")
	}
	if c.Server.TurnTimeout <= 0 {
		bad("server.turn_timeout must be positive")
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst < 1 {
		bad("server.rate_limit and server.rate_burst must be positive")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		bad("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Observability.EnableTelemetry {
		if c.Observability.ServiceName == "" {
			bad("observability.service_name required when telemetry is enabled")
		}
		if p := c.Observability.OTLPProtocol; p != "grpc" && p != "http/protobuf" {
			bad("observability.otlp_protocol must be grpc or http/protobuf, got %q", p)
		}
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		bad("observability.sample_rate %v must be in [0,1]", c.Observability.SampleRate)
	}
	if c.Detectors.Budget <= 0 {
		bad("detectors.budget must be positive")
	}
	if c.Detectors.NegationWindow < 1 {
		bad("detectors.negation_window must be >= 1")
	}
	if t := c.Detectors.LoopThreshold; t <= 0 || t > 1 {
		bad("detectors.loop_threshold %v must be in (0,1]", t)
	}
	for name, t := range c.Detectors.LoopThresholds {
		if _, err := element.Parse(name); err != nil {
			bad("detectors.loop_thresholds: %v", err)
		}
		if t <= 0 || t > 1 {
			bad("detectors.loop_thresholds.%s %v must be in (0,1]", name, t)
		}
	}
	if _, err := c.LoopMachineConfig(); err != nil {
		errs = append(errs, err)
	}
	if c.Memory.TierTimeout <= 0 || c.Memory.Slack < 0 {
		bad("memory.tier_timeout must be positive and memory.slack non-negative")
	}
	if c.Memory.Budget <= 0 || c.Memory.Limit <= 0 {
		bad("memory.budget and memory.limit must be positive")
	}
	switch c.Memory.VectorBackend {
	case "", "chromem":
	case "qdrant":
		if c.Memory.Qdrant.Host == "" {
			bad("memory.qdrant.host required for the qdrant backend")
		}
		if p := c.Memory.Qdrant.Port; p <= 0 || p > 65535 {
			bad("memory.qdrant.port %d must be 1-65535", p)
		}
	default:
		bad("memory.vector_backend must be chromem or qdrant, got %q", c.Memory.VectorBackend)
	}
	if c.Session.HistorySize < 1 {
		bad("session.history_size must be >= 1")
	}
	if c.Session.TTL <= 0 || c.Session.SweepInterval <= 0 {
		bad("session.ttl and session.sweep_interval must be positive")
	}
	if r := c.Session.TrustRate; r < 0 || r > 1 {
		bad("session.trust_rate %v must be in [0,1]", r)
	}
	if c.Crisis.Timeout <= 0 {
		bad("crisis.timeout must be positive")
	}
	if c.Responder.Enabled {
		if c.Responder.Model == "" {
			bad("responder.model required when the responder is enabled")
		}
		if c.Responder.Timeout <= 0 {
			bad("responder.timeout must be positive")
		}
	}
	for _, p := range c.Responder.RedactAllowList {
		if _, err := regexp.Compile(p); err != nil {
			bad("responder.redact_allow_list pattern %q: %v", p, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
