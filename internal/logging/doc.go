// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Output to stdout, a custom writer and OpenTelemetry
//   - Context field injection (trace_id, session.id, turn.id, request.id)
//   - Secret redaction at the encoder
//   - Per-level sampling (errors never sampled)
//
// # Usage
//
// Create logger from the daemon configuration:
//
//	cfg, err := logging.FromSettings(appCfg.Logging)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithSessionID(ctx, sessionID)
//	ctx = logging.WithTurnID(ctx, turnID)
//	logger.Info(ctx, "turn planned", zap.String("kind", string(plan.Directive.Kind)))
//
// Output includes correlation fields:
//
//	{
//	  "ts": "2026-03-02T10:15:30Z",
//	  "level": "info",
//	  "msg": "turn planned",
//	  "trace_id": "abc123",
//	  "session.id": "5b0c…",
//	  "turn.id": "t-17",
//	  "kind": "engage-loop"
//	}
//
// Ids that are empty or contain characters outside [A-Za-z0-9_-] are not
// attached.
//
// Leaf packages take a plain *zap.Logger; pass Logger.Underlying().
//
// # User input
//
// Raw utterances are logged at Debug only, through Input, which keeps the
// first MaxInputLen runes and the original length:
//
//	logger.Debug(ctx, "turn input", logger.Input(text))
//
// # Secret Redaction
//
// Secrets are redacted at two layers:
//  1. Domain primitives (config.Secret type, the Secret field helper)
//  2. The encoder, by field name and by value pattern
//
// # Sampling
//
// Each level in SamplingConfig.Levels gets its own sampler:
//   - Trace: first 1 per second, drop rest
//   - Debug: first 10 per second, drop rest
//   - Info: first 100, then 1 every 10
//   - Warn: first 100, then 1 every 100
//   - Error+: never sampled
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Debug(ctx, "processing turn", tl.Input(input))
//	tl.AssertLogged(t, zapcore.DebugLevel, "processing turn")
//	tl.AssertNoInputLonger(t, logging.DefaultMaxInputLen)
//
// Logger is safe for concurrent use.
package logging
