// Package telemetry provides OpenTelemetry tracing and metrics for dialogd.
//
// Spans and OTLP metrics are exported to a collector over grpc or
// http/protobuf. Prometheus metrics are separate and live with the
// packages that record them.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version),
//	    telemetry.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, span := tel.Tracer("dialogd/orchestrator").Start(ctx, "orchestrator.ProcessTurn")
//	defer span.End()
//
// # Configuration
//
//	observability:
//	  enable_telemetry: true
//	  otlp_endpoint: "localhost:4317"
//	  otlp_protocol: grpc
//	  service_name: dialogd
//	  sample_rate: 1.0
//
// # Error Handling
//
// Telemetry failures do not stop the daemon. A provider that cannot be
// built marks the instance degraded; Health reports why.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
