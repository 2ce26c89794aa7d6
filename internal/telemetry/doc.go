// Package telemetry exports governd traces and metrics over OTLP.
//
// New builds the tracer and meter providers (gRPC by default, HTTP/protobuf
// on request) and installs them as the otel globals, so the governance
// engine spans and the HTTP and MCP instruments need no further wiring:
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Every govern.*duration_seconds histogram shares one bucket layout.
// Exporter construction failures leave the daemon running with no-op
// providers; Health reports each one.
//
// Tests use NewTestTelemetry, which records spans synchronously and reads
// metrics on demand:
//
//	tt := telemetry.NewTestTelemetry()
//	engine, _ := governance.NewEngine(st, cfg, logger,
//	    governance.WithTracer(tt.Tracer(governance.InstrumentationName)))
//	tt.AssertSpanExists(t, "governance.submit")
package telemetry
