// Package logging provides structured logging with OpenTelemetry integration.
//
// The package wraps Zap with:
//   - A Trace level below Debug, encoded as "trace"
//   - Stdout, rotating file and OpenTelemetry outputs
//   - Context field injection (trace_id, company.id, agent, reviewer, request.id)
//   - Field-name and pattern redaction, covering bank details on invoices
//   - Per-level sampling with exempt loggers (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	cfg.Output.File.Path = "/var/log/governd/governd.log"
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Domain packages take the *zap.Logger from Underlying. Request handlers
// enrich the context so every line carries the tenant and actor:
//
//	ctx = logging.WithCompany(ctx, "acme")
//	ctx = logging.WithReviewer(ctx, "dana")
//	logger.Info(ctx, "proposal reviewed", zap.String("status", "approved"))
//
// Context values that are empty, too long or contain characters outside
// [a-zA-Z0-9_.@-] are dropped rather than logged.
//
// # Sampling
//
//   - Trace: first 1 per second, drop rest
//   - Debug: first 10 per second, drop rest
//   - Info: first 100, then 1 every 10
//   - Warn: first 100, then 1 every 100
//   - Error+: never sampled
//
// Entries from the "governance" logger and its children are exempt, so
// every submission, review and promotion is logged. cmd/governd hands the
// engine logger.Named("governance").
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertNoSecrets(t)
package logging
