package logging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"syscall"

	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap logger whose methods take a context and prepend the
// correlation fields found there (trace, company, agent, reviewer, request).
type Logger struct {
	zap     *zap.Logger
	wrapped *zap.Logger // zap skipping this package's frames
	config  *Config
}

// wrapperFrames is the depth of Info -> write above zap.Check.
const wrapperFrames = 2

func wrap(z *zap.Logger, cfg *Config) *Logger {
	return &Logger{zap: z, wrapped: z.WithOptions(zap.AddCallerSkip(wrapperFrames)), config: cfg}
}

// NewLogger builds a logger from cfg. otelProvider may be nil, in which case
// the OTEL output is skipped even when enabled.
func NewLogger(cfg *Config, otelProvider log.LoggerProvider) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	core, err := newCore(cfg, otelProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create core: %w", err)
	}

	var opts []zap.Option
	if cfg.Caller.Enabled {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(cfg.Caller.Skip))
	}
	if cfg.Stacktrace.Level != 0 {
		opts = append(opts, zap.AddStacktrace(cfg.Stacktrace.Level))
	}
	if fields := constantFields(cfg.Fields); len(fields) > 0 {
		opts = append(opts, zap.Fields(fields...))
	}
	return wrap(zap.New(core, opts...), cfg), nil
}

// constantFields renders cfg.Fields in key order.
func constantFields(m map[string]string) []zap.Field {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.String(k, m[k]))
	}
	return fields
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = encodeLevel
	if format == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// write resolves context fields only for entries that will be written.
func (l *Logger) write(ctx context.Context, lvl zapcore.Level, msg string, fields []zap.Field) {
	if ce := l.wrapped.Check(lvl, msg); ce != nil {
		ce.Write(append(ContextFields(ctx), fields...)...)
	}
}

func (l *Logger) Trace(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, TraceLevel, msg, fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, zapcore.ErrorLevel, msg, fields)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, zapcore.FatalLevel, msg, fields)
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return wrap(l.zap.With(fields...), l.config)
}

func (l *Logger) Named(name string) *Logger {
	return wrap(l.zap.Named(name), l.config)
}

func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// Sync flushes buffered entries. Sync errors from terminals and pipes are
// ignored.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	if isStdoutSyncError(err) {
		return nil
	}
	return err
}

// Underlying returns the zap logger the domain packages take.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap
}

// isStdoutSyncError matches the EINVAL/ENOTTY Linux returns when syncing a
// terminal or pipe.
func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
