package logging

import (
	"context"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 7)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if v := stringValue(ctx, companyCtxKey{}); v != "" {
		fields = append(fields, zap.String("company.id", v))
	}
	if v := stringValue(ctx, agentCtxKey{}); v != "" {
		fields = append(fields, zap.String("agent", v))
	}
	if v := stringValue(ctx, reviewerCtxKey{}); v != "" {
		fields = append(fields, zap.String("reviewer", v))
	}
	if v := stringValue(ctx, requestCtxKey{}); v != "" {
		fields = append(fields, zap.String("request.id", v))
	}

	return fields
}

type companyCtxKey struct{}
type agentCtxKey struct{}
type reviewerCtxKey struct{}
type requestCtxKey struct{}

const maxIDLen = 128

// idPattern allows the characters company, agent and reviewer names use in
// practice: alphanumerics plus - _ . @
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)

func validID(id string) bool {
	return id != "" && utf8.ValidString(id) && len(id) <= maxIDLen && idPattern.MatchString(id)
}

// with stores v under key. Values that fail validation are dropped so
// caller-supplied headers cannot inject arbitrary log content.
func with(ctx context.Context, key any, v string) context.Context {
	if !validID(v) {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key any) string {
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// WithCompany adds the tenant ID to context.
func WithCompany(ctx context.Context, companyID string) context.Context {
	return with(ctx, companyCtxKey{}, companyID)
}

// CompanyFromContext returns the tenant ID, or "".
func CompanyFromContext(ctx context.Context) string {
	return stringValue(ctx, companyCtxKey{})
}

// WithAgent adds the proposing agent to context.
func WithAgent(ctx context.Context, agent string) context.Context {
	return with(ctx, agentCtxKey{}, agent)
}

// AgentFromContext returns the proposing agent, or "".
func AgentFromContext(ctx context.Context) string {
	return stringValue(ctx, agentCtxKey{})
}

// WithReviewer adds the acting human to context.
func WithReviewer(ctx context.Context, reviewer string) context.Context {
	return with(ctx, reviewerCtxKey{}, reviewer)
}

// ReviewerFromContext returns the acting human, or "".
func ReviewerFromContext(ctx context.Context) string {
	return stringValue(ctx, reviewerCtxKey{})
}

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestCtxKey{})
}

type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return wrap(zap.NewNop(), NewDefaultConfig())
}
