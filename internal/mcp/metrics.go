package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/governance"
	"github.com/fyrsmithlabs/govern/internal/store"
)

// InstrumentationName scopes the MCP meter.
const InstrumentationName = "github.com/fyrsmithlabs/govern/internal/mcp"

// errRateLimited marks a proposal refused by the per-agent limiter.
var errRateLimited = errors.New("rate limit exceeded")

// toolMetrics counts agent tool calls. A nil instrument is skipped.
type toolMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newToolMetrics(meter metric.Meter, logger *zap.Logger) *toolMetrics {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	var m toolMetrics
	var errs, err error

	m.calls, err = meter.Int64Counter("govern.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool calls by tool."),
		metric.WithUnit("{call}"))
	errs = errors.Join(errs, err)

	m.failures, err = meter.Int64Counter("govern.mcp.tool.errors_total",
		metric.WithDescription("Failed MCP tool calls by tool and reason."),
		metric.WithUnit("{call}"))
	errs = errors.Join(errs, err)

	m.latency, err = meter.Float64Histogram("govern.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call latency."),
		metric.WithUnit("s"))
	errs = errors.Join(errs, err)

	m.inFlight, err = meter.Int64UpDownCounter("govern.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls in progress."),
		metric.WithUnit("{call}"))
	errs = errors.Join(errs, err)

	if errs != nil {
		logger.Warn("mcp instruments partially unavailable", zap.Error(errs))
	}
	return &m
}

// begin marks a call to tool as in flight and returns the function that
// records its outcome.
func (m *toolMetrics) begin(ctx context.Context, tool string) func(error) {
	start := time.Now()
	byTool := metric.WithAttributes(attribute.String("tool", tool))
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, byTool)
	}
	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, byTool)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, byTool)
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(start).Seconds(), byTool)
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("reason", failureReason(err)),
			))
		}
	}
}

// failureReason buckets tool errors for the reason label.
func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	case errors.Is(err, governance.ErrValidation):
		return "validation_error"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, governance.ErrNotPending), errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicate):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, store.ErrClosed):
		return "storage_error"
	default:
		return "internal_error"
	}
}
