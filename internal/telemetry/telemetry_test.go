package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	require.NoError(t, tel.ForceFlush(context.Background()))
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_WithInjectedPipeline(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Environment = "test"
	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	tel, err := New(context.Background(), cfg, WithSpanExporter(spans), WithMetricReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	assert.True(t, tel.IsEnabled())
	assert.False(t, tel.Health().Degraded)

	_, span := tel.Tracer("govern-test").Start(context.Background(), "governance.submit")
	span.End()

	got := spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, "governance.submit", got[0].Name)

	env, ok := got[0].Resource.Set().Value("deployment.environment")
	require.True(t, ok)
	assert.Equal(t, "test", env.AsString())
	svc, ok := got[0].Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "governd", svc.AsString())
}

func TestNew_MetricsOff(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Metrics = false

	tel, err := New(context.Background(), cfg, WithSpanExporter(tracetest.NewInMemoryExporter()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	assert.Nil(t, tel.meterProvider)
	assert.NotNil(t, tel.Meter("x"))
}

func TestTelemetry_NilReceiver(t *testing.T) {
	var tel *Telemetry

	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.Nil(t, tel.LoggerProvider())
	assert.False(t, tel.IsEnabled())
	tel.SetLoggerProvider(nil)
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))

	hs := tel.Health()
	assert.True(t, hs.Degraded)
	assert.NotEmpty(t, hs.Reason)
}

func TestTelemetry_DegradeAccumulates(t *testing.T) {
	tel := &Telemetry{config: NewDefaultConfig()}
	tel.degrade("tracing disabled: %s", "dial refused")
	tel.degrade("metrics disabled: %s", "dial refused")

	hs := tel.Health()
	assert.True(t, hs.Healthy)
	assert.True(t, hs.Degraded)
	assert.Equal(t, "tracing disabled: dial refused; metrics disabled: dial refused", hs.Reason)
}

func TestTelemetry_ShutdownMarksUnhealthy(t *testing.T) {
	tt := NewTestTelemetry()
	tt.config.ShutdownTimeout = 100 * time.Millisecond

	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.Health().Healthy)
	assert.False(t, tt.IsEnabled())
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestClientTLS(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Nil(t, clientTLS(cfg))

	cfg.Insecure = false
	assert.Nil(t, clientTLS(cfg))

	cfg.TLSSkipVerify = true
	tlsCfg := clientTLS(cfg)
	require.NotNil(t, tlsCfg)
	assert.True(t, tlsCfg.InsecureSkipVerify)
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()
	tracer := tt.Tracer("govern-test")

	_, span := tracer.Start(ctx, "governance.review")
	span.SetAttributes(attribute.String("decision", "reject"), attribute.Int("attempt", 2))
	span.End()
	_, span = tracer.Start(ctx, "governance.sweep")
	span.End()

	tt.AssertSpanExists(t, "governance.review")
	tt.AssertSpanAttribute(t, "governance.review", "decision", "reject")
	tt.AssertSpanAttribute(t, "governance.review", "attempt", int64(2))
	assert.Len(t, tt.Spans(), 2)
	assert.Nil(t, tt.SpanByName("governance.promote"))

	tt.Reset()
	assert.Empty(t, tt.Spans())
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()
	meter := tt.Meter("govern-test")

	counter, err := meter.Int64Counter("govern.test.decisions_total")
	require.NoError(t, err)
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("decision", "approve")))
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", "reject")))

	hist, err := meter.Float64Histogram("govern.test.duration_seconds")
	require.NoError(t, err)
	hist.Record(ctx, 0.003)

	total, ok := tt.Int64Sum(ctx, "govern.test.decisions_total")
	require.True(t, ok)
	assert.Equal(t, int64(3), total)

	approved, ok := tt.Int64Sum(ctx, "govern.test.decisions_total", attribute.String("decision", "approve"))
	require.True(t, ok)
	assert.Equal(t, int64(2), approved)

	n, bounds, ok := tt.HistogramCount(ctx, "govern.test.duration_seconds")
	require.True(t, ok)
	assert.Equal(t, uint64(1), n)
	assert.Equal(t, latencyBuckets, bounds)

	_, ok = tt.Int64Sum(ctx, "govern.test.missing")
	assert.False(t, ok)
}
