package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry is a Telemetry whose spans land in memory as they end and
// whose metrics are read on demand. It does not touch the otel globals.
type TestTelemetry struct {
	*Telemetry

	spans  *tracetest.InMemoryExporter
	reader *sdkmetric.ManualReader
}

// NewTestTelemetry returns an enabled in-memory Telemetry.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	res := newResource(cfg)

	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	return &TestTelemetry{
		Telemetry: &Telemetry{
			config:         cfg,
			tracerProvider: trace.NewTracerProvider(trace.WithSyncer(spans), trace.WithResource(res)),
			meterProvider: sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(reader),
				sdkmetric.WithResource(res),
				sdkmetric.WithView(latencyView()),
			),
		},
		spans:  spans,
		reader: reader,
	}
}

// Spans returns every ended span in end order.
func (t *TestTelemetry) Spans() tracetest.SpanStubs {
	return t.spans.GetSpans()
}

// SpanByName returns the most recently ended span called name, or nil.
func (t *TestTelemetry) SpanByName(name string) trace.ReadOnlySpan {
	spans := t.Spans()
	for i := len(spans) - 1; i >= 0; i-- {
		if spans[i].Name == name {
			return spans[i].Snapshot()
		}
	}
	return nil
}

// Reset drops recorded spans.
func (t *TestTelemetry) Reset() {
	t.spans.Reset()
}

// AssertSpanExists fails tb unless a span called name has ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.SpanByName(name) == nil {
		names := make([]string, 0, len(t.Spans()))
		for _, s := range t.Spans() {
			names = append(names, s.Name)
		}
		tb.Errorf("no span %q; recorded: %v", name, names)
	}
}

// AssertSpanAttribute fails tb unless span name carries key with value want.
// Integer attributes compare as int64.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, want any) {
	tb.Helper()
	span := t.SpanByName(name)
	if span == nil {
		tb.Fatalf("no span %q", name)
	}
	for _, kv := range span.Attributes() {
		if string(kv.Key) != key {
			continue
		}
		if got := kv.Value.AsInterface(); got != want {
			tb.Errorf("span %q %s = %v (%T), want %v (%T)", name, key, got, got, want, want)
		}
		return
	}
	tb.Errorf("span %q has no attribute %q", name, key)
}

// Collect reads the current value of every instrument.
func (t *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := t.reader.Collect(ctx, &rm)
	return rm, err
}

// Int64Sum totals the data points of the int64 counter or up-down counter
// called name whose attributes include every filter. It returns false when
// no such instrument was recorded.
func (t *TestTelemetry) Int64Sum(ctx context.Context, name string, filter ...attribute.KeyValue) (int64, bool) {
	rm, err := t.Collect(ctx)
	if err != nil {
		return 0, false
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				return 0, false
			}
			var total int64
			for _, dp := range sum.DataPoints {
				if hasAll(dp.Attributes, filter) {
					total += dp.Value
				}
			}
			return total, true
		}
	}
	return 0, false
}

// HistogramCount returns how many observations the float64 histogram called
// name received, with its bucket bounds.
func (t *TestTelemetry) HistogramCount(ctx context.Context, name string) (uint64, []float64, bool) {
	rm, err := t.Collect(ctx)
	if err != nil {
		return 0, nil, false
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			h, ok := m.Data.(metricdata.Histogram[float64])
			if !ok || len(h.DataPoints) == 0 {
				return 0, nil, false
			}
			var n uint64
			for _, dp := range h.DataPoints {
				n += dp.Count
			}
			return n, h.DataPoints[0].Bounds, true
		}
	}
	return 0, nil, false
}

func hasAll(set attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		v, ok := set.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}
