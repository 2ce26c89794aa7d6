package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/govern/internal/governance"
	"github.com/fyrsmithlabs/govern/internal/store"
	"github.com/fyrsmithlabs/govern/internal/telemetry"
)

func TestRequestMetrics(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	server, _ := setupTestServer(t, &Config{
		Host:        "localhost",
		SubmitRate:  0.001,
		SubmitBurst: 1,
		Meter:       tt.Meter(InstrumentationName),
	})
	ctx := context.Background()

	require.Equal(t, http.StatusOK, doJSON(t, server, http.MethodGet, "/health", nil).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, server, http.MethodPost, "/api/v1/actions", submitBody()).Code)
	require.Equal(t, http.StatusTooManyRequests, doJSON(t, server, http.MethodPost, "/api/v1/actions", submitBody()).Code)
	require.Equal(t, http.StatusNotFound, doJSON(t, server, http.MethodGet, "/api/v1/actions/missing", nil).Code)

	total, ok := tt.Int64Sum(ctx, "govern.http.requests_total")
	require.True(t, ok)
	assert.Equal(t, int64(4), total)

	notFound, _ := tt.Int64Sum(ctx, "govern.http.requests_total",
		attribute.String("route", "/api/v1/actions/:id"), attribute.String("status", "4xx"))
	assert.Equal(t, int64(1), notFound)

	throttled, ok := tt.Int64Sum(ctx, "govern.http.throttled_total", attribute.String("route", "/api/v1/actions"))
	require.True(t, ok)
	assert.Equal(t, int64(1), throttled)

	active, ok := tt.Int64Sum(ctx, "govern.http.active_requests")
	require.True(t, ok)
	assert.Zero(t, active)

	n, _, ok := tt.HistogramCount(ctx, "govern.http.request_duration_seconds")
	require.True(t, ok)
	assert.Equal(t, uint64(4), n)
}

func TestRequestLog_ErrorStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	engine, err := governance.NewEngine(store.NewMemoryStore(), governance.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	server, err := NewServer(engine, zap.New(core), nil)
	require.NoError(t, err)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/actions/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusNotFound), entries[0].ContextMap()["status"])
}

func TestResponseStatus(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	c.Response().WriteHeader(http.StatusAccepted)
	assert.Equal(t, http.StatusAccepted, responseStatus(c, nil))
	assert.Equal(t, http.StatusConflict, responseStatus(c, echo.NewHTTPError(http.StatusConflict, "taken")))
	assert.Equal(t, http.StatusInternalServerError, responseStatus(c, errors.New("boom")))
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{
		200: "2xx",
		201: "2xx",
		409: "4xx",
		429: "4xx",
		503: "5xx",
		0:   "unknown",
		999: "unknown",
	} {
		assert.Equal(t, want, statusClass(code), code)
	}
}

func TestRouteLabel(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/nowhere", nil), httptest.NewRecorder())
	assert.Equal(t, "unmatched", routeLabel(c))

	c.SetPath("/api/v1/rules/:id")
	assert.Equal(t, "/api/v1/rules/:id", routeLabel(c))
}
