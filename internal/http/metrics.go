package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// InstrumentationName scopes the HTTP meter.
const InstrumentationName = "github.com/fyrsmithlabs/govern/internal/http"

// requestMetrics instruments every routed request. Routes are labelled by
// their template (/api/v1/actions/:id) so ids never become label values.
type requestMetrics struct {
	requests  metric.Int64Counter
	latency   metric.Float64Histogram
	inFlight  metric.Int64UpDownCounter
	throttled metric.Int64Counter
}

func newRequestMetrics(meter metric.Meter, logger *zap.Logger) *requestMetrics {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	var m requestMetrics
	var errs, err error

	m.requests, err = meter.Int64Counter("govern.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status class."),
		metric.WithUnit("{request}"))
	errs = errors.Join(errs, err)

	m.latency, err = meter.Float64Histogram("govern.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status class."),
		metric.WithUnit("s"))
	errs = errors.Join(errs, err)

	m.inFlight, err = meter.Int64UpDownCounter("govern.http.active_requests",
		metric.WithDescription("HTTP requests currently being served."),
		metric.WithUnit("{request}"))
	errs = errors.Join(errs, err)

	m.throttled, err = meter.Int64Counter("govern.http.throttled_total",
		metric.WithDescription("Submissions refused by the per-agent rate limiter."),
		metric.WithUnit("{request}"))
	errs = errors.Join(errs, err)

	if errs != nil {
		logger.Warn("http instruments partially unavailable", zap.Error(errs))
	}
	return &m
}

func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			status := responseStatus(c, err)
			route := routeLabel(c)
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", route),
				attribute.String("status", statusClass(status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if status == http.StatusTooManyRequests && m.throttled != nil {
				m.throttled.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
			}
			return err
		}
	}
}

// responseStatus is the status the client will see. A handler error has not
// been written yet when middleware runs, so its code comes from the error.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// routeLabel returns the matched route template; unmatched requests share
// one label.
func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
