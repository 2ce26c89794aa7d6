// Package http exposes the governance engine over a REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/governance"
	"github.com/fyrsmithlabs/govern/internal/logging"
	"github.com/fyrsmithlabs/govern/internal/ratelimit"
	"github.com/fyrsmithlabs/govern/internal/rules"
	"github.com/fyrsmithlabs/govern/internal/store"
)

// ActorHeader names the caller for audit entries. Authentication happens in
// front of this service.
const ActorHeader = "X-Actor"

// Governor is the engine surface the API serves.
type Governor interface {
	Submit(ctx context.Context, req governance.SubmitRequest) (*action.Proposal, error)
	Get(ctx context.Context, id string) (*action.Proposal, error)
	ListPending(ctx context.Context, f store.ActionFilter) ([]*action.Proposal, error)
	Review(ctx context.Context, req governance.ReviewRequest) (*action.Proposal, error)
	Assign(ctx context.Context, id, reviewer, actor string) (*action.Proposal, error)
	SweepExpired(ctx context.Context) (int, error)

	CreateRule(ctx context.Context, in governance.RuleInput, actor string) (*rules.Rule, error)
	UpdateRule(ctx context.Context, id string, u governance.RuleUpdate, actor string) (*rules.Rule, error)
	DeactivateRule(ctx context.Context, id, actor string) (*rules.Rule, error)
	GetRule(ctx context.Context, id string) (*rules.Rule, error)
	ListRules(ctx context.Context, f store.RuleFilter) ([]*rules.Rule, error)
	GetRuleStats(ctx context.Context, id string) (rules.Stats, error)
	RevokeLevel3(ctx context.Context, id, actor, reason string) (*rules.Rule, error)

	ListAudit(ctx context.Context, q audit.Query) ([]*audit.Entry, error)
	Ping(ctx context.Context) error
}

// Server provides HTTP endpoints for the governance engine.
type Server struct {
	echo    *echo.Echo
	gov     Governor
	limiter *ratelimit.Keyed
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// SubmitRate is the sustained submissions per second allowed per
	// (company, agent). Zero disables limiting.
	SubmitRate  float64
	SubmitBurst int
	// Meter receives request metrics; nil uses the global provider.
	Meter metric.Meter
}

// NewServer creates a new HTTP server.
func NewServer(gov Governor, logger *zap.Logger, cfg *Config) (*Server, error) {
	if gov == nil {
		return nil, fmt.Errorf("governor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9480,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(newRequestMetrics(cfg.Meter, logger).middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			ctx = logging.WithReviewer(ctx, req.Header.Get(ActorHeader))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			fields := append(logging.ContextFields(ctx),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", responseStatus(c, err)),
				zap.Duration("duration", time.Since(start)),
			)
			logger.Info("http request", fields...)
			return err
		}
	})

	s := &Server{
		echo:    e,
		gov:     gov,
		limiter: ratelimit.New(cfg.SubmitRate, cfg.SubmitBurst),
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

// Echo exposes the router so callers can mount extra handlers.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")

	v1.POST("/actions", s.handleSubmit)
	v1.GET("/actions", s.handleListPending)
	v1.POST("/actions/sweep", s.handleSweep)
	v1.GET("/actions/:id", s.handleGetAction)
	v1.POST("/actions/:id/review", s.handleReview)
	v1.POST("/actions/:id/assign", s.handleAssign)

	v1.POST("/rules", s.handleCreateRule)
	v1.GET("/rules", s.handleListRules)
	v1.GET("/rules/:id", s.handleGetRule)
	v1.PUT("/rules/:id", s.handleUpdateRule)
	v1.DELETE("/rules/:id", s.handleDeactivateRule)
	v1.GET("/rules/:id/stats", s.handleRuleStats)
	v1.POST("/rules/:id/revoke", s.handleRevokeLevel3)

	v1.GET("/audit", s.handleListAudit)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// toHTTPError maps engine errors onto status codes. Unknown errors are
// logged and hidden behind a 500.
func (s *Server) toHTTPError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, governance.ErrValidation),
		errors.Is(err, audit.ErrInvalidQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func actor(c echo.Context) string {
	return c.Request().Header.Get(ActorHeader)
}
