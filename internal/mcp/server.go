package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/governance"
	"github.com/fyrsmithlabs/govern/internal/ratelimit"
)

// Governor is the part of the engine agents may reach.
type Governor interface {
	Submit(ctx context.Context, req governance.SubmitRequest) (*action.Proposal, error)
	Get(ctx context.Context, id string) (*action.Proposal, error)
}

// Server is an MCP server backed by the governance engine.
type Server struct {
	mcp     *mcp.Server
	gov     Governor
	limiter *ratelimit.Keyed
	metrics *toolMetrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "governd")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// SubmitRate and SubmitBurst limit propose_action per (company, agent).
	// Zero rate disables limiting.
	SubmitRate  float64
	SubmitBurst int

	// Meter receives tool metrics; nil uses the global provider.
	Meter metric.Meter
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "governd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server.
func NewServer(cfg *Config, gov Governor) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if gov == nil {
		return nil, fmt.Errorf("governor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		gov:     gov,
		limiter: ratelimit.New(cfg.SubmitRate, cfg.SubmitBurst),
		metrics: newToolMetrics(cfg.Meter, logger),
		logger:  logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
