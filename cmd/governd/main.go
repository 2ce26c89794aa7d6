// Governd is the action governance daemon.
//
// It serves the REST API that agents submit proposals to and reviewers
// decide them through, sweeps expired proposals in the background and,
// when configured, publishes every transition to NATS.
//
// Usage:
//
//	# Start the daemon with ~/.config/govern/config.yaml
//	governd
//
//	# Explicit config file, environment overrides
//	STORE_DRIVER=postgres STORE_DSN=postgres://... governd -config /etc/govern/config.yaml
//
//	# Serve the agent-facing MCP tools on stdio
//	governd mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/config"
	"github.com/fyrsmithlabs/govern/internal/governance"
	"github.com/fyrsmithlabs/govern/internal/http"
	"github.com/fyrsmithlabs/govern/internal/logging"
	"github.com/fyrsmithlabs/govern/internal/metrics"
	"github.com/fyrsmithlabs/govern/internal/rules"
	"github.com/fyrsmithlabs/govern/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// seedActor is recorded on audit entries written by seed imports.
const seedActor = "seed-file"

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/govern/config.yaml)")
	flag.Parse()
	args := flag.Args()

	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "serve":
		err = run(ctx, *configPath)
	case "mcp":
		err = runMCP(ctx, *configPath)
	case "version":
		printVersion()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprintf(os.Stderr, "\nUsage:\n")
		fmt.Fprintf(os.Stderr, "  governd [-config path]          Start the governance daemon\n")
		fmt.Fprintf(os.Stderr, "  governd [-config path] mcp      Serve MCP tools on stdio\n")
		fmt.Fprintf(os.Stderr, "  governd version                 Show version information\n")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("governd: %v", err)
	}
}

func printVersion() {
	fmt.Printf("governd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled.
//
// Startup order:
//  1. Configuration, telemetry and logging
//  2. Store and event broadcaster
//  3. Engine, then the seed import so rules exist before traffic
//  4. Expiry sweeper and seed watcher
//  5. HTTP server with /metrics
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := newApp(ctx, cfg, loggingConfig(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger.Underlying()

	logger.Info("starting governd",
		zap.String("version", version),
		zap.String("store", cfg.Store.Driver),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("events", cfg.Events.Enabled),
	)

	if cfg.Rules.SeedFile != "" {
		watcher, err := rules.NewWatcher(cfg.Rules.SeedFile, a.engine, logger)
		if err != nil {
			return err
		}
		sum, err := watcher.Reload(ctx)
		if err != nil {
			return fmt.Errorf("importing rule seed file: %w", err)
		}
		logger.Info("rule seed imported",
			zap.String("path", cfg.Rules.SeedFile),
			zap.Int("created", sum.Created),
			zap.Int("updated", sum.Updated),
			zap.Int("unchanged", sum.Unchanged),
		)
		if cfg.Rules.Watch {
			if err := watcher.Start(ctx); err != nil {
				return err
			}
			defer watcher.Stop()
		}
	}

	sweeper, err := governance.NewSweeper(a.engine, logger,
		governance.WithSweepInterval(cfg.Governance.SweepInterval.Duration()))
	if err != nil {
		return err
	}
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	srv, err := http.NewServer(a.engine, logger, &http.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		SubmitRate:  cfg.Server.SubmitRate,
		SubmitBurst: cfg.Server.SubmitBurst,
		Meter:       a.tel.Meter(http.InstrumentationName),
	})
	if err != nil {
		return err
	}
	srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("governd stopped")
	return nil
}

// app holds what both serve and mcp modes need.
type app struct {
	tel     *telemetry.Telemetry
	logger  *logging.Logger
	closers []func() error
	engine  *governance.Engine
}

func newApp(ctx context.Context, cfg *config.Config, lc *logging.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.tel, err = telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	a.logger, err = logging.NewLogger(lc, a.tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := a.logger.Underlying()
	if h := a.tel.Health(); h.Degraded {
		logger.Warn("telemetry degraded", zap.String("reason", h.Reason))
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	opts := []governance.Option{
		governance.WithMetrics(metrics.New()),
		governance.WithTracer(a.tel.Tracer(governance.InstrumentationName)),
	}
	if cfg.Events.Enabled {
		b, err := connectEvents(cfg.Events, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		opts = append(opts, governance.WithBroadcaster(b))
	}

	a.engine, err = governance.NewEngine(st, engineConfig(cfg.Governance), logger.Named("governance"), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return a, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Underlying().Warn("close failed", zap.Error(err))
		}
	}
	if a.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.tel.Shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
