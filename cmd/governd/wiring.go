package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/config"
	"github.com/fyrsmithlabs/govern/internal/events"
	"github.com/fyrsmithlabs/govern/internal/governance"
	"github.com/fyrsmithlabs/govern/internal/logging"
	"github.com/fyrsmithlabs/govern/internal/store"
	"github.com/fyrsmithlabs/govern/internal/telemetry"
)

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	if cfg.Driver == "memory" {
		return store.NewMemoryStore(), nil
	}
	st, err := store.OpenSQL(ctx, store.SQLConfig{
		Driver:       cfg.Driver,
		DSN:          cfg.DSN.Value(),
		MaxOpenConns: cfg.MaxOpenConns,
		BusyTimeout:  cfg.BusyTimeout.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}
	return st, nil
}

func connectEvents(cfg config.EventsConfig, logger *zap.Logger) (*events.NATSBroadcaster, error) {
	b, err := events.ConnectNATS(cfg.NATSURL, cfg.SubjectPrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting event broadcaster: %w", err)
	}
	return b, nil
}

func engineConfig(cfg config.GovernanceConfig) governance.Config {
	return governance.Config{
		MinSampleSize:             cfg.MinSampleSize,
		DefaultPromotionThreshold: cfg.DefaultPromotionThreshold,
		MaxAutonomousRisk:         action.RiskLevel(cfg.MaxAutonomousRisk),
		DefaultExpiry:             cfg.DefaultExpiry.Duration(),
		SweepBatchSize:            cfg.SweepBatchSize,
		RuleCacheTTL:              cfg.RuleCacheTTL.Duration(),
	}
}

func loggingConfig(cfg *config.Config) *logging.Config {
	lc := logging.NewDefaultConfig()
	if level, err := logging.LevelFromString(cfg.Logging.Level); err == nil {
		lc.Level = level
	}
	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	lc.Output.OTEL = cfg.Logging.OTEL
	lc.Output.File = logging.FileConfig{
		Path:       cfg.Logging.File.Path,
		MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
		MaxBackups: cfg.Logging.File.MaxBackups,
		MaxAgeDays: cfg.Logging.File.MaxAgeDays,
		Compress:   cfg.Logging.File.Compress,
	}
	lc.Fields["version"] = version
	return lc
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = telemetry.Protocol(cfg.Telemetry.Protocol)
	tc.Environment = cfg.Telemetry.Environment
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	tc.Insecure = cfg.Telemetry.Insecure
	tc.Sampling.Rate = cfg.Telemetry.SamplingRate
	return tc
}
