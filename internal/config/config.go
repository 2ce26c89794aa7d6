// Package config provides configuration loading for governd.
//
// Configuration is loaded from an optional YAML file and environment
// variables, falling back to defaults. Every section is validated before
// the daemon starts.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete governd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Governance GovernanceConfig `koanf:"governance"`
	Events     EventsConfig     `koanf:"events"`
	Rules      RulesConfig      `koanf:"rules"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	SubmitRate      float64  `koanf:"submit_rate"` // proposals per second per company/agent, 0 disables
	SubmitBurst     int      `koanf:"submit_burst"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver       string   `koanf:"driver"` // sqlite, postgres or memory
	DSN          Secret   `koanf:"dsn"`
	MaxOpenConns int      `koanf:"max_open_conns"`
	BusyTimeout  Duration `koanf:"busy_timeout"`
}

// GovernanceConfig holds engine tuning.
type GovernanceConfig struct {
	MinSampleSize             int64    `koanf:"min_sample_size"`
	DefaultPromotionThreshold float64  `koanf:"default_promotion_threshold"`
	MaxAutonomousRisk         string   `koanf:"max_autonomous_risk"`
	RuleCacheTTL              Duration `koanf:"rule_cache_ttl"`
	SweepInterval             Duration `koanf:"sweep_interval"`
	SweepBatchSize            int      `koanf:"sweep_batch_size"`
	DefaultExpiry             Duration `koanf:"default_expiry"` // 0 means proposals never expire by default
}

// EventsConfig controls lifecycle event publishing.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// RulesConfig points at the optional rule seed file.
type RulesConfig struct {
	SeedFile string `koanf:"seed_file"`
	Watch    bool   `koanf:"watch"`
}

// LoggingConfig holds the logging settings the daemon maps onto the
// logging package.
type LoggingConfig struct {
	Level  string        `koanf:"level"`
	Format string        `koanf:"format"`
	OTEL   bool          `koanf:"otel"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig enables rotating file output.
type LogFileConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	Protocol     string  `koanf:"protocol"`
	ServiceName  string  `koanf:"service_name"`
	Environment  string  `koanf:"environment"`
	Insecure     bool    `koanf:"insecure"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9480,
			ShutdownTimeout: Duration(10 * time.Second),
			SubmitRate:      5,
			SubmitBurst:     20,
		},
		Store: StoreConfig{
			Driver:       "sqlite",
			DSN:          Secret("govern.db"),
			MaxOpenConns: 1,
			BusyTimeout:  Duration(5 * time.Second),
		},
		Governance: GovernanceConfig{
			MinSampleSize:             20,
			DefaultPromotionThreshold: 95,
			MaxAutonomousRisk:         "medium",
			RuleCacheTTL:              Duration(5 * time.Second),
			SweepInterval:             Duration(30 * time.Second),
			SweepBatchSize:            500,
		},
		Events: EventsConfig{
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "govern",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: LogFileConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
			},
		},
		Telemetry: TelemetryConfig{
			Endpoint:     "localhost:4317",
			ServiceName:  "governd",
			Insecure:     true,
			SamplingRate: 1.0,
		},
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - The store driver is unknown, or a SQL driver has no DSN
//   - Governance tuning is out of range
//   - Events are enabled without a NATS URL
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.SubmitRate < 0 || c.Server.SubmitBurst < 0 {
		return errors.New("submit rate and burst must not be negative")
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if !c.Store.DSN.IsSet() {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q (want sqlite, postgres or memory)", c.Store.Driver)
	}

	g := c.Governance
	if g.MinSampleSize < 1 {
		return fmt.Errorf("governance.min_sample_size must be >= 1, got %d", g.MinSampleSize)
	}
	if g.DefaultPromotionThreshold <= 0 || g.DefaultPromotionThreshold > 100 {
		return fmt.Errorf("governance.default_promotion_threshold must be in (0, 100], got %v", g.DefaultPromotionThreshold)
	}
	switch strings.ToLower(g.MaxAutonomousRisk) {
	case "low", "medium":
	default:
		return fmt.Errorf("governance.max_autonomous_risk must be low or medium, got %q", g.MaxAutonomousRisk)
	}
	if g.SweepInterval <= 0 {
		return errors.New("governance.sweep_interval must be positive")
	}
	if g.SweepBatchSize < 1 {
		return fmt.Errorf("governance.sweep_batch_size must be >= 1, got %d", g.SweepBatchSize)
	}

	if c.Events.Enabled && c.Events.NATSURL == "" {
		return errors.New("events.nats_url is required when events are enabled")
	}
	if c.Rules.Watch && c.Rules.SeedFile == "" {
		return errors.New("rules.watch requires rules.seed_file")
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	return nil
}
