package logging

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/govern/internal/config"
	"go.uber.org/zap/zapcore"
)

// maxPatternLen bounds operator-supplied redaction regexps.
const maxPatternLen = 1000

// Config holds logging configuration.
type Config struct {
	Level      zapcore.Level     `koanf:"level"`
	Format     string            `koanf:"format"` // json or console
	Output     OutputConfig      `koanf:"output"`
	Sampling   SamplingConfig    `koanf:"sampling"`
	Caller     CallerConfig      `koanf:"caller"`
	Stacktrace StacktraceConfig  `koanf:"stacktrace"`
	Fields     map[string]string `koanf:"fields"` // added to every entry
	Redaction  RedactionConfig   `koanf:"redaction"`
}

// OutputConfig selects sinks. Any combination may be enabled.
type OutputConfig struct {
	Stdout bool       `koanf:"stdout"`
	OTEL   bool       `koanf:"otel"`
	File   FileConfig `koanf:"file"`
}

// FileConfig enables rotating file output. An empty Path disables it.
type FileConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// SamplingConfig caps repeated messages per Tick. Exempt lists logger names
// whose entries always pass, such as the governance engine's decision log.
type SamplingConfig struct {
	Enabled bool                                  `koanf:"enabled"`
	Tick    config.Duration                       `koanf:"tick"`
	Levels  map[zapcore.Level]LevelSamplingConfig `koanf:"levels"`
	Exempt  []string                              `koanf:"exempt"`
}

// LevelSamplingConfig keeps the first Initial entries with the same message
// in each tick, then every Thereafter-th. Thereafter 0 drops the rest.
type LevelSamplingConfig struct {
	Initial    int `koanf:"initial"`
	Thereafter int `koanf:"thereafter"`
}

// CallerConfig annotates entries with the calling file and line. Skip
// drops extra frames for callers that wrap the zap logger themselves.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// StacktraceConfig attaches stacks at Level and above.
type StacktraceConfig struct {
	Level zapcore.Level `koanf:"level"`
}

// RedactionConfig masks fields by name and string values by pattern.
type RedactionConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Fields   []string `koanf:"fields"`
	Patterns []string `koanf:"patterns"`
}

// NewDefaultConfig returns the daemon's defaults: JSON to stdout, sampling
// on except for the governance logger, redaction of credentials and bank
// details.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{
			Stdout: true,
			File: FileConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
			},
		},
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    config.Duration(time.Second),
			Levels:  DefaultLevelSamplingConfig(),
			Exempt:  []string{"governance"},
		},
		Caller:     CallerConfig{Enabled: true},
		Stacktrace: StacktraceConfig{Level: zapcore.ErrorLevel},
		Fields:     map[string]string{"service": "governd"},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key", "authorization",
				"credential", "private_key", "dsn",
				"account_number", "routing_number", "iban",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
			},
		},
	}
}

// DefaultLevelSamplingConfig samples chatty levels hard and warnings
// lightly. Error and above have no entry and are never sampled.
func DefaultLevelSamplingConfig() map[zapcore.Level]LevelSamplingConfig {
	return map[zapcore.Level]LevelSamplingConfig{
		TraceLevel:         {Initial: 1},
		zapcore.DebugLevel: {Initial: 10},
		zapcore.InfoLevel:  {Initial: 100, Thereafter: 10},
		zapcore.WarnLevel:  {Initial: 100, Thereafter: 100},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if err := c.Output.validate(); err != nil {
		return err
	}
	if err := c.Sampling.validate(); err != nil {
		return err
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}
	if err := c.Redaction.validate(); err != nil {
		return err
	}
	for k, v := range c.Fields {
		if k == "" {
			return errors.New("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}

func (o OutputConfig) validate() error {
	if !o.Stdout && !o.OTEL && o.File.Path == "" {
		return errors.New("at least one output must be enabled (stdout, otel or file)")
	}
	if o.File.Path != "" && o.File.MaxSizeMB < 0 {
		return fmt.Errorf("file max_size_mb must be >= 0, got %d", o.File.MaxSizeMB)
	}
	return nil
}

func (s SamplingConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Tick.Duration() <= 0 {
		return errors.New("sampling tick must be > 0 when sampling enabled")
	}
	for lvl, rate := range s.Levels {
		if rate.Initial < 1 || rate.Thereafter < 0 {
			return fmt.Errorf("sampling for %s: initial must be >= 1 and thereafter >= 0", levelName(lvl))
		}
	}
	for _, name := range s.Exempt {
		if name == "" {
			return errors.New("sampling exempt logger name cannot be empty")
		}
	}
	return nil
}

func (r RedactionConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	for _, p := range r.Patterns {
		if len(p) > maxPatternLen {
			return fmt.Errorf("redaction pattern too long (max %d chars)", maxPatternLen)
		}
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
	}
	return nil
}
