package governance

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/rules"
)

// Config holds engine policy.
type Config struct {
	// MinSampleSize is the number of reviewed outcomes a rule needs before
	// it can be promoted.
	MinSampleSize int64
	// DefaultPromotionThreshold applies to rules created without one.
	DefaultPromotionThreshold float64
	// MaxAutonomousRisk is the highest risk a level-3 rule may auto-execute.
	// Only low and medium are accepted.
	MaxAutonomousRisk action.RiskLevel
	// DefaultExpiry is applied when a submission has no expiry. Zero means
	// proposals do not expire unless asked to.
	DefaultExpiry time.Duration
	// SweepBatchSize bounds how many overdue actions one sweep query loads.
	SweepBatchSize int
	// RuleCacheTTL bounds how stale the matcher's view of rules may be.
	RuleCacheTTL time.Duration
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{
		MinSampleSize:             20,
		DefaultPromotionThreshold: rules.DefaultPromotionThreshold,
		MaxAutonomousRisk:         action.RiskMedium,
		SweepBatchSize:            500,
		RuleCacheTTL:              rules.DefaultCacheTTL,
	}
}

// Validate checks the policy.
func (c Config) Validate() error {
	if c.MinSampleSize < 1 {
		return fmt.Errorf("min_sample_size must be at least 1, got %d", c.MinSampleSize)
	}
	if c.DefaultPromotionThreshold <= 0 || c.DefaultPromotionThreshold > 100 {
		return fmt.Errorf("default_promotion_threshold must be in (0, 100], got %v", c.DefaultPromotionThreshold)
	}
	if c.MaxAutonomousRisk != action.RiskLow && c.MaxAutonomousRisk != action.RiskMedium {
		return fmt.Errorf("max_autonomous_risk must be low or medium, got %q", c.MaxAutonomousRisk)
	}
	if c.DefaultExpiry < 0 {
		return fmt.Errorf("default_expiry must not be negative")
	}
	if c.SweepBatchSize < 1 {
		return fmt.Errorf("sweep_batch_size must be at least 1, got %d", c.SweepBatchSize)
	}
	if c.RuleCacheTTL < 0 {
		return fmt.Errorf("rule_cache_ttl must not be negative")
	}
	return nil
}
