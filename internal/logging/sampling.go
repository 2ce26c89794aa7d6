package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// newSampledCore applies the per-level rates in cfg to core. Levels without
// a rate, Error and above, and loggers named in cfg.Exempt (or their
// children) are never sampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}
	tiers := make(map[zapcore.Level]zapcore.Core, len(cfg.Levels))
	for lvl, rate := range cfg.Levels {
		if lvl >= zapcore.ErrorLevel {
			continue
		}
		tiers[lvl] = zapcore.NewSamplerWithOptions(core, cfg.Tick.Duration(), rate.Initial, rate.Thereafter)
	}
	return &sampledCore{Core: core, tiers: tiers, exempt: cfg.Exempt}
}

// sampledCore routes each entry either through the sampler for its level or
// straight to the embedded core.
type sampledCore struct {
	zapcore.Core
	tiers  map[zapcore.Level]zapcore.Core
	exempt []string
}

func (c *sampledCore) With(fields []zapcore.Field) zapcore.Core {
	tiers := make(map[zapcore.Level]zapcore.Core, len(c.tiers))
	for lvl, tier := range c.tiers {
		tiers[lvl] = tier.With(fields)
	}
	return &sampledCore{Core: c.Core.With(fields), tiers: tiers, exempt: c.exempt}
}

func (c *sampledCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if tier, ok := c.tiers[e.Level]; ok && !c.isExempt(e.LoggerName) {
		return tier.Check(e, ce)
	}
	return c.Core.Check(e, ce)
}

func (c *sampledCore) isExempt(name string) bool {
	for _, x := range c.exempt {
		if name == x || strings.HasPrefix(name, x+".") {
			return true
		}
	}
	return false
}
