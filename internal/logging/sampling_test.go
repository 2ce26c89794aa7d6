package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/govern/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampled(t *testing.T, levels map[zapcore.Level]LevelSamplingConfig, exempt ...string) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(TraceLevel)
	return zap.New(newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Hour),
		Levels:  levels,
		Exempt:  exempt,
	})), logs
}

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{Levels: DefaultLevelSamplingConfig()}))
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{Enabled: true}))
}

func TestSampledCore_PerLevelRates(t *testing.T) {
	logger, logs := sampled(t, map[zapcore.Level]LevelSamplingConfig{
		zapcore.DebugLevel: {Initial: 2},
		zapcore.InfoLevel:  {Initial: 3, Thereafter: 5},
	})

	for i := 0; i < 20; i++ {
		logger.Debug("cache miss")
		logger.Info("proposal submitted")
		logger.Warn("slow store")
	}

	assert.Equal(t, 2, logs.FilterMessage("cache miss").Len())
	// first 3, then the 8th, 13th and 18th
	assert.Equal(t, 6, logs.FilterMessage("proposal submitted").Len())
	assert.Equal(t, 20, logs.FilterMessage("slow store").Len(), "levels without a rate pass through")
}

func TestSampledCore_ErrorsNeverSampled(t *testing.T) {
	logger, logs := sampled(t, map[zapcore.Level]LevelSamplingConfig{
		zapcore.ErrorLevel: {Initial: 1},
	})
	for i := 0; i < 50; i++ {
		logger.Error("store unavailable")
	}
	assert.Equal(t, 50, logs.Len())
}

func TestSampledCore_ExemptLoggers(t *testing.T) {
	logger, logs := sampled(t, map[zapcore.Level]LevelSamplingConfig{
		zapcore.InfoLevel: {Initial: 1},
	}, "governance")

	engine := logger.Named("governance")
	matcher := engine.Named("matcher")
	other := logger.Named("governance-ui")
	for i := 0; i < 10; i++ {
		engine.Info("proposal reviewed")
		matcher.Info("rule matched")
		other.Info("render")
		logger.Info("http request")
	}

	assert.Equal(t, 10, logs.FilterMessage("proposal reviewed").Len())
	assert.Equal(t, 10, logs.FilterMessage("rule matched").Len())
	assert.Equal(t, 1, logs.FilterMessage("render").Len(), "only exact names and their children are exempt")
	assert.Equal(t, 1, logs.FilterMessage("http request").Len())
}

func TestSampledCore_WithSharesCounts(t *testing.T) {
	logger, logs := sampled(t, map[zapcore.Level]LevelSamplingConfig{
		zapcore.InfoLevel: {Initial: 2},
	})
	child := logger.With(zap.String("company.id", "acme"))

	logger.Info("proposal submitted")
	child.Info("proposal submitted")
	child.Info("proposal submitted")

	entries := logs.FilterMessage("proposal submitted").All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "acme", entries[1].ContextMap()["company.id"])
}
