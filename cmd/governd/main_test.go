package main

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/config"
)

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	t.Setenv("HOME", t.TempDir())
	t.Setenv("SERVER_HTTP_PORT", "19481")
	t.Setenv("STORE_DRIVER", "memory")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "")
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://localhost:19481/health")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 3*time.Second, 50*time.Millisecond)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	m, err := http.Get("http://localhost:19481/metrics")
	require.NoError(t, err)
	m.Body.Close()
	assert.Equal(t, http.StatusOK, m.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Governance.MaxAutonomousRisk = "low"
	cfg.Governance.MinSampleSize = 50

	ec := engineConfig(cfg.Governance)
	assert.Equal(t, action.RiskLow, ec.MaxAutonomousRisk)
	assert.Equal(t, int64(50), ec.MinSampleSize)
	assert.Equal(t, 95.0, ec.DefaultPromotionThreshold)
	assert.Equal(t, 500, ec.SweepBatchSize)
	assert.Equal(t, 5*time.Second, ec.RuleCacheTTL)
	require.NoError(t, ec.Validate())
}

func TestLoggingConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "console"
	cfg.Logging.File.Path = "/var/log/governd.log"

	lc := loggingConfig(cfg)
	assert.Equal(t, zapcore.DebugLevel, lc.Level)
	assert.Equal(t, "console", lc.Format)
	assert.Equal(t, "/var/log/governd.log", lc.Output.File.Path)
	assert.Equal(t, 100, lc.Output.File.MaxSizeMB)
	assert.Equal(t, version, lc.Fields["version"])
	require.NoError(t, lc.Validate())
}

func TestMCPLoggingConfig_NeverStdout(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	lc, err := mcpLoggingConfig(config.Default())
	require.NoError(t, err)
	assert.False(t, lc.Output.Stdout)
	assert.Equal(t, filepath.Join(home, ".config", "govern", mcpLogFile), lc.Output.File.Path)
	require.NoError(t, lc.Validate())

	cfg := config.Default()
	cfg.Logging.File.Path = "/tmp/custom.log"
	lc, err = mcpLoggingConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.log", lc.Output.File.Path)
}

func TestTelemetryConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "otel:4317"
	cfg.Telemetry.SamplingRate = 0.25
	cfg.Telemetry.Protocol = "http/protobuf"
	cfg.Telemetry.Environment = "staging"

	tc := telemetryConfig(cfg)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "otel:4317", tc.Endpoint)
	assert.Equal(t, "http/protobuf", string(tc.Protocol))
	assert.Equal(t, "staging", tc.Environment)
	assert.Equal(t, 0.25, tc.Sampling.Rate)
	assert.Equal(t, version, tc.ServiceVersion)
}

func TestOpenStore_Memory(t *testing.T) {
	st, err := openStore(context.Background(), config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := config.Default().Store
	cfg.DSN = config.Secret(filepath.Join(t.TempDir(), "govern.db"))

	st, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}
