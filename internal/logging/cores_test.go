package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewCore_StdoutOnly(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.OTEL = false

	core, err := newCore(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, core)
}

func TestNewCore_OTELWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.OTEL = true

	// A nil provider skips the bridge and keeps stdout.
	core, err := newCore(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, core)
}

func TestNewCore_NoOutputs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = false

	_, err := newCore(cfg, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")
}

func TestNewLogger_FileOutputRedacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governd.log")

	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.File.Path = path
	cfg.Sampling.Enabled = false
	cfg.Caller.Enabled = false

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	logger.Info(context.Background(), "invoice approved",
		zap.String("action_id", "a-1"),
		zap.String("account_number", "000123456789"),
		zap.String("routing_number", "021000021"),
	)
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	assert.NotContains(t, line, "000123456789")
	assert.NotContains(t, line, "021000021")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "invoice approved", entry["msg"])
	assert.Equal(t, "a-1", entry["action_id"])
	assert.Equal(t, "[REDACTED]", entry["account_number"])
	assert.Equal(t, "governd", entry["service"])
}
