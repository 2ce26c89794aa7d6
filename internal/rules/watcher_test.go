package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlSeed), 0o600))

	u := newRecordingUpserter()
	w, err := NewWatcher(path, u, nil, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	sum, err := w.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Created)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	updated := `
rules:
  - id: small-outreach
    company_id: acme
    action_type: outreach
    agent: sourcing-agent
    risk_level: medium
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		r := u.get("small-outreach")
		return r != nil && r.RiskLevel == action.RiskMedium
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, w.Reloads(), 1)
}

func TestWatcher_BadFileKeepsRunning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlSeed), 0o600))

	u := newRecordingUpserter()
	w, err := NewWatcher(path, u, nil, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("rules: [this is not: valid"), 0o600))
	assert.Eventually(t, func() bool { return w.Reloads() >= 1 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(yamlSeed), 0o600))
	assert.Eventually(t, func() bool { return u.get("hazmat-anything") != nil }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlSeed), 0o600))

	w, err := NewWatcher(path, newRecordingUpserter(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()

	_, err = NewWatcher(path, nil, nil)
	assert.Error(t, err)
}
