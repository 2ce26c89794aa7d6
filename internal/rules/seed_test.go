package rules

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/condition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlSeed = `
rules:
  - id: small-outreach
    company_id: acme
    action_type: outreach
    agent: sourcing-agent
    name: Small loads
    condition:
      field: amount
      operator: less_than
      value: 5000
    risk_level: low
    priority: 10
  - id: hazmat-anything
    action_type: acceptance
    condition:
      field: equipment
      operator: in
      value: [hazmat, tanker]
    risk_level: critical
    priority: 100
    active: false
`

const tomlSeed = `
[[rules]]
id = "invoice-small"
company_id = "acme"
action_type = "invoice_approval"
agent = "billing-agent"
risk_level = "low"
promotion_threshold = 90.0

[rules.condition]
field = "amount"
operator = "less_or_equal"
value = 1500
`

var seedNow = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func TestParseSeed_YAML(t *testing.T) {
	defs, err := ParseSeed([]byte(yamlSeed), "yaml", seedNow)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	small := defs[0]
	assert.Equal(t, "small-outreach", small.ID)
	assert.Equal(t, action.TypeOutreach, small.ActionType)
	assert.Equal(t, action.RiskLow, small.RiskLevel)
	assert.Equal(t, DefaultPromotionThreshold, small.PromotionThreshold)
	assert.True(t, small.Active)
	require.NotNil(t, small.Condition)
	assert.Equal(t, condition.OpLessThan, small.Condition.Operator)
	assert.True(t, condition.Evaluate(*small.Condition, condition.Snapshot{"amount": 1200}))

	hazmat := defs[1]
	assert.Equal(t, Wildcard, hazmat.CompanyID)
	assert.Equal(t, Wildcard, hazmat.Agent)
	assert.False(t, hazmat.Active)
	assert.True(t, condition.Evaluate(*hazmat.Condition, condition.Snapshot{"equipment": "tanker"}))
}

func TestParseSeed_TOML(t *testing.T) {
	defs, err := ParseSeed([]byte(tomlSeed), "toml", seedNow)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	r := defs[0]
	assert.Equal(t, action.TypeInvoiceApproval, r.ActionType)
	assert.Equal(t, 90.0, r.PromotionThreshold)
	require.NotNil(t, r.Condition)
	assert.True(t, condition.Evaluate(*r.Condition, condition.Snapshot{"amount": 1500}))
	assert.False(t, condition.Evaluate(*r.Condition, condition.Snapshot{"amount": 1501}))
}

func TestParseSeed_Errors(t *testing.T) {
	_, err := ParseSeed([]byte(yamlSeed), "json", seedNow)
	assert.ErrorIs(t, err, ErrUnsupportedSeedFormat)

	dup := "rules:\n  - {id: a, action_type: outreach, risk_level: low}\n  - {id: a, action_type: outreach, risk_level: high}\n"
	_, err = ParseSeed([]byte(dup), "yaml", seedNow)
	assert.ErrorIs(t, err, ErrDuplicateSeedRule)

	_, err = ParseSeed([]byte("rules:\n  - {id: a, action_type: outreach, risk_level: extreme}\n"), "yaml", seedNow)
	assert.ErrorIs(t, err, action.ErrInvalidRiskLevel)

	_, err = ParseSeed([]byte("rules:\n  - {id: a, action_type: outreach, risk_level: low, colour: red}\n"), "yaml", seedNow)
	assert.Error(t, err, "unknown keys are rejected")

	defs, err := ParseSeed(nil, "yaml", seedNow)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestLoadSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlSeed), 0o600))

	defs, err := LoadSeedFile(path, seedNow)
	require.NoError(t, err)
	assert.Len(t, defs, 1)

	_, err = LoadSeedFile(filepath.Join(dir, "rules.ini"), seedNow)
	assert.ErrorIs(t, err, ErrUnsupportedSeedFormat)

	_, err = LoadSeedFile(filepath.Join(dir, "missing.yaml"), seedNow)
	assert.Error(t, err)
}

// recordingUpserter keeps the latest definition per id.
type recordingUpserter struct {
	mu    sync.Mutex
	rules map[string]*Rule
	calls int
}

func newRecordingUpserter() *recordingUpserter {
	return &recordingUpserter{rules: make(map[string]*Rule)}
}

func (u *recordingUpserter) UpsertRule(_ context.Context, r *Rule, _ string) (UpsertResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	existing, ok := u.rules[r.ID]
	u.rules[r.ID] = r.Clone()
	switch {
	case !ok:
		return UpsertCreated, nil
	case existing.SameDefinition(r):
		return UpsertUnchanged, nil
	default:
		return UpsertUpdated, nil
	}
}

func (u *recordingUpserter) get(id string) *Rule {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rules[id].Clone()
}

func TestImport(t *testing.T) {
	defs, err := ParseSeed([]byte(yamlSeed), "yaml", seedNow)
	require.NoError(t, err)

	u := newRecordingUpserter()
	sum, err := Import(context.Background(), u, defs, "seed")
	require.NoError(t, err)
	assert.Equal(t, ImportSummary{Created: 2}, sum)

	sum, err = Import(context.Background(), u, defs, "seed")
	require.NoError(t, err)
	assert.Equal(t, ImportSummary{Unchanged: 2}, sum)

	defs[0].Priority = 99
	sum, err = Import(context.Background(), u, defs, "seed")
	require.NoError(t, err)
	assert.Equal(t, ImportSummary{Updated: 1, Unchanged: 1}, sum)
}
