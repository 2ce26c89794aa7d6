package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/condition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type staticSource struct {
	rules []*Rule
	err   error
	calls int
}

func (s *staticSource) ActiveRules(_ context.Context, _ Scope) ([]*Rule, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return cloneRules(s.rules), nil
}

var testScope = Scope{CompanyID: "acme", ActionType: action.TypeOutreach, Agent: "sourcing-agent"}

func ruleWith(id string, risk action.RiskLevel, priority int, cond *condition.Condition) *Rule {
	r := validRule()
	r.ID = id
	r.RiskLevel = risk
	r.Priority = priority
	r.Condition = cond
	r.UpdatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return r
}

func TestMatcher_DefaultWhenNothingMatches(t *testing.T) {
	m := NewMatcher(&staticSource{}, nil)

	res, err := m.Resolve(context.Background(), testScope, map[string]any{"amount": 100})
	require.NoError(t, err)
	assert.Equal(t, action.RiskMedium, res.Risk)
	assert.Nil(t, res.Rule)
}

func TestMatcher_HighestPriorityWins(t *testing.T) {
	src := &staticSource{rules: []*Rule{
		ruleWith("low-pri", action.RiskLow, 1, nil),
		ruleWith("high-pri", action.RiskHigh, 10, nil),
		ruleWith("mid-pri", action.RiskMedium, 5, nil),
	}}
	m := NewMatcher(src, nil)

	res, err := m.Resolve(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.Equal(t, action.RiskHigh, res.Risk)
	require.NotNil(t, res.Rule)
	assert.Equal(t, "high-pri", res.Rule.ID)
}

func TestMatcher_TieBreaksOnRecency(t *testing.T) {
	older := ruleWith("older", action.RiskLow, 5, nil)
	newer := ruleWith("newer", action.RiskHigh, 5, nil)
	newer.UpdatedAt = older.UpdatedAt.Add(time.Minute)

	m := NewMatcher(&staticSource{rules: []*Rule{older, newer}}, nil)
	res, err := m.Resolve(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.Equal(t, "newer", res.Rule.ID)

	// Equal timestamps fall back to id ordering, so results are stable.
	a := ruleWith("a", action.RiskLow, 5, nil)
	b := ruleWith("b", action.RiskHigh, 5, nil)
	for i := 0; i < 5; i++ {
		res, err = NewMatcher(&staticSource{rules: []*Rule{b, a}}, nil).Resolve(context.Background(), testScope, nil)
		require.NoError(t, err)
		assert.Equal(t, "a", res.Rule.ID)
	}
}

func TestMatcher_ConditionFiltering(t *testing.T) {
	big := ruleWith("big-loads", action.RiskHigh, 10,
		&condition.Condition{Field: "amount", Operator: condition.OpGreaterThan, Value: 5000})
	catchAll := ruleWith("catch-all", action.RiskLow, 0, nil)
	m := NewMatcher(&staticSource{rules: []*Rule{big, catchAll}}, nil)

	res, err := m.Resolve(context.Background(), testScope, map[string]any{"amount": 3000})
	require.NoError(t, err)
	assert.Equal(t, "catch-all", res.Rule.ID)

	res, err = m.Resolve(context.Background(), testScope, map[string]any{"amount": 9000})
	require.NoError(t, err)
	assert.Equal(t, "big-loads", res.Rule.ID)
}

func TestMatcher_SkipsInactiveAndOutOfScope(t *testing.T) {
	inactive := ruleWith("inactive", action.RiskHigh, 100, nil)
	inactive.Active = false
	otherCompany := ruleWith("other", action.RiskCritical, 100, nil)
	otherCompany.CompanyID = "globex"
	wildcard := ruleWith("wild", action.RiskLow, 1, nil)
	wildcard.Agent = Wildcard

	m := NewMatcher(&staticSource{rules: []*Rule{inactive, otherCompany, wildcard}}, nil)
	res, err := m.Resolve(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.Equal(t, "wild", res.Rule.ID)
}

func TestMatcher_FaultyConditionIsLoggedAndSkipped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	broken := ruleWith("broken", action.RiskCritical, 100,
		&condition.Condition{Field: "amount", Operator: "roughly", Value: 1})
	healthy := ruleWith("healthy", action.RiskLow, 1, nil)

	m := NewMatcher(&staticSource{rules: []*Rule{broken, healthy}}, zap.New(core))
	res, err := m.Resolve(context.Background(), testScope, map[string]any{"amount": 1})
	require.NoError(t, err)
	assert.Equal(t, "healthy", res.Rule.ID)

	entries := logs.FilterMessage("rule condition fault, treating as non-match").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].ContextMap()["rule_id"])
}

func TestMatcher_SourceError(t *testing.T) {
	boom := errors.New("db down")
	m := NewMatcher(&staticSource{err: boom}, nil)
	_, err := m.Resolve(context.Background(), testScope, nil)
	assert.ErrorIs(t, err, boom)
}

func TestMatcher_ReturnsCopy(t *testing.T) {
	src := &staticSource{rules: []*Rule{ruleWith("r", action.RiskLow, 0, nil)}}
	m := NewMatcher(src, nil)
	res, err := m.Resolve(context.Background(), testScope, nil)
	require.NoError(t, err)
	res.Rule.Level3Enabled = true
	assert.False(t, src.rules[0].Level3Enabled)
}
