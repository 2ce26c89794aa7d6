package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/condition"
	"github.com/fyrsmithlabs/govern/internal/rules"
	"github.com/fyrsmithlabs/govern/internal/store"
)

func TestCreateRule_Defaults(t *testing.T) {
	h := newHarness(t)
	r, err := h.engine.CreateRule(context.Background(), RuleInput{
		CompanyID:  "acme",
		ActionType: action.TypeOutreach,
		RiskLevel:  action.RiskLow,
	}, "admin")
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, rules.Wildcard, r.Agent)
	assert.Equal(t, rules.DefaultPromotionThreshold, r.PromotionThreshold)
	assert.True(t, r.Active)
	assert.False(t, r.Level3Enabled)
	assert.Equal(t, h.clock.Now(), r.CreatedAt)

	entries, err := h.engine.ListAudit(context.Background(), audit.Query{RuleID: r.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventRuleCreated, entries[0].EventType)
	assert.Equal(t, "admin", entries[0].Actor)
}

func TestCreateRule_Invalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RuleInput
	}{
		{"no company", RuleInput{ActionType: action.TypeOutreach, RiskLevel: action.RiskLow}},
		{"bad type", RuleInput{CompanyID: "acme", ActionType: "x", RiskLevel: action.RiskLow}},
		{"bad risk", RuleInput{CompanyID: "acme", ActionType: action.TypeOutreach, RiskLevel: "severe"}},
		{"bad threshold", RuleInput{CompanyID: "acme", ActionType: action.TypeOutreach, RiskLevel: action.RiskLow, PromotionThreshold: 120}},
		{"bad operator", RuleInput{
			CompanyID: "acme", ActionType: action.TypeOutreach, RiskLevel: action.RiskLow,
			Condition: &condition.Condition{Field: "amount", Operator: "roughly", Value: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateRule(ctx, tt.in, "admin")
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	h.rule(t, "dup", action.RiskLow, false)
	_, err := h.engine.CreateRule(ctx, RuleInput{
		ID: "dup", CompanyID: "acme", ActionType: action.TypeOutreach, RiskLevel: action.RiskLow,
	}, "admin")
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestUpdateRule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rule(t, "r1", action.RiskLow, true)
	require.NoError(t, h.store.IncrementRuleOutcome(ctx, "r1", rules.OutcomeApproved))
	h.clock.Advance(time.Minute)

	priority := 7
	risk := action.RiskHigh
	updated, err := h.engine.UpdateRule(ctx, "r1", RuleUpdate{
		Priority:  &priority,
		RiskLevel: &risk,
		Condition: &condition.Condition{Field: "broker", Operator: condition.OpEquals, Value: "Northline"},
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Priority)
	assert.Equal(t, action.RiskHigh, updated.RiskLevel)
	assert.Equal(t, h.clock.Now(), updated.UpdatedAt)

	stored, err := h.engine.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, stored.Level3Enabled, "definition edits keep learning state")
	assert.Equal(t, int64(1), stored.ApprovedWithoutEdits)
	require.NotNil(t, stored.Condition)
	assert.Equal(t, "broker", stored.Condition.Field)

	// No-op update writes nothing.
	h.clock.Advance(time.Minute)
	same, err := h.engine.UpdateRule(ctx, "r1", RuleUpdate{Priority: &priority}, "admin")
	require.NoError(t, err)
	assert.Equal(t, updated.UpdatedAt, same.UpdatedAt)

	cleared, err := h.engine.UpdateRule(ctx, "r1", RuleUpdate{ClearCondition: true}, "admin")
	require.NoError(t, err)
	assert.Nil(t, cleared.Condition)

	events := auditEvents(t, h.store, audit.Query{RuleID: "r1"})
	assert.Equal(t, []audit.EventType{audit.EventRuleCreated, audit.EventRuleUpdated, audit.EventRuleUpdated}, events)

	bad := 0.0
	_, err = h.engine.UpdateRule(ctx, "r1", RuleUpdate{PromotionThreshold: &bad}, "admin")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.engine.UpdateRule(ctx, "missing", RuleUpdate{Priority: &priority}, "admin")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeactivateRule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rule(t, "r1", action.RiskLow, false)

	r, err := h.engine.DeactivateRule(ctx, "r1", "admin")
	require.NoError(t, err)
	assert.False(t, r.Active)

	_, err = h.engine.DeactivateRule(ctx, "r1", "admin")
	require.NoError(t, err)

	assert.Equal(t,
		[]audit.EventType{audit.EventRuleCreated, audit.EventRuleDeactivated},
		auditEvents(t, h.store, audit.Query{RuleID: "r1"}))

	active, err := h.engine.ListRules(ctx, store.RuleFilter{CompanyID: "acme"})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := h.engine.ListRules(ctx, store.RuleFilter{CompanyID: "acme", IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	on := true
	_, err = h.engine.UpdateRule(ctx, "r1", RuleUpdate{Active: &on}, "admin")
	require.NoError(t, err)
	p := h.submit(t)
	assert.Equal(t, "r1", p.RuleID)
}

func TestUpsertRule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	def := &rules.Rule{
		ID: "seeded", CompanyID: rules.Wildcard, ActionType: action.TypeInvoiceApproval,
		Agent: rules.Wildcard, RiskLevel: action.RiskLow, Active: true,
	}
	res, err := h.engine.UpsertRule(ctx, def.Clone(), "seed:rules.yaml")
	require.NoError(t, err)
	assert.Equal(t, rules.UpsertCreated, res)

	require.NoError(t, h.store.IncrementRuleOutcome(ctx, "seeded", rules.OutcomeRejected))

	res, err = h.engine.UpsertRule(ctx, def.Clone(), "seed:rules.yaml")
	require.NoError(t, err)
	assert.Equal(t, rules.UpsertUnchanged, res)

	changed := def.Clone()
	changed.Priority = 3
	changed.Rejected = 999
	res, err = h.engine.UpsertRule(ctx, changed, "seed:rules.yaml")
	require.NoError(t, err)
	assert.Equal(t, rules.UpsertUpdated, res)

	stored, err := h.engine.GetRule(ctx, "seeded")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Priority)
	assert.Equal(t, int64(1), stored.Rejected, "counters are never imported")

	// Wildcard company rules apply to every tenant.
	p := h.submit(t)
	assert.Equal(t, "seeded", p.RuleID)

	sum, err := rules.Import(ctx, h.engine, []*rules.Rule{changed.Clone()}, "seed:rules.yaml")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Unchanged)
}

func TestUpsertRule_ScopeIsImmutable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	def := &rules.Rule{
		ID: "r1", CompanyID: "acme", ActionType: action.TypeInvoiceApproval,
		Agent: "billing-agent", RiskLevel: action.RiskLow, Active: true,
	}
	_, err := h.engine.UpsertRule(ctx, def.Clone(), "seed:rules.yaml")
	require.NoError(t, err)
	_, err = h.store.SetLevel3(ctx, "r1", true, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name string
		mut  func(*rules.Rule)
	}{
		{"action type", func(r *rules.Rule) { r.ActionType = action.TypeAcceptance }},
		{"agent", func(r *rules.Rule) { r.Agent = rules.Wildcard }},
		{"company", func(r *rules.Rule) { r.CompanyID = rules.Wildcard }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			moved := def.Clone()
			tt.mut(moved)

			res, err := h.engine.UpsertRule(ctx, moved, "seed:rules.yaml")
			require.ErrorIs(t, err, ErrScopeImmutable)
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, rules.UpsertUnchanged, res)

			_, err = rules.Import(ctx, h.engine, []*rules.Rule{moved}, "seed:rules.yaml")
			require.ErrorIs(t, err, ErrScopeImmutable)
		})
	}

	stored, err := h.engine.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, action.TypeInvoiceApproval, stored.ActionType)
	assert.Equal(t, "billing-agent", stored.Agent)
	assert.Equal(t, "acme", stored.CompanyID)
	assert.True(t, stored.Level3Enabled)

	entries, err := h.engine.ListAudit(ctx, audit.Query{RuleID: "r1"})
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, audit.EventRuleUpdated, e.EventType)
	}
}
