package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/governance"
	"github.com/fyrsmithlabs/govern/internal/store"
)

func newTestServer(t *testing.T, mutate ...func(*Config)) (*Server, *governance.Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	gcfg := governance.DefaultConfig()
	gcfg.RuleCacheTTL = 0
	engine, err := governance.NewEngine(st, gcfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t)
	for _, m := range mutate {
		m(cfg)
	}
	s, err := NewServer(cfg, engine)
	require.NoError(t, err)
	return s, engine, st
}

func proposal() proposeActionInput {
	return proposeActionInput{
		CompanyID:      "acme",
		ActionType:     string(action.TypeOutreach),
		Agent:          "sourcing-agent",
		Title:          "Email Northline about load 7731",
		DraftContent:   "Hi, we have a dry van load from Dallas to Memphis on Friday.",
		EntitySnapshot: map[string]any{"amount": 1800},
	}
}

func TestNewServer_RequiresGovernor(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestProposeAction_PendingWithoutRule(t *testing.T) {
	s, _, _ := newTestServer(t)

	out, err := s.proposeAction(context.Background(), proposal())
	require.NoError(t, err)

	assert.NotEmpty(t, out.ActionID)
	assert.Equal(t, string(action.StatusPending), out.Status)
	assert.Equal(t, string(action.RiskMedium), out.RiskLevel)
	assert.Empty(t, out.RuleID)
	assert.Empty(t, out.ExpiresAt)
}

func TestProposeAction_AutoExecutesUnderLevel3Rule(t *testing.T) {
	s, engine, st := newTestServer(t)
	ctx := context.Background()

	_, err := engine.CreateRule(ctx, governance.RuleInput{
		ID:         "small-outreach",
		CompanyID:  "acme",
		ActionType: action.TypeOutreach,
		Agent:      "sourcing-agent",
		RiskLevel:  action.RiskLow,
	}, "admin")
	require.NoError(t, err)
	_, err = st.SetLevel3(ctx, "small-outreach", true, time.Now())
	require.NoError(t, err)

	out, err := s.proposeAction(ctx, proposal())
	require.NoError(t, err)
	assert.Equal(t, string(action.StatusAutoExecuted), out.Status)
	assert.Equal(t, "small-outreach", out.RuleID)

	status, err := s.actionStatus(ctx, actionStatusInput{ActionID: out.ActionID})
	require.NoError(t, err)
	assert.Equal(t, string(action.StatusAutoExecuted), status.Status)
	assert.NotEmpty(t, status.ExecutedAt)
	assert.Empty(t, status.ReviewedBy)
}

func TestProposeAction_Expiry(t *testing.T) {
	s, _, _ := newTestServer(t)

	in := proposal()
	in.ExpiresInSeconds = 3600
	out, err := s.proposeAction(context.Background(), in)
	require.NoError(t, err)

	expires, err := time.Parse(time.RFC3339, out.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	in.ExpiresInSeconds = -5
	_, err = s.proposeAction(context.Background(), in)
	assert.Error(t, err)
	assert.Equal(t, "validation_error", failureReason(err))
}

func TestProposeAction_InvalidInput(t *testing.T) {
	s, _, _ := newTestServer(t)

	in := proposal()
	in.ActionType = "wire_transfer"
	_, err := s.proposeAction(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, governance.ErrValidation)
}

func TestProposeAction_RateLimited(t *testing.T) {
	s, _, _ := newTestServer(t, func(c *Config) {
		c.SubmitRate = 0.001
		c.SubmitBurst = 1
	})
	ctx := context.Background()

	_, err := s.proposeAction(ctx, proposal())
	require.NoError(t, err)

	_, err = s.proposeAction(ctx, proposal())
	require.Error(t, err)
	assert.Equal(t, "rate_limited", failureReason(err))

	other := proposal()
	other.Agent = "carrier-agent"
	_, err = s.proposeAction(ctx, other)
	assert.NoError(t, err, "limits are per agent")
}

func TestActionStatus_ReflectsReview(t *testing.T) {
	s, engine, _ := newTestServer(t)
	ctx := context.Background()

	out, err := s.proposeAction(ctx, proposal())
	require.NoError(t, err)

	_, err = engine.Review(ctx, governance.ReviewRequest{
		ActionID:      out.ActionID,
		Decision:      action.DecisionApproveWithEdits,
		Reviewer:      "dana",
		EditedContent: "Hi, we have a dry van load from Dallas to Memphis on Saturday.",
	})
	require.NoError(t, err)

	status, err := s.actionStatus(ctx, actionStatusInput{ActionID: out.ActionID})
	require.NoError(t, err)
	assert.Equal(t, string(action.StatusApprovedWithEdits), status.Status)
	assert.Equal(t, "dana", status.ReviewedBy)
	require.NotNil(t, status.EditSimilarity)
	assert.Greater(t, *status.EditSimilarity, 90.0)
	assert.Less(t, *status.EditSimilarity, 100.0)
	assert.NotEmpty(t, status.ReviewedAt)
}

func TestActionStatus_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	_, err := s.actionStatus(context.Background(), actionStatusInput{ActionID: "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, "not_found", failureReason(err))
}
