package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskLevel_Ordering(t *testing.T) {
	assert.Less(t, RiskLow.Rank(), RiskMedium.Rank())
	assert.Less(t, RiskMedium.Rank(), RiskHigh.Rank())
	assert.Less(t, RiskHigh.Rank(), RiskCritical.Rank())
	assert.Equal(t, -1, RiskLevel("extreme").Rank())

	assert.True(t, RiskLow.AtMost(RiskMedium))
	assert.True(t, RiskMedium.AtMost(RiskMedium))
	assert.False(t, RiskHigh.AtMost(RiskMedium))
	assert.False(t, RiskLevel("bogus").AtMost(RiskCritical))
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" Outreach ")
	require.NoError(t, err)
	assert.Equal(t, TypeOutreach, typ)

	_, err = ParseType("teleport")
	assert.ErrorIs(t, err, ErrInvalidActionType)

	assert.Len(t, Types(), 7)
}

func TestParseRiskLevel(t *testing.T) {
	r, err := ParseRiskLevel("CRITICAL")
	require.NoError(t, err)
	assert.Equal(t, RiskCritical, r)

	_, err = ParseRiskLevel("")
	assert.ErrorIs(t, err, ErrInvalidRiskLevel)
}

func TestStatus_Transitions(t *testing.T) {
	for _, next := range []Status{StatusApproved, StatusApprovedWithEdits, StatusRejected, StatusAutoExecuted, StatusExpired} {
		assert.True(t, StatusPending.CanTransitionTo(next), "pending -> %s", next)
		assert.True(t, next.IsTerminal(), "%s should be terminal", next)
		for _, other := range []Status{StatusPending, StatusApproved, StatusRejected, StatusExpired} {
			assert.False(t, next.CanTransitionTo(other), "%s -> %s", next, other)
		}
	}
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusPending.CanTransitionTo(StatusPending))
	assert.False(t, Status("archived").IsTerminal())
}

func TestDecision_Status(t *testing.T) {
	cases := map[Decision]Status{
		DecisionApprove:          StatusApproved,
		DecisionApproveWithEdits: StatusApprovedWithEdits,
		DecisionReject:           StatusRejected,
	}
	for d, want := range cases {
		got, err := d.Status()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseDecision("escalate")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}
