package governance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/rules"
	"github.com/fyrsmithlabs/govern/internal/store"
)

// OutcomeRecorder credits terminal outcomes to the rule that routed the
// action. It runs inside the transaction that commits the transition.
type OutcomeRecorder struct {
	logger *zap.Logger
}

// NewOutcomeRecorder creates a recorder.
func NewOutcomeRecorder(logger *zap.Logger) *OutcomeRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutcomeRecorder{logger: logger.Named("recorder")}
}

// Record increments the counters of p's rule for p's status with a single
// atomic increment. Actions without a rule, and statuses that credit
// nothing (pending, expired), are skipped and report false.
func (r *OutcomeRecorder) Record(ctx context.Context, tx store.Tx, p *action.Proposal) (rules.Outcome, bool, error) {
	if p.RuleID == "" {
		return "", false, nil
	}
	outcome, ok := rules.OutcomeFor(p.Status)
	if !ok {
		return "", false, nil
	}
	if err := tx.IncrementRuleOutcome(ctx, p.RuleID, outcome); err != nil {
		return "", false, fmt.Errorf("recording %s for rule %s: %w", outcome, p.RuleID, err)
	}
	r.logger.Debug("outcome recorded",
		zap.String("action_id", p.ID),
		zap.String("rule_id", p.RuleID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, true, nil
}
