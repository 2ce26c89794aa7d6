package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/condition"
	"go.uber.org/zap"
)

// Scope identifies the rules that may apply to a proposal.
type Scope struct {
	CompanyID  string
	ActionType action.Type
	Agent      string
}

// Source supplies the active rules for a scope: rules scoped to the exact
// agent plus wildcard-agent rules, for the company plus wildcard-company rules.
type Source interface {
	ActiveRules(ctx context.Context, scope Scope) ([]*Rule, error)
}

// Resolution is the outcome of matching. Rule is nil when the system default
// risk applied.
type Resolution struct {
	Risk action.RiskLevel
	Rule *Rule
}

// Matcher resolves proposals to risk levels. It only reads rules.
type Matcher struct {
	source Source
	logger *zap.Logger
}

// NewMatcher creates a matcher over source.
func NewMatcher(source Source, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{source: source, logger: logger}
}

// Resolve picks the highest-priority matching rule for scope, breaking ties
// by most recent UpdatedAt and then by id. With no match it returns
// DefaultRisk and a nil rule. A faulty condition disqualifies only its own
// rule.
func (m *Matcher) Resolve(ctx context.Context, scope Scope, snapshot map[string]any) (Resolution, error) {
	candidates, err := m.source.ActiveRules(ctx, scope)
	if err != nil {
		return Resolution{}, fmt.Errorf("loading rules for %s/%s: %w", scope.ActionType, scope.Agent, err)
	}

	matched := make([]*Rule, 0, len(candidates))
	for _, r := range candidates {
		if !r.Active || !r.Applies(scope) {
			continue
		}
		if r.Condition != nil {
			ok, err := condition.Check(*r.Condition, snapshot)
			if err != nil {
				m.logger.Warn("rule condition fault, treating as non-match",
					zap.String("rule_id", r.ID),
					zap.Stringer("condition", r.Condition),
					zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, r)
	}

	if len(matched) == 0 {
		return Resolution{Risk: DefaultRisk}, nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})

	winner := matched[0]
	m.logger.Debug("rule matched",
		zap.String("rule_id", winner.ID),
		zap.String("risk", string(winner.RiskLevel)),
		zap.Int("candidates", len(candidates)),
		zap.Int("matched", len(matched)))

	return Resolution{Risk: winner.RiskLevel, Rule: winner.Clone()}, nil
}
