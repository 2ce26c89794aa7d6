package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/rules"
)

// maxRuleRows bounds the rules section of the dashboard.
const maxRuleRows = 8

// Source supplies the queue and rule state the dashboard renders.
type Source interface {
	Pending(ctx context.Context) ([]*action.Proposal, error)
	Rules(ctx context.Context) ([]*rules.Rule, error)
}

// RuleState is where a rule sits on the way to autonomy.
type RuleState string

const (
	RuleLearning   RuleState = "learning"
	RuleBelow      RuleState = "below threshold"
	RuleEligible   RuleState = "eligible"
	RuleAutonomous RuleState = "level 3"
)

// RuleSummary is one row of the rules section.
type RuleSummary struct {
	ID        string
	Accuracy  float64
	Threshold float64
	Reviewed  int64
	Auto      int64
	State     RuleState
}

// Snapshot summarizes the review queue at one point in time.
type Snapshot struct {
	Pending    int
	ByRisk     map[action.RiskLevel]int
	Overdue    int
	Unassigned int
	OldestAge  time.Duration

	ActiveRules int
	Level3Rules int
	Rules       []RuleSummary
}

// Summarize builds a snapshot. Rules are ordered by reviewed outcomes so the
// busiest rules are shown first.
func Summarize(pending []*action.Proposal, rs []*rules.Rule, now time.Time, minSample int64) Snapshot {
	s := Snapshot{ByRisk: make(map[action.RiskLevel]int)}

	for _, p := range pending {
		if p.Status != action.StatusPending {
			continue
		}
		s.Pending++
		s.ByRisk[p.RiskLevel]++
		if p.AssignedReviewer == "" {
			s.Unassigned++
		}
		if p.IsOverdue(now) {
			s.Overdue++
		}
		if age := now.Sub(p.CreatedAt); age > s.OldestAge {
			s.OldestAge = age
		}
	}

	for _, r := range rs {
		if !r.Active {
			continue
		}
		s.ActiveRules++
		if r.Level3Enabled {
			s.Level3Rules++
		}
		s.Rules = append(s.Rules, RuleSummary{
			ID:        r.ID,
			Accuracy:  r.Accuracy(),
			Threshold: r.PromotionThreshold,
			Reviewed:  r.Reviewed(),
			Auto:      r.AutoExecuted,
			State:     ruleState(r, minSample),
		})
	}
	sort.SliceStable(s.Rules, func(i, j int) bool {
		if s.Rules[i].Reviewed != s.Rules[j].Reviewed {
			return s.Rules[i].Reviewed > s.Rules[j].Reviewed
		}
		return s.Rules[i].ID < s.Rules[j].ID
	})
	if len(s.Rules) > maxRuleRows {
		s.Rules = s.Rules[:maxRuleRows]
	}
	return s
}

func ruleState(r *rules.Rule, minSample int64) RuleState {
	switch {
	case r.Level3Enabled:
		return RuleAutonomous
	case r.Reviewed() < minSample:
		return RuleLearning
	case r.MeetsThreshold():
		return RuleEligible
	default:
		return RuleBelow
	}
}
