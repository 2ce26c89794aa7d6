package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/condition"
)

// Wildcard matches every company or every agent.
const Wildcard = "*"

// DefaultRisk applies when no active rule matches a proposal.
const DefaultRisk = action.RiskMedium

// DefaultPromotionThreshold is the accuracy percentage a rule must reach
// when it does not set its own.
const DefaultPromotionThreshold = 95.0

// Validation errors.
var (
	ErrEmptyRuleID       = errors.New("rule id is required")
	ErrEmptyCompany      = errors.New("rule company_id is required")
	ErrEmptyAgent        = errors.New("rule agent is required")
	ErrInvalidThreshold  = errors.New("promotion threshold must be in (0, 100]")
	ErrInvalidCondition  = errors.New("invalid rule condition")
	ErrInvalidActionType = errors.New("invalid rule action type")
	ErrInvalidRiskLevel  = errors.New("invalid rule risk level")
)

// Rule maps a condition on the entity snapshot to a risk level for one
// (company, action type, agent) scope, and accumulates reviewer outcomes.
//
// UpdatedAt moves only when the definition changes; counter increments and
// promotion leave it alone so tie-breaking stays stable.
type Rule struct {
	ID                 string               `json:"id"`
	CompanyID          string               `json:"company_id"`
	ActionType         action.Type          `json:"action_type"`
	Agent              string               `json:"agent"`
	Name               string               `json:"name,omitempty"`
	Description        string               `json:"description,omitempty"`
	Condition          *condition.Condition `json:"condition,omitempty"`
	RiskLevel          action.RiskLevel     `json:"risk_level"`
	Priority           int                  `json:"priority"`
	PromotionThreshold float64              `json:"promotion_threshold"`
	Active             bool                 `json:"active"`

	Level3Enabled        bool       `json:"level3_enabled"`
	Level3ChangedAt      *time.Time `json:"level3_changed_at,omitempty"`
	TotalActions         int64      `json:"total_actions"`
	ApprovedWithoutEdits int64      `json:"approved_without_edits"`
	ApprovedWithEdits    int64      `json:"approved_with_edits"`
	Rejected             int64      `json:"rejected"`
	AutoExecuted         int64      `json:"auto_executed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the rule definition.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyRuleID
	}
	if strings.TrimSpace(r.CompanyID) == "" {
		return ErrEmptyCompany
	}
	if strings.TrimSpace(r.Agent) == "" {
		return ErrEmptyAgent
	}
	if !r.ActionType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidActionType, r.ActionType)
	}
	if !r.RiskLevel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRiskLevel, r.RiskLevel)
	}
	if r.PromotionThreshold <= 0 || r.PromotionThreshold > 100 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, r.PromotionThreshold)
	}
	if r.Condition != nil {
		if err := r.Condition.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCondition, err)
		}
	}
	return nil
}

// Applies reports whether the rule's scope covers s. Activity is not checked.
func (r *Rule) Applies(s Scope) bool {
	if r.ActionType != s.ActionType {
		return false
	}
	if r.CompanyID != Wildcard && r.CompanyID != s.CompanyID {
		return false
	}
	return r.Agent == Wildcard || r.Agent == s.Agent
}

// Reviewed is the number of human-reviewed outcomes the rule has seen.
func (r *Rule) Reviewed() int64 {
	return r.ApprovedWithoutEdits + r.ApprovedWithEdits + r.Rejected
}

// Accuracy is the share of outcomes approved without edits, as a percentage.
// A rule with no outcomes has accuracy 0.
func (r *Rule) Accuracy() float64 {
	if r.TotalActions == 0 {
		return 0
	}
	return float64(r.ApprovedWithoutEdits) / float64(r.TotalActions) * 100
}

// MeetsThreshold reports whether accuracy >= PromotionThreshold. The
// comparison is done on cross-multiplied counts so that e.g. 19/20 meets 95
// without floating point drift.
func (r *Rule) MeetsThreshold() bool {
	if r.TotalActions == 0 {
		return false
	}
	return float64(r.ApprovedWithoutEdits)*100 >= r.PromotionThreshold*float64(r.TotalActions)
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	c := *r
	if r.Condition != nil {
		cond := *r.Condition
		c.Condition = &cond
	}
	if r.Level3ChangedAt != nil {
		at := *r.Level3ChangedAt
		c.Level3ChangedAt = &at
	}
	return &c
}

// Stats is the learned state of a rule.
type Stats struct {
	RuleID               string  `json:"rule_id"`
	TotalActions         int64   `json:"total_actions"`
	ApprovedWithoutEdits int64   `json:"approved_without_edits"`
	ApprovedWithEdits    int64   `json:"approved_with_edits"`
	Rejected             int64   `json:"rejected"`
	AutoExecuted         int64   `json:"auto_executed"`
	Accuracy             float64 `json:"accuracy"`
	PromotionThreshold   float64 `json:"promotion_threshold"`
	Level3Enabled        bool    `json:"level3_enabled"`
}

// Stats snapshots the rule's counters.
func (r *Rule) Stats() Stats {
	return Stats{
		RuleID:               r.ID,
		TotalActions:         r.TotalActions,
		ApprovedWithoutEdits: r.ApprovedWithoutEdits,
		ApprovedWithEdits:    r.ApprovedWithEdits,
		Rejected:             r.Rejected,
		AutoExecuted:         r.AutoExecuted,
		Accuracy:             r.Accuracy(),
		PromotionThreshold:   r.PromotionThreshold,
		Level3Enabled:        r.Level3Enabled,
	}
}

// Outcome is a terminal result credited to a rule.
type Outcome string

const (
	OutcomeApproved          Outcome = "approved"
	OutcomeApprovedWithEdits Outcome = "approved_with_edits"
	OutcomeRejected          Outcome = "rejected"
	OutcomeAutoExecuted      Outcome = "auto_executed"
)

// OutcomeFor maps a terminal action status to the outcome it credits.
// Expired and pending actions credit nothing.
func OutcomeFor(status action.Status) (Outcome, bool) {
	switch status {
	case action.StatusApproved:
		return OutcomeApproved, true
	case action.StatusApprovedWithEdits:
		return OutcomeApprovedWithEdits, true
	case action.StatusRejected:
		return OutcomeRejected, true
	case action.StatusAutoExecuted:
		return OutcomeAutoExecuted, true
	default:
		return "", false
	}
}

// Apply increments the counters for o. Reviewed outcomes move TotalActions;
// auto-execution does not, so accuracy reflects human judgement only.
func (r *Rule) Apply(o Outcome) {
	switch o {
	case OutcomeApproved:
		r.TotalActions++
		r.ApprovedWithoutEdits++
	case OutcomeApprovedWithEdits:
		r.TotalActions++
		r.ApprovedWithEdits++
	case OutcomeRejected:
		r.TotalActions++
		r.Rejected++
	case OutcomeAutoExecuted:
		r.AutoExecuted++
	}
}
