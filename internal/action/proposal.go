package action

import (
	"fmt"
	"time"
)

// Proposal is an agent-proposed action awaiting, or past, governance.
//
// RuleID is empty when no autonomy rule matched and the default risk applied.
type Proposal struct {
	ID               string         `json:"id"`
	CompanyID        string         `json:"company_id"`
	ActionType       Type           `json:"action_type"`
	Agent            string         `json:"agent"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	DraftContent     string         `json:"draft_content,omitempty"`
	Reasoning        string         `json:"reasoning,omitempty"`
	EntitySnapshot   map[string]any `json:"entity_snapshot,omitempty"`
	RiskLevel        RiskLevel      `json:"risk_level"`
	RuleID           string         `json:"rule_id,omitempty"`
	Status           Status         `json:"status"`
	AssignedReviewer string         `json:"assigned_reviewer,omitempty"`
	ReviewedBy       string         `json:"reviewed_by,omitempty"`
	EditedContent    string         `json:"edited_content,omitempty"`
	RejectionReason  string         `json:"rejection_reason,omitempty"`
	EditSimilarity   *float64       `json:"edit_similarity,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
	ReviewedAt       *time.Time     `json:"reviewed_at,omitempty"`
	ExecutedAt       *time.Time     `json:"executed_at,omitempty"`
}

// IsOverdue reports whether the proposal is still pending past its expiry.
func (p *Proposal) IsOverdue(now time.Time) bool {
	return p.Status == StatusPending && p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Validate checks the structural invariants of a stored proposal.
func (p *Proposal) Validate() error {
	if p.CompanyID == "" {
		return ErrEmptyCompanyID
	}
	if p.Agent == "" {
		return ErrEmptyAgent
	}
	if !p.ActionType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidActionType, p.ActionType)
	}
	if !p.RiskLevel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRiskLevel, p.RiskLevel)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}
	switch p.Status {
	case StatusApprovedWithEdits:
		if p.EditSimilarity == nil {
			return ErrMissingSimilarity
		}
	case StatusRejected:
		if p.RejectionReason == "" {
			return ErrMissingReason
		}
	}
	return nil
}

// Transition returns a copy of p moved to next, or ErrInvalidTransition.
// The receiver is never modified.
func (p *Proposal) Transition(next Status) (*Proposal, error) {
	if !p.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	c := p.Clone()
	c.Status = next
	return c, nil
}

// Clone returns a deep copy of the proposal.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	c := *p
	c.EntitySnapshot = cloneMap(p.EntitySnapshot)
	c.EditSimilarity = cloneFloat(p.EditSimilarity)
	c.ExpiresAt = cloneTime(p.ExpiresAt)
	c.ReviewedAt = cloneTime(p.ReviewedAt)
	c.ExecutedAt = cloneTime(p.ExecutedAt)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return cloneMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
