// Package audit defines the write-once record of every governance decision.
//
// Entries carry a full snapshot of the proposal or rule they describe, so the
// trail stays lossless even after the current-state rows change.
package audit

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/rules"
	"github.com/google/uuid"
)

// EventType names the transition or mutation an entry records.
type EventType string

const (
	EventSubmitted         EventType = "submitted"
	EventAutoExecute       EventType = "auto-execute"
	EventApproved          EventType = "approved"
	EventApprovedWithEdits EventType = "approved-with-edits"
	EventRejected          EventType = "rejected"
	EventExpired           EventType = "expired"
	EventAssigned          EventType = "assigned"

	EventRuleCreated       EventType = "rule-created"
	EventRuleUpdated       EventType = "rule-updated"
	EventRuleDeactivated   EventType = "rule-deactivated"
	EventRulePromoted      EventType = "rule-promoted"
	EventRuleLevel3Revoked EventType = "rule-level3-revoked"
)

// SystemActor is recorded for transitions no human initiated.
const SystemActor = "system"

// ErrInvalidQuery is returned for inconsistent query bounds.
var ErrInvalidQuery = errors.New("invalid audit query")

// Entry is one immutable audit record. Seq is assigned by the store and
// orders entries that share a timestamp.
type Entry struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	ActionID  string         `json:"action_id,omitempty"`
	RuleID    string         `json:"rule_id,omitempty"`
	CompanyID string         `json:"company_id,omitempty"`
	EventType EventType      `json:"event_type"`
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventForStatus maps the status an action moved into to its event type.
func EventForStatus(status action.Status) EventType {
	switch status {
	case action.StatusApproved:
		return EventApproved
	case action.StatusApprovedWithEdits:
		return EventApprovedWithEdits
	case action.StatusRejected:
		return EventRejected
	case action.StatusAutoExecuted:
		return EventAutoExecute
	case action.StatusExpired:
		return EventExpired
	default:
		return EventSubmitted
	}
}

// ForAction builds an entry describing p after a transition.
func ForAction(event EventType, actor string, p *action.Proposal, at time.Time) *Entry {
	if actor == "" {
		actor = SystemActor
	}
	return &Entry{
		ID:        uuid.NewString(),
		ActionID:  p.ID,
		RuleID:    p.RuleID,
		CompanyID: p.CompanyID,
		EventType: event,
		Actor:     actor,
		Timestamp: at,
		Payload:   ProposalPayload(p),
	}
}

// ForRule builds an entry describing r after a mutation. extra is merged
// into the payload under its own keys.
func ForRule(event EventType, actor string, r *rules.Rule, at time.Time, extra map[string]any) *Entry {
	if actor == "" {
		actor = SystemActor
	}
	payload := RulePayload(r)
	for k, v := range extra {
		payload[k] = v
	}
	return &Entry{
		ID:        uuid.NewString(),
		RuleID:    r.ID,
		CompanyID: r.CompanyID,
		EventType: event,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// ProposalPayload snapshots every field of p.
func ProposalPayload(p *action.Proposal) map[string]any {
	payload := map[string]any{
		"id":                p.ID,
		"company_id":        p.CompanyID,
		"action_type":       string(p.ActionType),
		"agent":             p.Agent,
		"title":             p.Title,
		"description":       p.Description,
		"draft_content":     p.DraftContent,
		"reasoning":         p.Reasoning,
		"risk_level":        string(p.RiskLevel),
		"rule_id":           p.RuleID,
		"status":            string(p.Status),
		"assigned_reviewer": p.AssignedReviewer,
		"reviewed_by":       p.ReviewedBy,
		"edited_content":    p.EditedContent,
		"rejection_reason":  p.RejectionReason,
		"created_at":        p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if p.EntitySnapshot != nil {
		payload["entity_snapshot"] = p.Clone().EntitySnapshot
	}
	if p.EditSimilarity != nil {
		payload["edit_similarity"] = *p.EditSimilarity
	}
	putTime(payload, "expires_at", p.ExpiresAt)
	putTime(payload, "reviewed_at", p.ReviewedAt)
	putTime(payload, "executed_at", p.ExecutedAt)
	return payload
}

// RulePayload snapshots the definition and learning state of r.
func RulePayload(r *rules.Rule) map[string]any {
	payload := map[string]any{
		"id":                     r.ID,
		"company_id":             r.CompanyID,
		"action_type":            string(r.ActionType),
		"agent":                  r.Agent,
		"name":                   r.Name,
		"description":            r.Description,
		"risk_level":             string(r.RiskLevel),
		"priority":               r.Priority,
		"promotion_threshold":    r.PromotionThreshold,
		"active":                 r.Active,
		"level3_enabled":         r.Level3Enabled,
		"total_actions":          r.TotalActions,
		"approved_without_edits": r.ApprovedWithoutEdits,
		"approved_with_edits":    r.ApprovedWithEdits,
		"rejected":               r.Rejected,
		"auto_executed":          r.AutoExecuted,
		"accuracy":               r.Accuracy(),
	}
	if r.Condition != nil {
		payload["condition"] = map[string]any{
			"field":    r.Condition.Field,
			"operator": string(r.Condition.Operator),
			"value":    r.Condition.Value,
		}
	}
	return payload
}

func putTime(m map[string]any, key string, t *time.Time) {
	if t != nil {
		m[key] = t.UTC().Format(time.RFC3339Nano)
	}
}

// Query filters the audit trail. Zero values match everything.
type Query struct {
	ActionID  string    `json:"action_id,omitempty"`
	RuleID    string    `json:"rule_id,omitempty"`
	CompanyID string    `json:"company_id,omitempty"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// DefaultQueryLimit and MaxQueryLimit bound result sizes.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Normalize validates q and applies the default limit.
func (q Query) Normalize() (Query, error) {
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, errors.Join(ErrInvalidQuery, errors.New("to is before from"))
	}
	if q.Limit < 0 {
		return q, errors.Join(ErrInvalidQuery, errors.New("limit must not be negative"))
	}
	if q.Limit == 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	return q, nil
}

// Matches reports whether e satisfies the query filters (limit excluded).
func (q Query) Matches(e *Entry) bool {
	if q.ActionID != "" && e.ActionID != q.ActionID {
		return false
	}
	if q.RuleID != "" && e.RuleID != q.RuleID {
		return false
	}
	if q.CompanyID != "" && e.CompanyID != q.CompanyID {
		return false
	}
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.Timestamp.After(q.To) {
		return false
	}
	return true
}
