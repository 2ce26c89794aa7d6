package http

import (
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/rules"
)

// SubmitActionRequest is the request body for POST /api/v1/actions.
type SubmitActionRequest struct {
	CompanyID      string         `json:"company_id"`
	ActionType     string         `json:"action_type"`
	Agent          string         `json:"agent"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	DraftContent   string         `json:"draft_content,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
	EntitySnapshot map[string]any `json:"entity_snapshot,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
}

// ReviewActionRequest is the request body for POST /api/v1/actions/:id/review.
// Reviewer defaults to the X-Actor header.
type ReviewActionRequest struct {
	Decision        string `json:"decision"`
	Reviewer        string `json:"reviewer,omitempty"`
	EditedContent   string `json:"edited_content,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// AssignActionRequest is the request body for POST /api/v1/actions/:id/assign.
type AssignActionRequest struct {
	Reviewer string `json:"reviewer"`
}

// RevokeRequest is the request body for POST /api/v1/rules/:id/revoke.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

// ActionsResponse lists proposals.
type ActionsResponse struct {
	Actions []*action.Proposal `json:"actions"`
	Count   int                `json:"count"`
}

// RulesResponse lists rules.
type RulesResponse struct {
	Rules []*rules.Rule `json:"rules"`
	Count int           `json:"count"`
}

// AuditResponse lists audit entries.
type AuditResponse struct {
	Entries []*audit.Entry `json:"entries"`
	Count   int            `json:"count"`
}

// SweepResponse is the response body for POST /api/v1/actions/sweep.
type SweepResponse struct {
	Expired int `json:"expired"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}
