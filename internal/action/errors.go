package action

import "errors"

// Validation errors.
var (
	ErrInvalidActionType = errors.New("invalid action type")
	ErrInvalidRiskLevel  = errors.New("invalid risk level")
	ErrInvalidStatus     = errors.New("invalid action status")
	ErrInvalidDecision   = errors.New("invalid review decision")
	ErrEmptyCompanyID    = errors.New("company_id is required")
	ErrEmptyAgent        = errors.New("agent is required")
	ErrEmptyTitle        = errors.New("title is required")
)

// Lifecycle errors.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMissingSimilarity = errors.New("approved_with_edits requires an edit similarity")
	ErrMissingReason     = errors.New("rejected requires a rejection reason")
)
