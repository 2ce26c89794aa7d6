package action

import (
	"fmt"
	"strings"
)

// Type is the kind of operation an agent proposes.
type Type string

const (
	TypeOutreach        Type = "outreach"
	TypeQualification   Type = "qualification"
	TypeNegotiation     Type = "negotiation"
	TypeAcceptance      Type = "acceptance"
	TypeAssignment      Type = "assignment"
	TypeComplianceAlert Type = "compliance_alert"
	TypeInvoiceApproval Type = "invoice_approval"
)

var allTypes = []Type{
	TypeOutreach,
	TypeQualification,
	TypeNegotiation,
	TypeAcceptance,
	TypeAssignment,
	TypeComplianceAlert,
	TypeInvoiceApproval,
}

// Types returns every supported action type.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// Valid reports whether t is one of the supported action types.
func (t Type) Valid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseType converts s into a Type, rejecting unknown values.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidActionType, s)
	}
	return t, nil
}

// RiskLevel is the totally ordered risk classification of a proposal.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels low < medium < high < critical.
// Unknown levels rank -1.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	return r.Rank() >= 0
}

// AtMost reports whether r is no riskier than limit.
func (r RiskLevel) AtMost(limit RiskLevel) bool {
	return r.Valid() && limit.Valid() && r.Rank() <= limit.Rank()
}

// ParseRiskLevel converts s into a RiskLevel, rejecting unknown values.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRiskLevel, s)
	}
	return r, nil
}

// Status is the lifecycle state of a proposal.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusApprovedWithEdits Status = "approved_with_edits"
	StatusRejected          Status = "rejected"
	StatusAutoExecuted      Status = "auto_executed"
	StatusExpired           Status = "expired"
)

// ValidTransitions defines allowed status transitions.
var ValidTransitions = map[Status][]Status{
	StatusPending: {
		StatusApproved,
		StatusApprovedWithEdits,
		StatusRejected,
		StatusAutoExecuted,
		StatusExpired,
	},
	StatusApproved:          {}, // terminal
	StatusApprovedWithEdits: {}, // terminal
	StatusRejected:          {}, // terminal
	StatusAutoExecuted:      {}, // terminal
	StatusExpired:           {}, // terminal
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := ValidTransitions[s]
	return ok
}

// CanTransitionTo checks if a transition from s to target is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range ValidTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(ValidTransitions[s]) == 0
}

// ParseStatus converts s into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Decision is a human reviewer's verdict on a pending proposal.
type Decision string

const (
	DecisionApprove          Decision = "approve"
	DecisionApproveWithEdits Decision = "approve_with_edits"
	DecisionReject           Decision = "reject"
)

// Status maps the decision to the terminal status it produces.
func (d Decision) Status() (Status, error) {
	switch d {
	case DecisionApprove:
		return StatusApproved, nil
	case DecisionApproveWithEdits:
		return StatusApprovedWithEdits, nil
	case DecisionReject:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, string(d))
	}
}

// ParseDecision converts s into a Decision, rejecting unknown values.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	if _, err := d.Status(); err != nil {
		return "", err
	}
	return d, nil
}
