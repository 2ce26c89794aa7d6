// Package store persists proposals, rules and the audit trail.
//
// Status transitions are compare-and-swap: UpdateActionIfStatus commits only
// when the stored status still equals the expected pre-state, and reports
// ErrConflict otherwise. Rule counters move through IncrementRuleOutcome, a
// single atomic increment. Audit entries are append-only; no method updates
// or deletes them.
//
// Two implementations exist: SQLStore (SQLite or Postgres through sqlx) and
// MemoryStore for tests and ephemeral deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/rules"
)

// Storage errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("state conflict")
	ErrDuplicate = errors.New("already exists")
	ErrClosed    = errors.New("store is closed")
)

// Tx is the set of operations available inside a transaction. Store embeds
// it, so each method can also run on its own.
type Tx interface {
	InsertAction(ctx context.Context, p *action.Proposal) error
	GetAction(ctx context.Context, id string) (*action.Proposal, error)
	// UpdateActionIfStatus writes p only if the stored status equals
	// expected. Returns ErrConflict when it does not, ErrNotFound when the
	// action does not exist. The assigned reviewer is owned by
	// AssignReviewer and is not written.
	UpdateActionIfStatus(ctx context.Context, p *action.Proposal, expected action.Status) error
	// AssignReviewer sets the reviewer of a pending action.
	AssignReviewer(ctx context.Context, id, reviewer string) error

	InsertRule(ctx context.Context, r *rules.Rule) error
	GetRule(ctx context.Context, id string) (*rules.Rule, error)
	// UpdateRuleDefinition rewrites the definition columns of r. Counters and
	// the level-3 flag are left untouched.
	UpdateRuleDefinition(ctx context.Context, r *rules.Rule) error
	// IncrementRuleOutcome atomically bumps the counters for o.
	IncrementRuleOutcome(ctx context.Context, ruleID string, o rules.Outcome) error
	// SetLevel3 sets the level-3 flag to enabled if it differs, reporting
	// whether anything changed.
	SetLevel3(ctx context.Context, ruleID string, enabled bool, at time.Time) (bool, error)

	AppendAudit(ctx context.Context, e *audit.Entry) error
}

// Store is the full persistence interface.
type Store interface {
	Tx

	// InTx runs fn in a transaction. A non-nil error from fn rolls back.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	ListActions(ctx context.Context, f ActionFilter) ([]*action.Proposal, error)
	// ListExpiredPending returns pending actions whose expiry is at or
	// before now, oldest expiry first.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*action.Proposal, error)

	ListRules(ctx context.Context, f RuleFilter) ([]*rules.Rule, error)
	ActiveRules(ctx context.Context, scope rules.Scope) ([]*rules.Rule, error)

	ListAudit(ctx context.Context, q audit.Query) ([]*audit.Entry, error)

	Ping(ctx context.Context) error
	Close() error
}

// DefaultListLimit and MaxListLimit bound list results.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ActionFilter selects proposals. Zero values match everything.
type ActionFilter struct {
	CompanyID        string
	Status           action.Status
	ActionType       action.Type
	Agent            string
	RiskLevel        action.RiskLevel
	AssignedReviewer string
	Limit            int
	Offset           int
}

// Normalized returns f with limits clamped.
func (f ActionFilter) Normalized() ActionFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether p satisfies the filter (paging excluded).
func (f ActionFilter) Matches(p *action.Proposal) bool {
	if f.CompanyID != "" && p.CompanyID != f.CompanyID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.ActionType != "" && p.ActionType != f.ActionType {
		return false
	}
	if f.Agent != "" && p.Agent != f.Agent {
		return false
	}
	if f.RiskLevel != "" && p.RiskLevel != f.RiskLevel {
		return false
	}
	if f.AssignedReviewer != "" && p.AssignedReviewer != f.AssignedReviewer {
		return false
	}
	return true
}

// RuleFilter selects rules. Zero values match everything; inactive rules
// are excluded unless IncludeInactive is set.
type RuleFilter struct {
	CompanyID       string
	ActionType      action.Type
	Agent           string
	IncludeInactive bool
}

// Matches reports whether r satisfies the filter.
func (f RuleFilter) Matches(r *rules.Rule) bool {
	if !f.IncludeInactive && !r.Active {
		return false
	}
	if f.CompanyID != "" && r.CompanyID != f.CompanyID {
		return false
	}
	if f.ActionType != "" && r.ActionType != f.ActionType {
		return false
	}
	if f.Agent != "" && r.Agent != f.Agent {
		return false
	}
	return true
}
