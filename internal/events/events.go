// Package events relays governance transitions to live listeners.
//
// Each committed transition produces exactly one Event. Delivery is best
// effort: publishers return errors for logging, and the engine never rolls
// back a decision because an event could not be sent.
//
// NATS subjects:
//
//	<prefix>.actions.<company>.<status>   one per action transition
//	<prefix>.rules.<company>.<kind>       rule promotion and revocation
package events

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/rules"
)

// Kind classifies an event.
type Kind string

const (
	KindActionTransition Kind = "action.transition"
	KindRulePromoted     Kind = "rule.promoted"
	KindRuleRevoked      Kind = "rule.level3_revoked"
)

// Event is the wire payload published for a transition.
type Event struct {
	Kind       Kind       `json:"kind"`
	ActionID   string     `json:"action_id,omitempty"`
	RuleID     string     `json:"rule_id,omitempty"`
	CompanyID  string     `json:"company_id"`
	ActionType string     `json:"action_type,omitempty"`
	Agent      string     `json:"agent,omitempty"`
	Status     string     `json:"status,omitempty"`
	Risk       string     `json:"risk,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// ActionEvent describes p's current status.
func ActionEvent(p *action.Proposal, actor string, at time.Time) Event {
	created := p.CreatedAt
	return Event{
		Kind:       KindActionTransition,
		ActionID:   p.ID,
		RuleID:     p.RuleID,
		CompanyID:  p.CompanyID,
		ActionType: string(p.ActionType),
		Agent:      p.Agent,
		Status:     string(p.Status),
		Risk:       string(p.RiskLevel),
		Actor:      actor,
		CreatedAt:  &created,
		ExpiresAt:  p.ExpiresAt,
		ReviewedAt: p.ReviewedAt,
		ExecutedAt: p.ExecutedAt,
		OccurredAt: at,
	}
}

// RuleEvent describes a change to r's level-3 flag.
func RuleEvent(kind Kind, r *rules.Rule, actor string, at time.Time) Event {
	return Event{
		Kind:       kind,
		RuleID:     r.ID,
		CompanyID:  r.CompanyID,
		ActionType: string(r.ActionType),
		Agent:      r.Agent,
		Risk:       string(r.RiskLevel),
		Actor:      actor,
		OccurredAt: at,
	}
}

// Broadcaster publishes events.
type Broadcaster interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
