package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/condition"
	"github.com/fyrsmithlabs/govern/internal/rules"
	"github.com/fyrsmithlabs/govern/internal/store"
)

// RuleInput defines a new rule. Empty ID gets a generated one, empty Agent
// becomes the wildcard, zero PromotionThreshold takes the configured default
// and nil Active means active.
type RuleInput struct {
	ID                 string               `json:"id,omitempty"`
	CompanyID          string               `json:"company_id"`
	ActionType         action.Type          `json:"action_type"`
	Agent              string               `json:"agent,omitempty"`
	Name               string               `json:"name,omitempty"`
	Description        string               `json:"description,omitempty"`
	Condition          *condition.Condition `json:"condition,omitempty"`
	RiskLevel          action.RiskLevel     `json:"risk_level"`
	Priority           int                  `json:"priority"`
	PromotionThreshold float64              `json:"promotion_threshold,omitempty"`
	Active             *bool                `json:"active,omitempty"`
}

// RuleUpdate changes a rule definition. Nil fields are left alone;
// ClearCondition removes the condition so the rule matches its whole scope.
// Scope (company, action type, agent) is fixed at creation.
type RuleUpdate struct {
	Name               *string              `json:"name,omitempty"`
	Description        *string              `json:"description,omitempty"`
	Condition          *condition.Condition `json:"condition,omitempty"`
	ClearCondition     bool                 `json:"clear_condition,omitempty"`
	RiskLevel          *action.RiskLevel    `json:"risk_level,omitempty"`
	Priority           *int                 `json:"priority,omitempty"`
	PromotionThreshold *float64             `json:"promotion_threshold,omitempty"`
	Active             *bool                `json:"active,omitempty"`
}

func (u RuleUpdate) apply(r *rules.Rule) {
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.ClearCondition {
		r.Condition = nil
	} else if u.Condition != nil {
		c := *u.Condition
		r.Condition = &c
	}
	if u.RiskLevel != nil {
		r.RiskLevel = *u.RiskLevel
	}
	if u.Priority != nil {
		r.Priority = *u.Priority
	}
	if u.PromotionThreshold != nil {
		r.PromotionThreshold = *u.PromotionThreshold
	}
	if u.Active != nil {
		r.Active = *u.Active
	}
}

// CreateRule validates and stores a new rule with zeroed learning state.
func (e *Engine) CreateRule(ctx context.Context, in RuleInput, actor string) (*rules.Rule, error) {
	now := e.clock()
	r := &rules.Rule{
		ID:                 strings.TrimSpace(in.ID),
		CompanyID:          strings.TrimSpace(in.CompanyID),
		ActionType:         in.ActionType,
		Agent:              strings.TrimSpace(in.Agent),
		Name:               in.Name,
		Description:        in.Description,
		Condition:          in.Condition,
		RiskLevel:          in.RiskLevel,
		Priority:           in.Priority,
		PromotionThreshold: in.PromotionThreshold,
		Active:             in.Active == nil || *in.Active,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Agent == "" {
		r.Agent = rules.Wildcard
	}
	if r.PromotionThreshold == 0 {
		r.PromotionThreshold = e.cfg.DefaultPromotionThreshold
	}
	if err := r.Validate(); err != nil {
		return nil, invalid(err)
	}

	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertRule(ctx, r); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.ForRule(audit.EventRuleCreated, actor, r, now, nil))
	})
	if err != nil {
		return nil, fmt.Errorf("creating rule %s: %w", r.ID, err)
	}

	e.cache.Invalidate()
	e.logger.Info("rule created",
		zap.String("rule_id", r.ID),
		zap.String("company_id", r.CompanyID),
		zap.String("action_type", string(r.ActionType)),
		zap.String("agent", r.Agent),
		zap.String("risk", string(r.RiskLevel)),
		zap.String("actor", actor),
	)
	return r.Clone(), nil
}

// UpdateRule edits a rule definition. Counters and the level-3 flag are
// never touched. An update that changes nothing writes no audit entry.
func (e *Engine) UpdateRule(ctx context.Context, id string, u RuleUpdate, actor string) (*rules.Rule, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrRuleIDRequired
	}
	return e.mutateRule(ctx, id, actor, audit.EventRuleUpdated, func(r *rules.Rule) {
		u.apply(r)
	})
}

// DeactivateRule stops a rule from matching. Its history is kept and it can
// be reactivated through UpdateRule. Deactivating an inactive rule is a
// no-op.
func (e *Engine) DeactivateRule(ctx context.Context, id, actor string) (*rules.Rule, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrRuleIDRequired
	}
	return e.mutateRule(ctx, id, actor, audit.EventRuleDeactivated, func(r *rules.Rule) {
		r.Active = false
	})
}

func (e *Engine) mutateRule(ctx context.Context, id, actor string, event audit.EventType, edit func(*rules.Rule)) (*rules.Rule, error) {
	now := e.clock()
	var (
		result  *rules.Rule
		changed bool
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetRule(ctx, id)
		if err != nil {
			return err
		}
		next := cur.Clone()
		edit(next)
		if next.SameDefinition(cur) {
			result = cur
			return nil
		}
		if err := next.Validate(); err != nil {
			return invalid(err)
		}
		next.UpdatedAt = now
		if err := tx.UpdateRuleDefinition(ctx, next); err != nil {
			return err
		}
		result, changed = next, true
		return tx.AppendAudit(ctx, audit.ForRule(event, actor, next, now, nil))
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("updating rule %s: %w", id, err)
	}

	if changed {
		e.cache.Invalidate()
		e.logger.Info("rule updated",
			zap.String("rule_id", id),
			zap.String("event", string(event)),
			zap.Bool("active", result.Active),
			zap.String("actor", actor),
		)
	}
	return result, nil
}

// UpsertRule creates def or brings the stored rule's definition in line with
// it. Learning state is never imported, and an existing rule's scope never
// changes: a declaration with a different scope fails with
// ErrScopeImmutable. It backs rule seed files.
func (e *Engine) UpsertRule(ctx context.Context, def *rules.Rule, actor string) (rules.UpsertResult, error) {
	if def.PromotionThreshold == 0 {
		def.PromotionThreshold = e.cfg.DefaultPromotionThreshold
	}
	if err := def.Validate(); err != nil {
		return rules.UpsertUnchanged, invalid(err)
	}

	now := e.clock()
	result := rules.UpsertUnchanged
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetRule(ctx, def.ID)
		if errors.Is(err, store.ErrNotFound) {
			r := def.Clone()
			r.Level3Enabled, r.Level3ChangedAt = false, nil
			r.TotalActions, r.ApprovedWithoutEdits, r.ApprovedWithEdits, r.Rejected, r.AutoExecuted = 0, 0, 0, 0, 0
			r.CreatedAt, r.UpdatedAt = now, now
			if err := tx.InsertRule(ctx, r); err != nil {
				return err
			}
			result = rules.UpsertCreated
			return tx.AppendAudit(ctx, audit.ForRule(audit.EventRuleCreated, actor, r, now, nil))
		}
		if err != nil {
			return err
		}
		if !cur.SameScope(def) {
			return fmt.Errorf("%w (stored %s/%s/%s, declared %s/%s/%s)", ErrScopeImmutable,
				cur.CompanyID, cur.ActionType, cur.Agent, def.CompanyID, def.ActionType, def.Agent)
		}
		if cur.SameDefinition(def) {
			return nil
		}

		next := cur.Clone()
		next.Name = def.Name
		next.Description = def.Description
		next.Condition = def.Clone().Condition
		next.RiskLevel = def.RiskLevel
		next.Priority = def.Priority
		next.PromotionThreshold = def.PromotionThreshold
		next.Active = def.Active
		next.UpdatedAt = now
		if err := tx.UpdateRuleDefinition(ctx, next); err != nil {
			return err
		}
		result = rules.UpsertUpdated
		return tx.AppendAudit(ctx, audit.ForRule(audit.EventRuleUpdated, actor, next, now, nil))
	})
	if err != nil {
		return rules.UpsertUnchanged, fmt.Errorf("upserting rule %s: %w", def.ID, err)
	}
	if result != rules.UpsertUnchanged {
		e.cache.Invalidate()
	}
	return result, nil
}

// GetRule returns one rule, active or not.
func (e *Engine) GetRule(ctx context.Context, id string) (*rules.Rule, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrRuleIDRequired
	}
	r, err := e.store.GetRule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting rule %s: %w", id, err)
	}
	return r, nil
}

// ListRules returns rules matching f ordered by id.
func (e *Engine) ListRules(ctx context.Context, f store.RuleFilter) ([]*rules.Rule, error) {
	if f.ActionType != "" && !f.ActionType.Valid() {
		return nil, invalid(fmt.Errorf("%w: %q", action.ErrInvalidActionType, f.ActionType))
	}
	list, err := e.store.ListRules(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	return list, nil
}

// GetRuleStats returns the learned state of a rule.
func (e *Engine) GetRuleStats(ctx context.Context, id string) (rules.Stats, error) {
	r, err := e.GetRule(ctx, id)
	if err != nil {
		return rules.Stats{}, err
	}
	return r.Stats(), nil
}
