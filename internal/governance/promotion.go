package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/events"
	"github.com/fyrsmithlabs/govern/internal/rules"
	"github.com/fyrsmithlabs/govern/internal/store"
)

// errNoChange aborts a transaction that turned out to have nothing to do.
var errNoChange = errors.New("no change")

// ShouldPromote reports whether r has earned level-3 autonomy: it is not yet
// promoted, has at least minSample reviewed outcomes, and its accuracy meets
// its threshold.
func ShouldPromote(r *rules.Rule, minSample int64) bool {
	if r == nil || r.Level3Enabled {
		return false
	}
	if r.TotalActions < minSample {
		return false
	}
	return r.MeetsThreshold()
}

// MaybePromote enables level-3 autonomy for ruleID when ShouldPromote holds.
// The flag flip is set-if-unset, so concurrent calls promote at most once
// and only the winner writes the rule-promoted audit entry. It never
// demotes.
func (e *Engine) MaybePromote(ctx context.Context, ruleID string) (promoted bool, err error) {
	ctx, span := e.tracer.Start(ctx, "governance.promote", trace.WithAttributes(
		attribute.String("rule.id", ruleID),
	))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(ruleID) == "" {
		return false, ErrRuleIDRequired
	}

	now := e.clock()
	var rule *rules.Rule
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		r, err := tx.GetRule(ctx, ruleID)
		if err != nil {
			return err
		}
		if !ShouldPromote(r, e.cfg.MinSampleSize) {
			return errNoChange
		}
		changed, err := tx.SetLevel3(ctx, ruleID, true, now)
		if err != nil {
			return err
		}
		if !changed {
			return errNoChange
		}
		r.Level3Enabled = true
		r.Level3ChangedAt = &now
		rule = r
		return tx.AppendAudit(ctx, audit.ForRule(audit.EventRulePromoted, audit.SystemActor, r, now, map[string]any{
			"accuracy":        r.Accuracy(),
			"min_sample_size": e.cfg.MinSampleSize,
		}))
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("promoting rule %s: %w", ruleID, err)
	}

	span.SetAttributes(attribute.Bool("promoted", true))
	e.cache.Invalidate()
	e.metrics.RecordPromotion()
	e.logger.Info("rule promoted to level 3",
		zap.String("rule_id", rule.ID),
		zap.String("company_id", rule.CompanyID),
		zap.Int64("total_actions", rule.TotalActions),
		zap.Float64("accuracy", rule.Accuracy()),
		zap.Float64("threshold", rule.PromotionThreshold),
	)
	e.publish(ctx, events.RuleEvent(events.KindRulePromoted, rule, audit.SystemActor, now))
	return true, nil
}

// RevokeLevel3 disables level-3 autonomy for ruleID. It is the only way a
// rule loses autonomy. Revoking a rule that is not promoted returns it
// unchanged and writes no audit entry.
func (e *Engine) RevokeLevel3(ctx context.Context, ruleID, actor, reason string) (*rules.Rule, error) {
	if strings.TrimSpace(ruleID) == "" {
		return nil, ErrRuleIDRequired
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	now := e.clock()
	var (
		rule    *rules.Rule
		changed bool
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if changed, err = tx.SetLevel3(ctx, ruleID, false, now); err != nil {
			return err
		}
		if rule, err = tx.GetRule(ctx, ruleID); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return tx.AppendAudit(ctx, audit.ForRule(audit.EventRuleLevel3Revoked, actor, rule, now, map[string]any{
			"reason": reason,
		}))
	})
	if err != nil {
		return nil, fmt.Errorf("revoking level 3 for rule %s: %w", ruleID, err)
	}
	if !changed {
		return rule, nil
	}

	e.cache.Invalidate()
	e.logger.Info("rule level 3 revoked",
		zap.String("rule_id", ruleID),
		zap.String("actor", actor),
		zap.String("reason", reason),
	)
	e.publish(ctx, events.RuleEvent(events.KindRuleRevoked, rule, actor, now))
	return rule, nil
}
