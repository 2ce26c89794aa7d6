package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/events"
	"github.com/fyrsmithlabs/govern/internal/similarity"
	"github.com/fyrsmithlabs/govern/internal/store"
)

// AnonymousReviewer is recorded when a review names no reviewer.
const AnonymousReviewer = "anonymous"

// ReviewRequest is a human decision on a pending proposal.
type ReviewRequest struct {
	ActionID        string
	Decision        action.Decision
	Reviewer        string
	EditedContent   string
	RejectionReason string
}

func (r ReviewRequest) validate() error {
	if strings.TrimSpace(r.ActionID) == "" {
		return ErrActionIDRequired
	}
	if _, err := r.Decision.Status(); err != nil {
		return invalid(err)
	}
	switch r.Decision {
	case action.DecisionApproveWithEdits:
		if strings.TrimSpace(r.EditedContent) == "" {
			return ErrEditRequired
		}
	case action.DecisionReject:
		if strings.TrimSpace(r.RejectionReason) == "" {
			return ErrReasonRequired
		}
	}
	return nil
}

// Review applies a decision to a pending proposal. The transition, the rule
// counter increment and the audit entry commit together. A proposal that has
// already left pending yields an error matching ErrNotPending and
// store.ErrConflict; callers should re-read it rather than retry.
//
// Overdue proposals the sweeper has not reached yet are still reviewable.
func (e *Engine) Review(ctx context.Context, req ReviewRequest) (_ *action.Proposal, err error) {
	ctx, span := e.tracer.Start(ctx, "governance.review", trace.WithAttributes(
		attribute.String("action.id", req.ActionID),
		attribute.String("decision", string(req.Decision)),
	))
	defer func() { endSpan(span, err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	target, _ := req.Decision.Status()
	reviewer := strings.TrimSpace(req.Reviewer)
	if reviewer == "" {
		reviewer = AnonymousReviewer
	}

	// The edit score is computed before the transaction opens so a long
	// comparison never holds the store. Drafts do not change after submission.
	var score *float64
	if req.Decision == action.DecisionApproveWithEdits {
		cur, err := e.store.GetAction(ctx, req.ActionID)
		if err != nil {
			return nil, fmt.Errorf("reviewing action %s: %w", req.ActionID, err)
		}
		if cur.Status == action.StatusPending {
			s := similarity.Ratio(cur.DraftContent, req.EditedContent)
			score = &s
		}
	}

	now := e.clock()
	var (
		reviewed *action.Proposal
		credited bool
	)
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetAction(ctx, req.ActionID)
		if err != nil {
			return err
		}
		if cur.Status != action.StatusPending {
			return store.ErrConflict
		}

		next, err := cur.Transition(target)
		if err != nil {
			return err
		}
		next.ReviewedAt = &now
		next.ReviewedBy = reviewer
		switch req.Decision {
		case action.DecisionApproveWithEdits:
			next.EditedContent = req.EditedContent
			next.EditSimilarity = score
		case action.DecisionReject:
			next.RejectionReason = strings.TrimSpace(req.RejectionReason)
		}

		if err := tx.UpdateActionIfStatus(ctx, next, action.StatusPending); err != nil {
			return err
		}
		if _, credited, err = e.recorder.Record(ctx, tx, next); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, audit.ForAction(audit.EventForStatus(next.Status), reviewer, next, now)); err != nil {
			return fmt.Errorf("auditing review: %w", err)
		}
		reviewed = next
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			e.metrics.RecordConflict("review")
			e.logger.Info("review lost to a concurrent transition",
				zap.String("action_id", req.ActionID),
				zap.String("reviewer", reviewer),
			)
			return nil, notPending(req.ActionID)
		}
		return nil, fmt.Errorf("reviewing action %s: %w", req.ActionID, err)
	}

	span.SetAttributes(attribute.String("status", string(reviewed.Status)))
	e.metrics.RecordDecision(string(reviewed.Status))
	e.metrics.RecordReviewLatency(now.Sub(reviewed.CreatedAt))
	fields := []zap.Field{
		zap.String("action_id", reviewed.ID),
		zap.String("company_id", reviewed.CompanyID),
		zap.String("reviewer", reviewer),
		zap.String("status", string(reviewed.Status)),
		zap.String("rule_id", reviewed.RuleID),
	}
	if reviewed.EditSimilarity != nil {
		fields = append(fields, zap.Float64("edit_similarity", *reviewed.EditSimilarity))
	}
	e.logger.Info("proposal reviewed", fields...)
	e.publish(ctx, events.ActionEvent(reviewed, reviewer, now))

	if credited {
		e.promoteAfterOutcome(ctx, reviewed.RuleID)
	}
	return reviewed.Clone(), nil
}

// promoteAfterOutcome runs the promotion check for ruleID. Failures are
// logged and counted; the review has already committed.
func (e *Engine) promoteAfterOutcome(ctx context.Context, ruleID string) {
	if _, err := e.MaybePromote(ctx, ruleID); err != nil {
		e.metrics.RecordPromotionFailure()
		e.logger.Warn("promotion check failed, will retry on next outcome",
			zap.String("rule_id", ruleID),
			zap.Error(err),
		)
	}
}
