package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/governance"
	"github.com/fyrsmithlabs/govern/internal/ratelimit"
)

type proposeActionInput struct {
	CompanyID        string         `json:"company_id" jsonschema:"required,Tenant the action belongs to"`
	ActionType       string         `json:"action_type" jsonschema:"required,One of outreach qualification negotiation acceptance assignment compliance_alert invoice_approval"`
	Agent            string         `json:"agent" jsonschema:"required,Name of the proposing agent"`
	Title            string         `json:"title" jsonschema:"required,Short title for reviewers"`
	Description      string         `json:"description,omitempty" jsonschema:"Longer description"`
	DraftContent     string         `json:"draft_content,omitempty" jsonschema:"The content the action would send or apply"`
	Reasoning        string         `json:"reasoning,omitempty" jsonschema:"Why the agent proposes this action"`
	EntitySnapshot   map[string]any `json:"entity_snapshot,omitempty" jsonschema:"Facts the agent relied on, keyed by field name"`
	ExpiresInSeconds int            `json:"expires_in_seconds,omitempty" jsonschema:"Seconds until the proposal expires if not reviewed (0 = server default)"`
}

type proposeActionOutput struct {
	ActionID  string `json:"action_id" jsonschema:"Proposal ID, used with action_status"`
	Status    string `json:"status" jsonschema:"pending or auto_executed"`
	RiskLevel string `json:"risk_level" jsonschema:"Resolved risk level"`
	RuleID    string `json:"rule_id,omitempty" jsonschema:"Rule that resolved the risk, empty when the default applied"`
	ExpiresAt string `json:"expires_at,omitempty" jsonschema:"RFC3339 expiry, empty if the proposal does not expire"`
}

type actionStatusInput struct {
	ActionID string `json:"action_id" jsonschema:"required,Proposal ID returned by propose_action"`
}

type actionStatusOutput struct {
	ActionID        string   `json:"action_id" jsonschema:"Proposal ID"`
	Status          string   `json:"status" jsonschema:"Current status"`
	RiskLevel       string   `json:"risk_level" jsonschema:"Resolved risk level"`
	ReviewedBy      string   `json:"reviewed_by,omitempty" jsonschema:"Reviewer who decided"`
	EditedContent   string   `json:"edited_content,omitempty" jsonschema:"Reviewer's edited content, when approved with edits"`
	EditSimilarity  *float64 `json:"edit_similarity,omitempty" jsonschema:"Similarity of the edit to the draft (0-100)"`
	RejectionReason string   `json:"rejection_reason,omitempty" jsonschema:"Why the proposal was rejected"`
	ReviewedAt      string   `json:"reviewed_at,omitempty" jsonschema:"RFC3339 review time"`
	ExecutedAt      string   `json:"executed_at,omitempty" jsonschema:"RFC3339 auto-execution time"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "propose_action",
		Description: "Propose a state-changing action for governance. Returns whether it auto-executed or awaits human review.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args proposeActionInput) (*mcp.CallToolResult, proposeActionOutput, error) {
		out, err := instrumentTool(s, ctx, "propose_action", func(ctx context.Context) (proposeActionOutput, error) {
			return s.proposeAction(ctx, args)
		})
		if err != nil {
			return nil, proposeActionOutput{}, err
		}
		text := fmt.Sprintf("Action %s is %s (risk %s)", out.ActionID, out.Status, out.RiskLevel)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "action_status",
		Description: "Get the current governance status of a proposed action",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args actionStatusInput) (*mcp.CallToolResult, actionStatusOutput, error) {
		out, err := instrumentTool(s, ctx, "action_status", func(ctx context.Context) (actionStatusOutput, error) {
			return s.actionStatus(ctx, args)
		})
		if err != nil {
			return nil, actionStatusOutput{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Action %s is %s", out.ActionID, out.Status)}},
		}, out, nil
	})
}

func instrumentTool[T any](s *Server, ctx context.Context, tool string, fn func(context.Context) (T, error)) (T, error) {
	done := s.metrics.begin(ctx, tool)
	out, err := fn(ctx)
	done(err)
	if err != nil {
		s.logger.Info("tool call failed", zap.String("tool", tool), zap.Error(err))
	}
	return out, err
}

func (s *Server) proposeAction(ctx context.Context, args proposeActionInput) (proposeActionOutput, error) {
	if !s.limiter.Allow(ratelimit.Key(args.CompanyID, args.Agent)) {
		return proposeActionOutput{}, fmt.Errorf("%w for %s", errRateLimited, ratelimit.Key(args.CompanyID, args.Agent))
	}
	if args.ExpiresInSeconds < 0 {
		return proposeActionOutput{}, fmt.Errorf("%w: expires_in_seconds must not be negative", governance.ErrValidation)
	}

	req := governance.SubmitRequest{
		CompanyID:      args.CompanyID,
		ActionType:     action.Type(args.ActionType),
		Agent:          args.Agent,
		Title:          args.Title,
		Description:    args.Description,
		DraftContent:   args.DraftContent,
		Reasoning:      args.Reasoning,
		EntitySnapshot: args.EntitySnapshot,
	}
	if args.ExpiresInSeconds > 0 {
		at := time.Now().Add(time.Duration(args.ExpiresInSeconds) * time.Second)
		req.ExpiresAt = &at
	}

	p, err := s.gov.Submit(ctx, req)
	if err != nil {
		return proposeActionOutput{}, fmt.Errorf("propose action failed: %w", err)
	}
	return proposeActionOutput{
		ActionID:  p.ID,
		Status:    string(p.Status),
		RiskLevel: string(p.RiskLevel),
		RuleID:    p.RuleID,
		ExpiresAt: formatTime(p.ExpiresAt),
	}, nil
}

func (s *Server) actionStatus(ctx context.Context, args actionStatusInput) (actionStatusOutput, error) {
	p, err := s.gov.Get(ctx, args.ActionID)
	if err != nil {
		return actionStatusOutput{}, fmt.Errorf("action status failed: %w", err)
	}
	return actionStatusOutput{
		ActionID:        p.ID,
		Status:          string(p.Status),
		RiskLevel:       string(p.RiskLevel),
		ReviewedBy:      p.ReviewedBy,
		EditedContent:   p.EditedContent,
		EditSimilarity:  p.EditSimilarity,
		RejectionReason: p.RejectionReason,
		ReviewedAt:      formatTime(p.ReviewedAt),
		ExecutedAt:      formatTime(p.ExecutedAt),
	}, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
