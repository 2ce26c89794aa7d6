package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/govern/internal/action"
	api "github.com/fyrsmithlabs/govern/internal/http"
)

func newSubmitCmd(opts *options) *cobra.Command {
	var (
		req       api.SubmitActionRequest
		draftFile string
		entity    string
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a proposed action",
		Long: `Submit a proposed action on behalf of an agent. Mostly useful for testing
rules; agents normally submit through the API or MCP tools.

Examples:
  govctl submit --company acme --type outreach --agent sourcing-agent \
    --title "Intro to Jane" --draft-file intro.txt \
    --entity '{"stage":"lead","score":82}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			if draftFile != "" {
				content, err := readContent(cmd, draftFile)
				if err != nil {
					return err
				}
				req.DraftContent = content
			}
			if entity != "" {
				if err := json.Unmarshal([]byte(entity), &req.EntitySnapshot); err != nil {
					return fmt.Errorf("invalid --entity JSON: %w", err)
				}
			}
			if expiresIn < 0 {
				return fmt.Errorf("--expires-in must not be negative")
			}
			if expiresIn > 0 {
				at := time.Now().Add(expiresIn).UTC()
				req.ExpiresAt = &at
			}

			var p action.Proposal
			if err := opts.client().post(cmd.Context(), "/api/v1/actions", req, &p); err != nil {
				return err
			}
			return writeProposal(cmd.OutOrStdout(), opts.output, &p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.CompanyID, "company", "", "company id")
	f.StringVar(&req.ActionType, "type", "", "action type")
	f.StringVar(&req.Agent, "agent", "", "submitting agent")
	f.StringVar(&req.Title, "title", "", "short title")
	f.StringVar(&req.Description, "description", "", "longer description")
	f.StringVar(&req.DraftContent, "draft", "", "draft content")
	f.StringVar(&draftFile, "draft-file", "", "read draft content from a file (- for stdin)")
	f.StringVar(&req.Reasoning, "reasoning", "", "agent reasoning")
	f.StringVar(&entity, "entity", "", "entity snapshot as a JSON object")
	f.DurationVar(&expiresIn, "expires-in", 0, "expire the proposal after this long")
	for _, name := range []string{"company", "type", "agent", "title"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newPendingCmd(opts *options) *cobra.Command {
	var (
		company, actionType, agent, risk, reviewer string
		limit, offset                              int
	)
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List actions waiting for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			q := url.Values{}
			setQuery(q, "company_id", company)
			setQuery(q, "action_type", actionType)
			setQuery(q, "agent", agent)
			setQuery(q, "risk", risk)
			setQuery(q, "assigned_reviewer", reviewer)
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}

			var resp api.ActionsResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/actions", q, &resp); err != nil {
				return err
			}
			return writeProposals(cmd.OutOrStdout(), opts.output, resp.Actions)
		},
	}
	f := cmd.Flags()
	f.StringVar(&company, "company", "", "filter by company id")
	f.StringVar(&actionType, "type", "", "filter by action type")
	f.StringVar(&agent, "agent", "", "filter by agent")
	f.StringVar(&risk, "risk", "", "filter by risk level")
	f.StringVar(&reviewer, "assigned", "", "filter by assigned reviewer")
	f.IntVar(&limit, "limit", 0, "maximum results")
	f.IntVar(&offset, "offset", 0, "results to skip")
	return cmd
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <action-id>",
		Short: "Show one action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			var p action.Proposal
			if err := opts.client().get(cmd.Context(), actionPath(args[0]), nil, &p); err != nil {
				return err
			}
			return writeProposal(cmd.OutOrStdout(), opts.output, &p)
		},
	}
}

func newApproveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <action-id>",
		Short: "Approve an action as drafted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return review(cmd, opts, args[0], api.ReviewActionRequest{
				Decision: string(action.DecisionApprove),
			})
		},
	}
}

func newEditCmd(opts *options) *cobra.Command {
	var content, contentFile string
	cmd := &cobra.Command{
		Use:   "edit <action-id>",
		Short: "Approve an action with edited content",
		Long: `Approve an action with edited content. The edit distance from the agent's
draft is recorded against the matching rule.

Examples:
  govctl edit 6f1c... --content "Hi Jane, ..."
  govctl edit 6f1c... --content-file reply.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if contentFile != "" {
				c, err := readContent(cmd, contentFile)
				if err != nil {
					return err
				}
				content = c
			}
			if content == "" {
				return fmt.Errorf("edited content is required (--content or --content-file)")
			}
			return review(cmd, opts, args[0], api.ReviewActionRequest{
				Decision:      string(action.DecisionApproveWithEdits),
				EditedContent: content,
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "edited content")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "read edited content from a file (- for stdin)")
	return cmd
}

func newRejectCmd(opts *options) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <action-id>",
		Short: "Reject an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return review(cmd, opts, args[0], api.ReviewActionRequest{
				Decision:        string(action.DecisionReject),
				RejectionReason: reason,
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the action was rejected")
	return cmd
}

func review(cmd *cobra.Command, opts *options, id string, req api.ReviewActionRequest) error {
	if err := validateOutput(opts.output); err != nil {
		return err
	}
	var p action.Proposal
	if err := opts.client().post(cmd.Context(), actionPath(id)+"/review", req, &p); err != nil {
		return err
	}
	return writeProposal(cmd.OutOrStdout(), opts.output, &p)
}

func newAssignCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <action-id> <reviewer>",
		Short: "Assign a pending action to a reviewer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			var p action.Proposal
			req := api.AssignActionRequest{Reviewer: args[1]}
			if err := opts.client().post(cmd.Context(), actionPath(args[0])+"/assign", req, &p); err != nil {
				return err
			}
			return writeProposal(cmd.OutOrStdout(), opts.output, &p)
		},
	}
}

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue pending actions now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp api.SweepResponse
			if err := opts.client().post(cmd.Context(), "/api/v1/actions/sweep", nil, &resp); err != nil {
				return err
			}
			if opts.output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d action(s)\n", resp.Expired)
			return nil
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check governd server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp api.HealthResponse
			if err := opts.client().get(cmd.Context(), "/health", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Store:         %s\n", resp.Store)
			fmt.Fprintf(cmd.OutOrStdout(), "Server URL:    %s\n", opts.server)
			return nil
		},
	}
}

// readContent reads a file, or stdin when path is "-".
func readContent(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return string(b), nil
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
