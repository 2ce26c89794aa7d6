package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/govern/internal/action"
	api "github.com/fyrsmithlabs/govern/internal/http"
	"github.com/fyrsmithlabs/govern/internal/monitor"
	"github.com/fyrsmithlabs/govern/internal/rules"
)

// queueSource feeds the dashboard from the REST API.
type queueSource struct {
	c       *client
	company string
}

func (s *queueSource) Pending(ctx context.Context) ([]*action.Proposal, error) {
	q := url.Values{}
	setQuery(q, "company_id", s.company)
	var resp api.ActionsResponse
	if err := s.c.get(ctx, "/api/v1/actions", q, &resp); err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

func (s *queueSource) Rules(ctx context.Context) ([]*rules.Rule, error) {
	q := url.Values{}
	setQuery(q, "company_id", s.company)
	var resp api.RulesResponse
	if err := s.c.get(ctx, "/api/v1/rules", q, &resp); err != nil {
		return nil, err
	}
	return resp.Rules, nil
}

func newTopCmd(opts *options) *cobra.Command {
	var (
		company   string
		interval  time.Duration
		minSample int64
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live dashboard of the review queue and rule accuracy",
		Long: `Show a live dashboard of pending actions by risk and of how close each
rule is to autonomous execution. Press q to quit, r to refresh.

Examples:
  govctl top
  govctl top --company acme --interval 2s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			src := &queueSource{c: opts.client(), company: company}
			model := monitor.NewModel(src, opts.server, interval).WithMinSampleSize(minSample)
			return monitor.Run(cmd.Context(), model)
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "only show one company")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "refresh interval")
	cmd.Flags().Int64Var(&minSample, "min-sample", monitor.DefaultMinSampleSize, "reviews before a rule can be promoted")
	return cmd
}
