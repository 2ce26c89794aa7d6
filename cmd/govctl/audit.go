package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	api "github.com/fyrsmithlabs/govern/internal/http"
)

func newAuditCmd(opts *options) *cobra.Command {
	var (
		actionID, ruleID, company string
		since                     time.Duration
		limit                     int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit trail",
		Long: `Query the audit trail. Entries are returned oldest first.

Examples:
  # Everything that happened to one action
  govctl audit --action 6f1c...

  # Rule changes at acme in the last day
  govctl audit --company acme --since 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			if since < 0 {
				return fmt.Errorf("--since must not be negative")
			}
			q := url.Values{}
			setQuery(q, "action_id", actionID)
			setQuery(q, "rule_id", ruleID)
			setQuery(q, "company_id", company)
			if since > 0 {
				q.Set("from", time.Now().Add(-since).UTC().Format(time.RFC3339))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			var resp api.AuditResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/audit", q, &resp); err != nil {
				return err
			}
			return writeAudit(cmd.OutOrStdout(), opts.output, resp.Entries)
		},
	}
	f := cmd.Flags()
	f.StringVar(&actionID, "action", "", "filter by action id")
	f.StringVar(&ruleID, "rule", "", "filter by rule id")
	f.StringVar(&company, "company", "", "filter by company id")
	f.DurationVar(&since, "since", 0, "only entries newer than this")
	f.IntVar(&limit, "limit", 0, "maximum results")
	return cmd
}
