package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/condition"
	"github.com/fyrsmithlabs/govern/internal/governance"
	api "github.com/fyrsmithlabs/govern/internal/http"
	"github.com/fyrsmithlabs/govern/internal/rules"
)

func newRulesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage governance rules",
	}
	cmd.AddCommand(
		newRulesListCmd(opts),
		newRulesCreateCmd(opts),
		newRulesDeactivateCmd(opts),
		newRulesStatsCmd(opts),
		newRulesRevokeCmd(opts),
	)
	return cmd
}

func newRulesListCmd(opts *options) *cobra.Command {
	var (
		company, actionType, agent string
		all                        bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			q := url.Values{}
			setQuery(q, "company_id", company)
			setQuery(q, "action_type", actionType)
			setQuery(q, "agent", agent)
			if all {
				q.Set("include_inactive", "true")
			}
			var resp api.RulesResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/rules", q, &resp); err != nil {
				return err
			}
			return writeRules(cmd.OutOrStdout(), opts.output, resp.Rules)
		},
	}
	f := cmd.Flags()
	f.StringVar(&company, "company", "", "filter by company id")
	f.StringVar(&actionType, "type", "", "filter by action type")
	f.StringVar(&agent, "agent", "", "filter by agent")
	f.BoolVar(&all, "all", false, "include inactive rules")
	return cmd
}

func newRulesCreateCmd(opts *options) *cobra.Command {
	var (
		file string
		in   governance.RuleInput
		risk string
		cond string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rule from flags or a YAML/JSON file",
		Long: `Create a rule. The definition comes from --file or from flags.

Examples:
  govctl rules create --file outreach.yaml

  govctl rules create --company acme --type outreach --agent sourcing-agent \
    --risk low --priority 10 \
    --condition '{"field":"stage","operator":"equals","value":"lead"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			if file != "" {
				loaded, err := loadRuleInput(file)
				if err != nil {
					return err
				}
				in = *loaded
			} else {
				in.RiskLevel = action.RiskLevel(risk)
				if cond != "" {
					var c condition.Condition
					if err := json.Unmarshal([]byte(cond), &c); err != nil {
						return fmt.Errorf("invalid --condition JSON: %w", err)
					}
					in.Condition = &c
				}
			}

			var r rules.Rule
			if err := opts.client().post(cmd.Context(), "/api/v1/rules", in, &r); err != nil {
				return err
			}
			return writeRule(cmd.OutOrStdout(), opts.output, &r)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "rule definition file (.yaml, .yml or .json)")
	f.StringVar(&in.ID, "id", "", "rule id (generated when empty)")
	f.StringVar(&in.CompanyID, "company", "", "company id, * for every company")
	f.StringVar((*string)(&in.ActionType), "type", "", "action type")
	f.StringVar(&in.Agent, "agent", "", "agent, empty for every agent")
	f.StringVar(&in.Name, "name", "", "rule name")
	f.StringVar(&in.Description, "description", "", "rule description")
	f.StringVar(&risk, "risk", "", "risk level: low, medium, high or critical")
	f.IntVar(&in.Priority, "priority", 0, "higher priority wins when rules overlap")
	f.Float64Var(&in.PromotionThreshold, "threshold", 0, "promotion threshold percent (server default when 0)")
	f.StringVar(&cond, "condition", "", "condition as JSON")
	return cmd
}

// loadRuleInput reads a rule definition. YAML is decoded generically and
// re-encoded as JSON so the API's field names apply to both formats.
func loadRuleInput(path string) (*governance.RuleInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %s: %w", path, err)
	}

	var in governance.RuleInput
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("invalid rule file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("invalid rule file %s: %w", path, err)
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("invalid rule file %s: %w", path, err)
		}
		if err := json.Unmarshal(b, &in); err != nil {
			return nil, fmt.Errorf("invalid rule file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported rule file extension %q", filepath.Ext(path))
	}
	return &in, nil
}

func newRulesDeactivateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <rule-id>",
		Short: "Deactivate a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			var r rules.Rule
			if err := opts.client().delete(cmd.Context(), rulePath(args[0]), &r); err != nil {
				return err
			}
			return writeRule(cmd.OutOrStdout(), opts.output, &r)
		},
	}
}

func newRulesStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <rule-id>",
		Short: "Show a rule's review outcomes and accuracy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			var s rules.Stats
			if err := opts.client().get(cmd.Context(), rulePath(args[0])+"/stats", nil, &s); err != nil {
				return err
			}
			return writeStats(cmd.OutOrStdout(), opts.output, s)
		},
	}
}

func newRulesRevokeCmd(opts *options) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revoke <rule-id>",
		Short: "Revoke a rule's autonomous execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			var r rules.Rule
			req := api.RevokeRequest{Reason: reason}
			if err := opts.client().post(cmd.Context(), rulePath(args[0])+"/revoke", req, &r); err != nil {
				return err
			}
			if opts.output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %s level 3: %s\n", r.ID, strconv.FormatBool(r.Level3Enabled))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why autonomy was revoked")
	return cmd
}
