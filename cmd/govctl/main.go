// Package main implements govctl, the reviewer CLI for the governd REST API.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

const (
	defaultServer  = "http://localhost:9480"
	defaultTimeout = 30 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the persistent flags shared by every command.
type options struct {
	server  string
	actor   string
	output  string
	timeout time.Duration
}

func (o *options) client() *client {
	return newClient(o.server, o.actor, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "govctl",
		Short: "Review and govern AI agent actions",
		Long: `govctl talks to a governd server. Reviewers use it to work the pending
queue; operators use it to manage rules and inspect the audit trail.

Examples:
  # Show what is waiting for review at acme
  govctl pending --company acme

  # Approve, edit or reject a proposal
  govctl approve 6f1c...
  govctl edit 6f1c... --content-file reply.txt
  govctl reject 6f1c... --reason "wrong recipient"

  # Inspect how a rule is performing
  govctl rules stats outreach-default`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	server := os.Getenv("GOVERN_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "governd server URL (env GOVERN_SERVER)")
	root.PersistentFlags().StringVar(&opts.actor, "actor", os.Getenv("USER"), "name recorded on audit entries")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "output format: table or json")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "request timeout")

	root.AddCommand(
		newSubmitCmd(opts),
		newPendingCmd(opts),
		newShowCmd(opts),
		newApproveCmd(opts),
		newEditCmd(opts),
		newRejectCmd(opts),
		newAssignCmd(opts),
		newSweepCmd(opts),
		newRulesCmd(opts),
		newAuditCmd(opts),
		newHealthCmd(opts),
		newTopCmd(opts),
	)
	return root
}
