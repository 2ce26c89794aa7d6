package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/rules"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)

	statusStyles = map[action.Status]lipgloss.Style{
		action.StatusPending:           lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		action.StatusApproved:          lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		action.StatusApprovedWithEdits: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		action.StatusAutoExecuted:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		action.StatusRejected:          lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		action.StatusExpired:           lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

func validateOutput(format string) error {
	if format != outputTable && format != outputJSON {
		return fmt.Errorf("output must be %q or %q, got %q", outputTable, outputJSON, format)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}

func status(s action.Status) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeProposals(w io.Writer, format string, list []*action.Proposal) error {
	if format == outputJSON {
		return writeJSON(w, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No actions.")
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		created := p.CreatedAt
		rows = append(rows, []string{
			p.ID, p.CompanyID, string(p.ActionType), p.Agent, string(p.RiskLevel),
			status(p.Status), orDash(p.AssignedReviewer), formatTime(&created), p.Title,
		})
	}
	renderTable(w, []string{"ID", "COMPANY", "TYPE", "AGENT", "RISK", "STATUS", "REVIEWER", "CREATED", "TITLE"}, rows)
	return nil
}

func writeProposal(w io.Writer, format string, p *action.Proposal) error {
	if format == outputJSON {
		return writeJSON(w, p)
	}
	created := p.CreatedAt
	lines := [][2]string{
		{"ID", p.ID},
		{"Company", p.CompanyID},
		{"Type", string(p.ActionType)},
		{"Agent", p.Agent},
		{"Title", p.Title},
		{"Risk", string(p.RiskLevel)},
		{"Rule", orDash(p.RuleID)},
		{"Status", status(p.Status)},
		{"Assigned", orDash(p.AssignedReviewer)},
		{"Reviewed by", orDash(p.ReviewedBy)},
		{"Created", formatTime(&created)},
		{"Expires", formatTime(p.ExpiresAt)},
		{"Reviewed", formatTime(p.ReviewedAt)},
		{"Executed", formatTime(p.ExecutedAt)},
	}
	if p.EditSimilarity != nil {
		lines = append(lines, [2]string{"Similarity", strconv.FormatFloat(*p.EditSimilarity, 'f', 1, 64)})
	}
	if p.RejectionReason != "" {
		lines = append(lines, [2]string{"Rejected for", p.RejectionReason})
	}
	for _, l := range lines {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-13s", l[0]+":")), l[1])
	}
	if p.Reasoning != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", labelStyle.Render("Reasoning:"), p.Reasoning)
	}
	if p.DraftContent != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", labelStyle.Render("Draft:"), p.DraftContent)
	}
	if p.EditedContent != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", labelStyle.Render("Edited:"), p.EditedContent)
	}
	return nil
}

func writeRules(w io.Writer, format string, list []*rules.Rule) error {
	if format == outputJSON {
		return writeJSON(w, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No rules.")
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, r := range list {
		rows = append(rows, []string{
			r.ID, r.CompanyID, string(r.ActionType), orDash(r.Agent), string(r.RiskLevel),
			strconv.Itoa(r.Priority), strconv.FormatBool(r.Active), strconv.FormatBool(r.Level3Enabled),
			strconv.FormatInt(r.TotalActions, 10),
		})
	}
	renderTable(w, []string{"ID", "COMPANY", "TYPE", "AGENT", "RISK", "PRIORITY", "ACTIVE", "LEVEL3", "ACTIONS"}, rows)
	return nil
}

func writeRule(w io.Writer, format string, r *rules.Rule) error {
	if format == outputJSON {
		return writeJSON(w, r)
	}
	return writeRules(w, format, []*rules.Rule{r})
}

func writeStats(w io.Writer, format string, s rules.Stats) error {
	if format == outputJSON {
		return writeJSON(w, s)
	}
	renderTable(w,
		[]string{"RULE", "TOTAL", "APPROVED", "EDITED", "REJECTED", "AUTO", "ACCURACY", "THRESHOLD", "LEVEL3"},
		[][]string{{
			s.RuleID,
			strconv.FormatInt(s.TotalActions, 10),
			strconv.FormatInt(s.ApprovedWithoutEdits, 10),
			strconv.FormatInt(s.ApprovedWithEdits, 10),
			strconv.FormatInt(s.Rejected, 10),
			strconv.FormatInt(s.AutoExecuted, 10),
			strconv.FormatFloat(s.Accuracy, 'f', 1, 64) + "%",
			strconv.FormatFloat(s.PromotionThreshold, 'f', 1, 64) + "%",
			strconv.FormatBool(s.Level3Enabled),
		}})
	return nil
}

func writeAudit(w io.Writer, format string, entries []*audit.Entry) error {
	if format == outputJSON {
		return writeJSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No audit entries.")
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		ts := e.Timestamp
		rows = append(rows, []string{
			strconv.FormatInt(e.Seq, 10), formatTime(&ts), string(e.EventType), orDash(e.Actor),
			orDash(e.ActionID), orDash(e.RuleID), orDash(e.CompanyID),
		})
	}
	renderTable(w, []string{"SEQ", "TIME", "EVENT", "ACTOR", "ACTION", "RULE", "COMPANY"}, rows)
	return nil
}
