package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/govern/internal/action"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	fetchTimeout    = 5 * time.Second

	// DefaultMinSampleSize mirrors the engine default and only affects the
	// learning/eligible labels.
	DefaultMinSampleSize = 20
)

var riskOrder = []action.RiskLevel{action.RiskCritical, action.RiskHigh, action.RiskMedium, action.RiskLow}

// Model is the bubbletea model for the review queue dashboard.
type Model struct {
	source    Source
	target    string
	interval  time.Duration
	minSample int64
	now       func() time.Time

	lastUpdate     time.Time
	snapshot       Snapshot
	pendingHistory []float64
	err            error
	quitting       bool

	riskProgress     progress.Model
	accuracyProgress progress.Model
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling source every interval. target is
// shown in the header and error view.
func NewModel(source Source, target string, interval time.Duration) Model {
	return Model{
		source:    source,
		target:    target,
		interval:  interval,
		minSample: DefaultMinSampleSize,
		now:       time.Now,
		riskProgress: progress.New(
			progress.WithGradient("#00ffff", "#ff00ff"),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		accuracyProgress: progress.New(
			progress.WithGradient("#ff0000", "#00ff00"),
			progress.WithWidth(20),
			progress.WithoutPercentage(),
		),
		pendingHistory: make([]float64, 0, historySize),
	}
}

// WithMinSampleSize sets the sample size used to label rules as learning.
func (m Model) WithMinSampleSize(n int64) Model {
	if n > 0 {
		m.minSample = n
	}
	return m
}

// Run starts the dashboard in the alternate screen and blocks until quit.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func stateBadge(s RuleState) string {
	switch s {
	case RuleAutonomous:
		return healthyStyle.Render("[L3]")
	case RuleEligible:
		return healthyStyle.Render("[✓]")
	case RuleBelow:
		return errorStyle.Render("[✗]")
	default:
		return warningStyle.Render("[…]")
	}
}

// queueBadge summarizes queue health: overdue work is an error, critical or
// high risk waiting is a warning.
func queueBadge(s Snapshot) string {
	switch {
	case s.Overdue > 0:
		return errorStyle.Render("✗ OVERDUE")
	case s.ByRisk[action.RiskCritical]+s.ByRisk[action.RiskHigh] > 0:
		return warningStyle.Render("⚠ HIGH RISK WAITING")
	default:
		return healthyStyle.Render("✓ OK")
	}
}

func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg error

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		m.fetch(),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetch() tea.Cmd {
	source, now, minSample := m.source, m.now, m.minSample
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		pending, err := source.Pending(ctx)
		if err != nil {
			return errMsg(err)
		}
		rs, err := source.Rules(ctx)
		if err != nil {
			return errMsg(err)
		}
		return snapshotMsg(Summarize(pending, rs, now(), minSample))
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			m.fetch(),
		)

	case snapshotMsg:
		m.snapshot = Snapshot(msg)
		m.pendingHistory = appendToHistory(m.pendingHistory, float64(m.snapshot.Pending))
		m.lastUpdate = m.now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("governd Review Queue")

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(errorStyle.Render("⚠ Cannot reach governd") + "\n\n")
	b.WriteString(dimStyle.Render("Server: ") + valueStyle.Render(m.target) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry") + "\n")

	return containerStyle.Render(header + "\n" + b.String())
}

func (m Model) renderDashboard() string {
	s := m.snapshot
	var b strings.Builder

	lastUpdate := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdate = m.lastUpdate.Format("3:04:05 PM")
	}
	b.WriteString(headerStyle.Render(" governd Review Queue ") + "\n")
	b.WriteString(fmt.Sprintf("%s   %s   %s\n",
		queueBadge(s),
		dimStyle.Render(m.target),
		dimStyle.Render(lastUpdate)))

	b.WriteString("\n" + sectionStyle.Render("┃ Pending") + "\n")
	b.WriteString(labelStyle.Render("  Waiting: ") +
		valueStyle.Render(fmt.Sprintf("%d", s.Pending)) +
		"   " + createSparkline(m.pendingHistory) + "\n")
	b.WriteString(labelStyle.Render("  Unassigned: ") + valueStyle.Render(fmt.Sprintf("%d", s.Unassigned)) +
		labelStyle.Render("  Overdue: ") + valueStyle.Render(fmt.Sprintf("%d", s.Overdue)) +
		labelStyle.Render("  Oldest: ") + valueStyle.Render(FormatAge(s.OldestAge)) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ By Risk") + "\n")
	for _, risk := range riskOrder {
		n := s.ByRisk[risk]
		ratio := 0.0
		if s.Pending > 0 {
			ratio = float64(n) / float64(s.Pending)
		}
		b.WriteString(labelStyle.Render(fmt.Sprintf("  %-9s", risk)) +
			m.riskProgress.ViewAs(ratio) +
			" " + valueStyle.Render(fmt.Sprintf("%d", n)) + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Rules") + "\n")
	b.WriteString(labelStyle.Render("  Active: ") + valueStyle.Render(fmt.Sprintf("%d", s.ActiveRules)) +
		labelStyle.Render("  Level 3: ") + valueStyle.Render(fmt.Sprintf("%d", s.Level3Rules)) + "\n")
	if len(s.Rules) == 0 {
		b.WriteString(dimStyle.Render("  no active rules") + "\n")
	}
	for _, r := range s.Rules {
		b.WriteString(fmt.Sprintf("  %s %s %s %s %s\n",
			stateBadge(r.State),
			labelStyle.Render(fmt.Sprintf("%-24s", truncate(r.ID, 24))),
			m.accuracyProgress.ViewAs(clamp(r.Accuracy/100)),
			valueStyle.Render(FormatPercentage(r.Accuracy)),
			dimStyle.Render(fmt.Sprintf("/ %s  n=%d  auto=%d", FormatPercentage(r.Threshold), r.Reviewed, r.Auto)),
		))
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	b.WriteString("\n" + footer)

	return containerStyle.Render(b.String())
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
