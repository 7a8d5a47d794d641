package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sluice/cli/reader"
	"github.com/pithecene-io/sluice/journal"
)

// StatsModel is the Bubble Tea model behind `stats --tui` and
// `list runs --tui`.
type StatsModel struct {
	view     string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a stats model.
func NewStatsModel(view string, data any) StatsModel {
	return StatsModel{view: view, data: data}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.view {
	case "stats_run":
		content = m.renderRunMetrics()
	case "list_runs":
		content = m.renderRunList()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.view)
	}
	return content + "\n" + HelpStyle.Render("Press q or Ctrl+C to quit")
}

func (m StatsModel) renderRunMetrics() string {
	rec, ok := m.data.(*journal.RunMetricsRecord)
	if !ok {
		return "Invalid data type for stats_run"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run Metrics"))
	b.WriteString("\n\n")
	writeField(&b, "Run ID", ValueStyle.Render(rec.RunID))
	writeField(&b, "Outcome", OutcomeStyle(rec.Outcome).Render(rec.Outcome))
	writeField(&b, "Strategy", ValueStyle.Render(rec.Strategy))
	writeField(&b, "Duration", ValueStyle.Render(fmt.Sprintf("%dms", rec.DurationMs)))
	b.WriteString("\n")

	b.WriteString(statRow(
		statBox("Intents", rec.IntentsDispatched, highlightColor),
		statBox("Folded", rec.ChangesFolded, successColor),
		statBox("Events", rec.EventsEmitted, accentColor),
		statBox("Retries", rec.Retries, warningColor),
	))

	if len(rec.IntentsByLane) > 0 {
		b.WriteString("\n\n")
		b.WriteString(TitleStyle.Render("Lanes"))
		b.WriteString("\n")
		writeLaneCounts(&b, rec.IntentsByLane)
	}

	if rec.JournalRecords > 0 || rec.JournalFailures > 0 {
		b.WriteString("\n")
		b.WriteString(statRow(
			statBox("Journaled", rec.JournalRecords, highlightColor),
			statBox("Batches", rec.JournalBatches, mutedColor),
			statBox("Failures", rec.JournalFailures, errorColor),
		))
	}

	if rec.HandlerErrors > 0 || rec.HandlerPanics > 0 {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(fmt.Sprintf(
			"handler errors: %d, panics: %d", rec.HandlerErrors, rec.HandlerPanics)))
	}

	return b.String()
}

func writeLaneCounts(b *strings.Builder, byLane map[string]int64) {
	lanes := make([]string, 0, len(byLane))
	for lane := range byLane {
		lanes = append(lanes, lane)
	}
	sort.Strings(lanes)
	for _, lane := range lanes {
		writeField(b, lane, ValueStyle.Render(fmt.Sprintf("%d", byLane[lane])))
	}
}

func (m StatsModel) renderRunList() string {
	runs, ok := m.data.([]reader.RunSummary)
	if !ok {
		return "Invalid data type for list_runs"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Journaled Runs"))
	b.WriteString("\n\n")

	if len(runs) == 0 {
		b.WriteString(ValueStyle.Render("(no runs journaled)"))
		return b.String()
	}

	runStyle := lipgloss.NewStyle().Bold(true).Foreground(highlightColor)
	for i, run := range runs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s  %s  %s\n",
			runStyle.Render(run.RunID),
			OutcomeStyle(run.Outcome).Render(run.Outcome),
			ValueStyle.Render(fmt.Sprintf("%d intents, %d events, %dms",
				run.Intents, run.Events, run.DurationMs)))
	}

	return b.String()
}

// statBox renders one counter tile.
func statBox(label string, value int64, color lipgloss.Color) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value)),
		StatLabelStyle.Render(label))
	return StatBoxStyle.BorderForeground(color).Render(content)
}

func statRow(boxes ...string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

// RunStatsTUI starts the stats program in the alternate screen.
func RunStatsTUI(view string, data any) error {
	p := tea.NewProgram(NewStatsModel(view, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders the stats view once, without a program.
func RenderStatsStatic(view string, data any) string {
	m := NewStatsModel(view, data)
	m.width, m.height = 80, 24
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
