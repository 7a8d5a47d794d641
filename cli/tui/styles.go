// Package tui provides the Bubble Tea views behind the sluice CLI's --tui
// flag.
//
// TUI mode is opt-in (--tui) and read-only: it presents the same journal
// data the plain renderer prints, never data of its own.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	accentColor    = lipgloss.Color("#0E9594") // teal
	successColor   = lipgloss.Color("#22C55E") // green
	warningColor   = lipgloss.Color("#EAB308") // yellow
	errorColor     = lipgloss.Color("#DC2626") // red
	mutedColor     = lipgloss.Color("#64748B") // slate
	highlightColor = lipgloss.Color("#38BDF8") // sky
	textColor      = lipgloss.Color("#F8FAFC")
)

var (
	// TitleStyle heads each view.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)

	// LabelStyle and ValueStyle pair up on detail lines.
	LabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(18)
	ValueStyle = lipgloss.NewStyle().Foreground(textColor)

	// Outcome colors.
	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)

	// BoxStyle frames a view body.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle dims the key hints under a view.
	HelpStyle = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)

	// Counter tiles on the stats view.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	StatLabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Foreground(textColor).Align(lipgloss.Center)
)

// OutcomeStyle picks the color for a run outcome.
func OutcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "completed":
		return SuccessStyle
	case "canceled":
		return WarningStyle
	case "terminal":
		return ErrorStyle
	default:
		return ValueStyle
	}
}
