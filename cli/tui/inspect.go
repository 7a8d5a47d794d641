package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sluice/cli/reader"
)

// InspectModel is the Bubble Tea model behind `inspect run --tui`. It is a
// static detail view; the only interaction is quitting.
type InspectModel struct {
	view     string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates an inspect model.
func NewInspectModel(view string, data any) InspectModel {
	return InspectModel{view: view, data: data}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	if m.view == "inspect_run" {
		content = m.renderRunState()
	} else {
		content = fmt.Sprintf("Unknown view type: %s", m.view)
	}
	return content + "\n" + HelpStyle.Render("Press q or Ctrl+C to quit")
}

func (m InspectModel) renderRunState() string {
	view, ok := m.data.(*reader.StateView)
	if !ok {
		return "Invalid data type for inspect_run"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run State"))
	b.WriteString("\n\n")
	writeField(&b, "Run ID", ValueStyle.Render(view.RunID))
	writeField(&b, "Seq", ValueStyle.Render(fmt.Sprintf("%d", view.Seq)))
	writeField(&b, "Ts", ValueStyle.Render(view.Ts))

	b.WriteString("\n")
	b.WriteString(TitleStyle.Render("State"))
	b.WriteString("\n")
	writeStateFields(&b, view.State)

	if len(view.Events) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Events"))
		b.WriteString("\n")
		for _, ev := range view.Events {
			writeEventLine(&b, ev)
		}
	}

	return BoxStyle.Render(b.String())
}

func writeField(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s %s\n", LabelStyle.Render(label+":"), value)
}

// writeStateFields prints state keys in sorted order so the view is stable
// across refreshes.
func writeStateFields(b *strings.Builder, state map[string]any) {
	if len(state) == 0 {
		b.WriteString(ValueStyle.Render("(empty)"))
		b.WriteString("\n")
		return
	}

	names := make([]string, 0, len(state))
	for k := range state {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		writeField(b, k, ValueStyle.Render(compactValue(state[k])))
	}
}

func writeEventLine(b *strings.Builder, ev reader.EventView) {
	seq := lipgloss.NewStyle().Foreground(mutedColor).Render(fmt.Sprintf("#%d", ev.Seq))
	typ := lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render(ev.Type)
	fmt.Fprintf(b, "%s %s", seq, typ)
	if len(ev.Payload) > 0 {
		b.WriteString("  ")
		b.WriteString(ValueStyle.Render(compactValue(ev.Payload)))
	}
	b.WriteString("\n")
}

// compactValue flattens nested values into one display cell.
func compactValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any, []any:
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// RunInspectTUI starts the inspect program in the alternate screen.
func RunInspectTUI(view string, data any) error {
	p := tea.NewProgram(NewInspectModel(view, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders the inspect view once, without a program.
func RenderInspectStatic(view string, data any) string {
	m := NewInspectModel(view, data)
	m.width, m.height = 80, 24
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
