package tui

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/key"
)

// launcher starts one view's interactive program.
type launcher func(view string, data any) error

// views maps the journal views with an interactive mode to their
// launchers. TUI mode is read-only: every view presents the payload the
// plain renderer prints, never data of its own.
var views = map[string]launcher{
	"inspect_run": RunInspectTUI,
	"stats_run":   RunStatsTUI,
	"list_runs":   RunStatsTUI,
}

// Run starts the TUI for a view.
func Run(view string, data any) error {
	launch, ok := views[view]
	if !ok {
		return fmt.Errorf("TUI mode is not supported for %s", view)
	}
	return launch(view, data)
}

// IsTUISupported reports whether a view has an interactive mode.
func IsTUISupported(view string) bool {
	_, ok := views[view]
	return ok
}

// SupportedTUIViews lists the views with an interactive mode.
func SupportedTUIViews() []string {
	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// keyMap defines the bindings shared by all views.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
