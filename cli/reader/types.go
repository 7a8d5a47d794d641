// Package reader is the read-side data access layer for the sluice CLI.
//
// Read-only commands query finished runs through this package instead of
// touching the journal's record types directly; the reader flattens
// journal records into the view shapes the renderer and TUI consume.
package reader

// RunSummary is the thin list view of a journaled run.
type RunSummary struct {
	RunID      string `json:"run_id"`
	Outcome    string `json:"outcome"`
	Strategy   string `json:"strategy"`
	Intents    int64  `json:"intents"`
	Events     int64  `json:"events"`
	DurationMs int64  `json:"duration_ms"`
	Ts         string `json:"ts"`
}

// StateView is the deep view of a single run: its latest folded state
// plus the most recent journaled events.
type StateView struct {
	RunID  string         `json:"run_id"`
	Seq    int64          `json:"seq"`
	Ts     string         `json:"ts"`
	State  map[string]any `json:"state"`
	Events []EventView    `json:"events,omitempty"`
}

// EventView is a single journaled one-shot event.
type EventView struct {
	Seq     int64          `json:"seq"`
	Ts      string         `json:"ts"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}
