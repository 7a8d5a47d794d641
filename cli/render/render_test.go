package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/sluice/cli/reader"
)

func renderTo(t *testing.T, f Format, data any) string {
	t.Helper()
	var buf bytes.Buffer
	if err := NewRendererWithWriter(f, false, &buf).Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return buf.String()
}

func TestParseFormat(t *testing.T) {
	for _, tt := range []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "json", want: FormatJSON},
		{in: "JSON", want: FormatJSON},
		{in: "table", want: FormatTable},
		{in: "yaml", want: FormatYAML},
		{in: ""},
		{in: "xml", wantErr: true},
		{in: "csv", wantErr: true},
	} {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat_ErrorNamesValidFormats(t *testing.T) {
	_, err := ParseFormat("xml")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
	if !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error should list the valid formats, got: %v", err)
	}
}

func TestRender_JSON(t *testing.T) {
	got := renderTo(t, FormatJSON, map[string]int{"snapshots": 7})
	if !strings.Contains(got, `"snapshots"`) || !strings.Contains(got, "7") {
		t.Errorf("JSON output missing content: %s", got)
	}
}

func TestRender_YAML(t *testing.T) {
	got := renderTo(t, FormatYAML, map[string]int{"snapshots": 7})
	if !strings.Contains(got, "snapshots:") || !strings.Contains(got, "7") {
		t.Errorf("YAML output missing content: %s", got)
	}
}

func TestRender_TableDetail(t *testing.T) {
	view := struct {
		RunID string `json:"run_id"`
		Seq   int64  `json:"seq"`
	}{RunID: "run-render", Seq: 41}

	got := renderTo(t, FormatTable, view)
	if !strings.Contains(got, "run_id:") || !strings.Contains(got, "run-render") {
		t.Errorf("table missing run_id line: %s", got)
	}
	if !strings.Contains(got, "seq:") || !strings.Contains(got, "41") {
		t.Errorf("table missing seq line: %s", got)
	}
}

func TestRender_TableList(t *testing.T) {
	got := renderTo(t, FormatTable, []reader.RunSummary{
		{RunID: "run-a", Outcome: "completed", Strategy: "hybrid", Intents: 12, Events: 3, DurationMs: 1500},
		{RunID: "run-b", Outcome: "terminal", Strategy: "all-sequential", Intents: 4, Events: 0, DurationMs: 200},
	})

	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Fatalf("want header plus 2 rows, got %d lines: %s", len(lines), got)
	}
	if !strings.Contains(lines[0], "run_id") || !strings.Contains(lines[0], "outcome") {
		t.Errorf("header row missing columns: %s", lines[0])
	}
	for _, want := range []string{"run-a", "completed", "run-b", "terminal"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q: %s", want, got)
		}
	}
}

func TestRender_TableEmptyList(t *testing.T) {
	if got := renderTo(t, FormatTable, []reader.RunSummary{}); !strings.Contains(got, "(no results)") {
		t.Errorf("empty slice should render (no results), got: %s", got)
	}
}

func TestRender_TableCollapsesComposites(t *testing.T) {
	view := struct {
		Tags  []string          `json:"tags"`
		Attrs map[string]string `json:"attrs"`
		At    time.Time         `json:"at"`
	}{
		Tags: []string{"a", "b", "c"},
		At:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	got := renderTo(t, FormatTable, view)
	if !strings.Contains(got, "[3 items]") {
		t.Errorf("slice should collapse to a count: %s", got)
	}
	if !strings.Contains(got, "{}") {
		t.Errorf("empty map should render as {}: %s", got)
	}
	if !strings.Contains(got, "2026") {
		t.Errorf("time.Time should print, not collapse: %s", got)
	}
}

func TestRender_NoColorKeepsJSONStable(t *testing.T) {
	var plain, noColor bytes.Buffer
	data := map[string]string{"outcome": "completed"}

	if err := NewRendererWithWriter(FormatJSON, false, &plain).Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if err := NewRendererWithWriter(FormatJSON, true, &noColor).Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if plain.String() != noColor.String() {
		t.Error("--no-color must not change JSON output")
	}
}
