package runtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/sluice/metrics"
)

// RunReport is the structured JSON report written by --report. Field
// names are part of the CLI contract.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Outcome    OutcomeStatus `json:"outcome"`
	Message    string        `json:"message"`
	ExitCode   int           `json:"exit_code"`
	DurationMs int64         `json:"duration_ms"`
	Snapshots  int64         `json:"snapshots"`
	Events     int64         `json:"events"`

	Journal *ReportJournal    `json:"journal,omitempty"`
	Metrics *metrics.Snapshot `json:"metrics"`

	FinalState map[string]any `json:"final_state,omitempty"`
	FeedError  string         `json:"feed_error,omitempty"`
}

// ReportJournal holds journal flush stats in the report.
type ReportJournal struct {
	Backend  string `json:"backend"`
	Batches  int64  `json:"batches"`
	Records  int64  `json:"records"`
	Failures int64  `json:"failures"`
}

// BuildRunReport composes a RunReport from a RunResult. exitCode is the
// process exit code the caller will return.
func BuildRunReport(result *RunResult, exitCode int) *RunReport {
	report := &RunReport{
		RunID:      result.RunID,
		Outcome:    result.Outcome.Status,
		Message:    result.Outcome.Message,
		ExitCode:   exitCode,
		DurationMs: result.Duration.Milliseconds(),
		Snapshots:  result.Snapshots,
		Events:     result.Events,
		Metrics:    &result.Metrics,
		FinalState: result.FinalState,
	}

	if result.JournalBackend != "" {
		report.Journal = &ReportJournal{
			Backend:  result.JournalBackend,
			Batches:  result.Tap.Batches,
			Records:  result.Tap.Records,
			Failures: result.Tap.Failures,
		}
	}
	if result.FeedErr != nil {
		report.FeedError = result.FeedErr.Error()
	}

	return report
}

// WriteRunReport writes the report as JSON to path. Path "-" writes to
// stderr instead.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := writeRunReportTo(report, &buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeRunReportTo marshals the report as indented JSON with a trailing
// newline.
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
