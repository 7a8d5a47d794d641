package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/sluice/wire"
)

// ErrNoRunMetrics is returned when no run metrics record matches.
var ErrNoRunMetrics = errors.New("journal: no run metrics found")

// ErrNoSnapshots is returned when no state record matches.
var ErrNoSnapshots = errors.New("journal: no snapshots found")

// LatestRunMetrics reads the most recent run metrics record, filtered
// by runID when non-empty. Returns ErrNoRunMetrics when none match.
func (j *Journal) LatestRunMetrics(ctx context.Context, runID string) (*RunMetricsRecord, error) {
	snapshots, err := j.metrics.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: list metrics snapshots: %w", err)
	}

	// Iterate latest first; snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesRun(snap, runID) {
			continue
		}

		data, err := j.metrics.Read(ctx, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("journal: read metrics snapshot %s: %w", snap.ID, err)
		}

		// Manifest path filtering is a coarse pre-filter; record
		// fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if record["record_kind"] != RecordKindRunMetrics {
				continue
			}
			if runID != "" && toString(record["run_id"]) != runID {
				continue
			}
			return decodeRunMetrics(record), nil
		}
	}

	return nil, ErrNoRunMetrics
}

// AllRunMetrics reads the latest run metrics record for every run,
// sorted by run ID. Runs without a metrics record are absent.
func (j *Journal) AllRunMetrics(ctx context.Context) ([]*RunMetricsRecord, error) {
	snapshots, err := j.metrics.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: list metrics snapshots: %w", err)
	}

	// Latest first so the first record seen per run wins.
	seen := make(map[string]bool)
	var out []*RunMetricsRecord
	for i := len(snapshots) - 1; i >= 0; i-- {
		data, err := j.metrics.Read(ctx, snapshots[i].ID)
		if err != nil {
			return nil, fmt.Errorf("journal: read metrics snapshot %s: %w", snapshots[i].ID, err)
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindRunMetrics {
				continue
			}
			runID := toString(record["run_id"])
			if runID == "" || seen[runID] {
				continue
			}
			seen[runID] = true
			out = append(out, decodeRunMetrics(record))
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].RunID < out[b].RunID })
	return out, nil
}

// LatestState reads the newest state record for a run (or for any run
// when runID is empty). Returns ErrNoSnapshots when none match.
func (j *Journal) LatestState(ctx context.Context, runID string) (*wire.StateRecord, error) {
	snapshots, err := j.snapshots.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: list state snapshots: %w", err)
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesRun(snap, runID) {
			continue
		}

		data, err := j.snapshots.Read(ctx, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("journal: read state snapshot %s: %w", snap.ID, err)
		}

		// Batches are written in fold order, so the highest seq in the
		// newest matching batch is the run's latest state.
		var best *wire.StateRecord
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindSnapshot {
				continue
			}
			if runID != "" && toString(record["run_id"]) != runID {
				continue
			}
			rec := decodeState(record)
			if best == nil || rec.Seq > best.Seq {
				best = rec
			}
		}
		if best != nil {
			return best, nil
		}
	}

	return nil, ErrNoSnapshots
}

// Events reads a run's event records in emission order, filtered by
// event type when non-empty. When limit > 0 only the most recent
// limit events are kept.
func (j *Journal) Events(ctx context.Context, runID, eventType string, limit int) ([]wire.EventRecord, error) {
	snapshots, err := j.events.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: list event snapshots: %w", err)
	}

	var out []wire.EventRecord
	for _, snap := range snapshots {
		if !snapshotMatchesRun(snap, runID) {
			continue
		}

		data, err := j.events.Read(ctx, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("journal: read event snapshot %s: %w", snap.ID, err)
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindEvent {
				continue
			}
			if runID != "" && toString(record["run_id"]) != runID {
				continue
			}
			if eventType != "" && toString(record["type"]) != eventType {
				continue
			}
			out = append(out, *decodeEvent(record))
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// snapshotMatchesRun checks if a snapshot's file paths match the
// run_id partition filter. Empty runID matches everything.
func snapshotMatchesRun(snap *lode.DatasetSnapshot, runID string) bool {
	if runID == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, "run_id", runID) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an
// exact key=value segment. Segments are delimited by "/", which avoids
// substring false positives (run_id=run-1 matching run_id=run-10).
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func decodeRunMetrics(m map[string]any) *RunMetricsRecord {
	return &RunMetricsRecord{
		ContractVersion:     toString(m["contract_version"]),
		RunID:               toString(m["run_id"]),
		Ts:                  toString(m["ts"]),
		Outcome:             toString(m["outcome"]),
		Strategy:            toString(m["strategy"]),
		JournalBackend:      toString(m["journal_backend"]),
		DurationMs:          toInt64(m["duration_ms"]),
		IntentsDispatched:   toInt64(m["intents_dispatched"]),
		IntentsByLane:       toLaneCounts(m["intents_by_lane"]),
		DispatchDroppedDead: toInt64(m["dispatch_dropped_dead"]),
		Conflicts:           toInt64(m["conflicts"]),
		DefaultHandled:      toInt64(m["default_handled"]),
		HandlerErrors:       toInt64(m["handler_errors"]),
		HandlerPanics:       toInt64(m["handler_panics"]),
		GroupsCreated:       toInt64(m["groups_created"]),
		GroupsEvicted:       toInt64(m["groups_evicted"]),
		Attempts:            toInt64(m["attempts"]),
		Retries:             toInt64(m["retries"]),
		ChangesFolded:       toInt64(m["changes_folded"]),
		SnapshotsDropped:    toInt64(m["snapshots_dropped"]),
		SubscriberDrops:     toInt64(m["subscriber_drops"]),
		EventsEmitted:       toInt64(m["events_emitted"]),
		EventsDiscarded:     toInt64(m["events_discarded"]),
		PublishSuccess:      toInt64(m["publish_success"]),
		PublishFailure:      toInt64(m["publish_failure"]),
		JournalBatches:      toInt64(m["journal_batches"]),
		JournalRecords:      toInt64(m["journal_records"]),
		JournalFailures:     toInt64(m["journal_failures"]),
	}
}

func decodeState(m map[string]any) *wire.StateRecord {
	return &wire.StateRecord{
		ContractVersion: toString(m["contract_version"]),
		RunID:           toString(m["run_id"]),
		Seq:             toInt64(m["seq"]),
		Ts:              toString(m["ts"]),
		State:           toMap(m["state"]),
		EventType:       toString(m["event_type"]),
	}
}

func decodeEvent(m map[string]any) *wire.EventRecord {
	return &wire.EventRecord{
		ContractVersion: toString(m["contract_version"]),
		RunID:           toString(m["run_id"]),
		Seq:             toInt64(m["seq"]),
		Ts:              toString(m["ts"]),
		Type:            toString(m["type"]),
		Payload:         toMap(m["payload"]),
	}
}

// toString converts a value to string, returning "" for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts the numeric types the JSONL codec round-trips
// through. JSON decoding yields float64; fresh in-memory rows may
// still hold int or int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

func toLaneCounts(v any) map[string]int64 {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, val := range m {
		out[k] = toInt64(val)
	}
	return out
}
