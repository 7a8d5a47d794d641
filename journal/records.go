package journal

import (
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/wire"
)

// Record discriminator values. Each dataset holds one kind; the
// discriminator travels with the record so rows stay self-describing
// when read back in bulk.
const (
	RecordKindSnapshot   = "snapshot"
	RecordKindEvent      = "event"
	RecordKindRunMetrics = "run_metrics"
)

// RunMetricsRecord is the storage form of one run's cumulative metrics.
type RunMetricsRecord struct {
	ContractVersion string `json:"contract_version"`
	RunID           string `json:"run_id"`
	Ts              string `json:"ts"`
	Outcome         string `json:"outcome"`
	Strategy        string `json:"strategy"`
	JournalBackend  string `json:"journal_backend"`
	DurationMs      int64  `json:"duration_ms"`

	IntentsDispatched   int64            `json:"intents_dispatched"`
	IntentsByLane       map[string]int64 `json:"intents_by_lane"`
	DispatchDroppedDead int64            `json:"dispatch_dropped_dead"`
	Conflicts           int64            `json:"conflicts"`
	DefaultHandled      int64            `json:"default_handled"`
	HandlerErrors       int64            `json:"handler_errors"`
	HandlerPanics       int64            `json:"handler_panics"`
	GroupsCreated       int64            `json:"groups_created"`
	GroupsEvicted       int64            `json:"groups_evicted"`
	Attempts            int64            `json:"attempts"`
	Retries             int64            `json:"retries"`
	ChangesFolded       int64            `json:"changes_folded"`
	SnapshotsDropped    int64            `json:"snapshots_dropped"`
	SubscriberDrops     int64            `json:"subscriber_drops"`
	EventsEmitted       int64            `json:"events_emitted"`
	EventsDiscarded     int64            `json:"events_discarded"`
	PublishSuccess      int64            `json:"publish_success"`
	PublishFailure      int64            `json:"publish_failure"`
	JournalBatches      int64            `json:"journal_batches"`
	JournalRecords      int64            `json:"journal_records"`
	JournalFailures     int64            `json:"journal_failures"`
}

// NewRunMetricsRecord builds the storage record from a collector
// snapshot plus run outcome metadata.
func NewRunMetricsRecord(snap metrics.Snapshot, outcome, ts string, durationMs int64) *RunMetricsRecord {
	return &RunMetricsRecord{
		ContractVersion:     wire.ContractVersion,
		RunID:               snap.RunID,
		Ts:                  ts,
		Outcome:             outcome,
		Strategy:            snap.Strategy,
		JournalBackend:      snap.JournalBackend,
		DurationMs:          durationMs,
		IntentsDispatched:   snap.IntentsDispatched,
		IntentsByLane:       snap.IntentsByLane,
		DispatchDroppedDead: snap.DispatchDroppedDead,
		Conflicts:           snap.Conflicts,
		DefaultHandled:      snap.DefaultHandled,
		HandlerErrors:       snap.HandlerErrors,
		HandlerPanics:       snap.HandlerPanics,
		GroupsCreated:       snap.GroupsCreated,
		GroupsEvicted:       snap.GroupsEvicted,
		Attempts:            snap.Attempts,
		Retries:             snap.Retries,
		ChangesFolded:       snap.ChangesFolded,
		SnapshotsDropped:    snap.SnapshotsDropped,
		SubscriberDrops:     snap.SubscriberDrops,
		EventsEmitted:       snap.EventsEmitted,
		EventsDiscarded:     snap.EventsDiscarded,
		PublishSuccess:      snap.PublishSuccess,
		PublishFailure:      snap.PublishFailure,
		JournalBatches:      snap.JournalBatches,
		JournalRecords:      snap.JournalRecords,
		JournalFailures:     snap.JournalFailures,
	}
}

// snapshotRow converts a state record to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any; run_id doubles
// as the partition key.
func snapshotRow(rec *wire.StateRecord) map[string]any {
	m := map[string]any{
		"record_kind":      RecordKindSnapshot,
		"contract_version": rec.ContractVersion,
		"run_id":           rec.RunID,
		"seq":              rec.Seq,
		"ts":               rec.Ts,
		"state":            rec.State,
	}
	if rec.EventType != "" {
		m["event_type"] = rec.EventType
	}
	return m
}

// eventRow converts an event record to a map for Lode storage.
func eventRow(rec *wire.EventRecord) map[string]any {
	return map[string]any{
		"record_kind":      RecordKindEvent,
		"contract_version": rec.ContractVersion,
		"run_id":           rec.RunID,
		"seq":              rec.Seq,
		"ts":               rec.Ts,
		"type":             rec.Type,
		"payload":          rec.Payload,
	}
}

// metricsRow converts a run metrics record to a map for Lode storage.
func metricsRow(rec *RunMetricsRecord) map[string]any {
	lanes := make(map[string]any, len(rec.IntentsByLane))
	for lane, n := range rec.IntentsByLane {
		lanes[lane] = n
	}
	return map[string]any{
		"record_kind":           RecordKindRunMetrics,
		"contract_version":      rec.ContractVersion,
		"run_id":                rec.RunID,
		"ts":                    rec.Ts,
		"outcome":               rec.Outcome,
		"strategy":              rec.Strategy,
		"journal_backend":       rec.JournalBackend,
		"duration_ms":           rec.DurationMs,
		"intents_dispatched":    rec.IntentsDispatched,
		"intents_by_lane":       lanes,
		"dispatch_dropped_dead": rec.DispatchDroppedDead,
		"conflicts":             rec.Conflicts,
		"default_handled":       rec.DefaultHandled,
		"handler_errors":        rec.HandlerErrors,
		"handler_panics":        rec.HandlerPanics,
		"groups_created":        rec.GroupsCreated,
		"groups_evicted":        rec.GroupsEvicted,
		"attempts":              rec.Attempts,
		"retries":               rec.Retries,
		"changes_folded":        rec.ChangesFolded,
		"snapshots_dropped":     rec.SnapshotsDropped,
		"subscriber_drops":      rec.SubscriberDrops,
		"events_emitted":        rec.EventsEmitted,
		"events_discarded":      rec.EventsDiscarded,
		"publish_success":       rec.PublishSuccess,
		"publish_failure":       rec.PublishFailure,
		"journal_batches":       rec.JournalBatches,
		"journal_records":       rec.JournalRecords,
		"journal_failures":      rec.JournalFailures,
	}
}
