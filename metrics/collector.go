// Package metrics provides per-run metrics collection for the pipeline.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies. Journal tap metrics are absorbed from the
// tap's own stats at run completion rather than recorded live, avoiding
// double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all collected metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Intake
	IntentsDispatched   int64
	IntentsByLane       map[string]int64
	DispatchDroppedDead int64

	// Classification / dispatch
	Conflicts      int64
	DefaultHandled int64
	HandlerErrors  int64
	HandlerPanics  int64

	// Grouping
	GroupsCreated       int64
	GroupsEvicted       int64
	ClosedSendDrops     int64
	ClosedSendRecreates int64

	// Accumulator
	Attempts         int64
	Retries          int64
	ChangesFolded    int64
	SnapshotsDropped int64
	SubscriberDrops  int64

	// Output streams
	EventsEmitted   int64
	EventsDiscarded int64

	// Publishers
	PublishSuccess int64
	PublishFailure int64

	// Journal (absorbed from the tap's stats at run completion)
	JournalBatches  int64
	JournalRecords  int64
	JournalFailures int64

	// Dimensions (informational, set at construction)
	Strategy       string
	JournalBackend string
	RunID          string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// Intake
	intentsDispatched   int64
	intentsByLane       map[string]int64
	dispatchDroppedDead int64

	// Classification / dispatch
	conflicts      int64
	defaultHandled int64
	handlerErrors  int64
	handlerPanics  int64

	// Grouping
	groupsCreated       int64
	groupsEvicted       int64
	closedSendDrops     int64
	closedSendRecreates int64

	// Accumulator
	attempts         int64
	retries          int64
	changesFolded    int64
	snapshotsDropped int64
	subscriberDrops  int64

	// Output streams
	eventsEmitted   int64
	eventsDiscarded int64

	// Publishers
	publishSuccess int64
	publishFailure int64

	// Journal (set once via AbsorbTapStats)
	journalBatches  int64
	journalRecords  int64
	journalFailures int64

	// Dimensions
	strategy       string
	journalBackend string
	runID          string
}

// NewCollector creates a Collector with dimension labels.
// strategy and journalBackend identify the run configuration; runID is the
// canonical run identifier.
func NewCollector(strategy, journalBackend, runID string) *Collector {
	return &Collector{
		intentsByLane:  make(map[string]int64),
		strategy:       strategy,
		journalBackend: journalBackend,
		runID:          runID,
	}
}

// --- Intake ---

// IncIntent records a dispatched intent and its classified lane.
func (c *Collector) IncIntent(lane string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.intentsDispatched++
	c.intentsByLane[lane]++
	c.mu.Unlock()
}

// IncDispatchDroppedDead records an intent discarded because the store's
// scope had already ended.
func (c *Collector) IncDispatchDroppedDead() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.dispatchDroppedDead++
	c.mu.Unlock()
}

// --- Classification / dispatch ---

// IncConflict records an intent carrying both capability tags.
func (c *Collector) IncConflict() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.conflicts++
	c.mu.Unlock()
}

// IncDefaultHandled records a dispatch that fell back to the default handler.
func (c *Collector) IncDefaultHandled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.defaultHandled++
	c.mu.Unlock()
}

// IncHandlerError records a handler returning an error.
func (c *Collector) IncHandlerError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.handlerErrors++
	c.mu.Unlock()
}

// IncHandlerPanic records a recovered handler panic.
func (c *Collector) IncHandlerPanic() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.handlerPanics++
	c.mu.Unlock()
}

// --- Grouping ---

// IncGroupCreated records creation of a fallback group queue.
func (c *Collector) IncGroupCreated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.groupsCreated++
	c.mu.Unlock()
}

// IncGroupEvicted records eviction of a detached group queue.
func (c *Collector) IncGroupEvicted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.groupsEvicted++
	c.mu.Unlock()
}

// IncClosedSendDrop records an item dropped on send to a closed group queue.
func (c *Collector) IncClosedSendDrop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.closedSendDrops++
	c.mu.Unlock()
}

// IncClosedSendRecreate records a group queue recreated after a closed send.
func (c *Collector) IncClosedSendRecreate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.closedSendRecreates++
	c.mu.Unlock()
}

// --- Accumulator ---

// IncAttempt records the start of a transformation attempt.
func (c *Collector) IncAttempt() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
}

// IncRetry records a retry-policy approval leading to a resubscribe.
func (c *Collector) IncRetry() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.retries++
	c.mu.Unlock()
}

// IncChangeFolded records one change applied by the fold.
func (c *Collector) IncChangeFolded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.changesFolded++
	c.mu.Unlock()
}

// IncSnapshotDropped records a snapshot evicted by the drop-oldest stage.
func (c *Collector) IncSnapshotDropped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.snapshotsDropped++
	c.mu.Unlock()
}

// IncSubscriberDrop records a state snapshot dropped for one slow subscriber.
func (c *Collector) IncSubscriberDrop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.subscriberDrops++
	c.mu.Unlock()
}

// --- Output streams ---

// IncEventEmitted records a one-shot event delivered to subscribers.
func (c *Collector) IncEventEmitted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsEmitted++
	c.mu.Unlock()
}

// IncEventDiscarded records a one-shot event discarded because no event
// subscriber was attached when it fired.
func (c *Collector) IncEventDiscarded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsDiscarded++
	c.mu.Unlock()
}

// --- Publishers ---

// IncPublishSuccess records a successful publish to an event sink (per-call).
func (c *Collector) IncPublishSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishSuccess++
	c.mu.Unlock()
}

// IncPublishFailure records a failed publish to an event sink (per-call).
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishFailure++
	c.mu.Unlock()
}

// --- Journal (absorbed from the tap) ---

// AbsorbTapStats copies journal tap counters into the collector.
// Called once after run completion with the tap's final stats snapshot.
func (c *Collector) AbsorbTapStats(batches, records, failures int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.journalBatches = batches
	c.journalRecords = records
	c.journalFailures = failures
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byLane := make(map[string]int64, len(c.intentsByLane))
	for k, v := range c.intentsByLane {
		byLane[k] = v
	}

	return Snapshot{
		IntentsDispatched:   c.intentsDispatched,
		IntentsByLane:       byLane,
		DispatchDroppedDead: c.dispatchDroppedDead,

		Conflicts:      c.conflicts,
		DefaultHandled: c.defaultHandled,
		HandlerErrors:  c.handlerErrors,
		HandlerPanics:  c.handlerPanics,

		GroupsCreated:       c.groupsCreated,
		GroupsEvicted:       c.groupsEvicted,
		ClosedSendDrops:     c.closedSendDrops,
		ClosedSendRecreates: c.closedSendRecreates,

		Attempts:         c.attempts,
		Retries:          c.retries,
		ChangesFolded:    c.changesFolded,
		SnapshotsDropped: c.snapshotsDropped,
		SubscriberDrops:  c.subscriberDrops,

		EventsEmitted:   c.eventsEmitted,
		EventsDiscarded: c.eventsDiscarded,

		PublishSuccess: c.publishSuccess,
		PublishFailure: c.publishFailure,

		JournalBatches:  c.journalBatches,
		JournalRecords:  c.journalRecords,
		JournalFailures: c.journalFailures,

		Strategy:       c.strategy,
		JournalBackend: c.journalBackend,
		RunID:          c.runID,
	}
}
