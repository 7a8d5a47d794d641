package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("hybrid", "fs", "run-001")

	c.IncIntent("parallel")
	c.IncIntent("parallel")
	c.IncIntent("sequential")
	c.IncIntent("grouped")
	c.IncDispatchDroppedDead()
	c.IncConflict()
	c.IncConflict()
	c.IncDefaultHandled()
	c.IncHandlerError()
	c.IncHandlerPanic()
	c.IncGroupCreated()
	c.IncGroupCreated()
	c.IncGroupEvicted()
	c.IncClosedSendDrop()
	c.IncClosedSendRecreate()
	c.IncAttempt()
	c.IncRetry()
	c.IncChangeFolded()
	c.IncChangeFolded()
	c.IncChangeFolded()
	c.IncSnapshotDropped()
	c.IncSubscriberDrop()
	c.IncEventEmitted()
	c.IncEventDiscarded()
	c.IncPublishSuccess()
	c.IncPublishFailure()

	s := c.Snapshot()

	if s.IntentsDispatched != 4 {
		t.Errorf("IntentsDispatched = %d, want 4", s.IntentsDispatched)
	}
	if s.IntentsByLane["parallel"] != 2 {
		t.Errorf("IntentsByLane[parallel] = %d, want 2", s.IntentsByLane["parallel"])
	}
	if s.IntentsByLane["sequential"] != 1 {
		t.Errorf("IntentsByLane[sequential] = %d, want 1", s.IntentsByLane["sequential"])
	}
	if s.IntentsByLane["grouped"] != 1 {
		t.Errorf("IntentsByLane[grouped] = %d, want 1", s.IntentsByLane["grouped"])
	}
	if s.DispatchDroppedDead != 1 {
		t.Errorf("DispatchDroppedDead = %d, want 1", s.DispatchDroppedDead)
	}
	if s.Conflicts != 2 {
		t.Errorf("Conflicts = %d, want 2", s.Conflicts)
	}
	if s.DefaultHandled != 1 {
		t.Errorf("DefaultHandled = %d, want 1", s.DefaultHandled)
	}
	if s.HandlerErrors != 1 {
		t.Errorf("HandlerErrors = %d, want 1", s.HandlerErrors)
	}
	if s.HandlerPanics != 1 {
		t.Errorf("HandlerPanics = %d, want 1", s.HandlerPanics)
	}
	if s.GroupsCreated != 2 {
		t.Errorf("GroupsCreated = %d, want 2", s.GroupsCreated)
	}
	if s.GroupsEvicted != 1 {
		t.Errorf("GroupsEvicted = %d, want 1", s.GroupsEvicted)
	}
	if s.ClosedSendDrops != 1 {
		t.Errorf("ClosedSendDrops = %d, want 1", s.ClosedSendDrops)
	}
	if s.ClosedSendRecreates != 1 {
		t.Errorf("ClosedSendRecreates = %d, want 1", s.ClosedSendRecreates)
	}
	if s.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", s.Attempts)
	}
	if s.Retries != 1 {
		t.Errorf("Retries = %d, want 1", s.Retries)
	}
	if s.ChangesFolded != 3 {
		t.Errorf("ChangesFolded = %d, want 3", s.ChangesFolded)
	}
	if s.SnapshotsDropped != 1 {
		t.Errorf("SnapshotsDropped = %d, want 1", s.SnapshotsDropped)
	}
	if s.SubscriberDrops != 1 {
		t.Errorf("SubscriberDrops = %d, want 1", s.SubscriberDrops)
	}
	if s.EventsEmitted != 1 {
		t.Errorf("EventsEmitted = %d, want 1", s.EventsEmitted)
	}
	if s.EventsDiscarded != 1 {
		t.Errorf("EventsDiscarded = %d, want 1", s.EventsDiscarded)
	}
	if s.PublishSuccess != 1 {
		t.Errorf("PublishSuccess = %d, want 1", s.PublishSuccess)
	}
	if s.PublishFailure != 1 {
		t.Errorf("PublishFailure = %d, want 1", s.PublishFailure)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("sequential", "s3", "run-42")
	s := c.Snapshot()

	if s.Strategy != "sequential" {
		t.Errorf("Strategy = %q, want %q", s.Strategy, "sequential")
	}
	if s.JournalBackend != "s3" {
		t.Errorf("JournalBackend = %q, want %q", s.JournalBackend, "s3")
	}
	if s.RunID != "run-42" {
		t.Errorf("RunID = %q, want %q", s.RunID, "run-42")
	}
}

func TestCollector_AbsorbTapStats(t *testing.T) {
	c := NewCollector("hybrid", "fs", "run-001")

	c.AbsorbTapStats(4, 512, 1)

	s := c.Snapshot()
	if s.JournalBatches != 4 {
		t.Errorf("JournalBatches = %d, want 4", s.JournalBatches)
	}
	if s.JournalRecords != 512 {
		t.Errorf("JournalRecords = %d, want 512", s.JournalRecords)
	}
	if s.JournalFailures != 1 {
		t.Errorf("JournalFailures = %d, want 1", s.JournalFailures)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("hybrid", "fs", "run-001")
	c.IncIntent("parallel")
	c.IncChangeFolded()

	s1 := c.Snapshot()

	// Keep counting after the snapshot was taken.
	c.IncIntent("parallel")
	c.IncChangeFolded()
	c.IncChangeFolded()

	// The first snapshot stays frozen.
	if s1.IntentsDispatched != 1 {
		t.Errorf("s1.IntentsDispatched = %d, want 1 (snapshot should be frozen)", s1.IntentsDispatched)
	}
	if s1.ChangesFolded != 1 {
		t.Errorf("s1.ChangesFolded = %d, want 1 (snapshot should be frozen)", s1.ChangesFolded)
	}

	// A fresh snapshot sees the later counts.
	s2 := c.Snapshot()
	if s2.IntentsDispatched != 2 {
		t.Errorf("s2.IntentsDispatched = %d, want 2", s2.IntentsDispatched)
	}
	if s2.ChangesFolded != 3 {
		t.Errorf("s2.ChangesFolded = %d, want 3", s2.ChangesFolded)
	}
}

func TestCollector_SnapshotByLaneIsolation(t *testing.T) {
	c := NewCollector("hybrid", "fs", "run-001")
	c.IncIntent("grouped")

	s := c.Snapshot()

	// Writing through the snapshot's map must not reach the collector.
	s.IntentsByLane["grouped"] = 999
	s.IntentsByLane["bogus"] = 1

	s2 := c.Snapshot()
	if s2.IntentsByLane["grouped"] != 1 {
		t.Errorf("IntentsByLane[grouped] = %d, want 1 (collector should be isolated from snapshot mutation)", s2.IntentsByLane["grouped"])
	}
	if _, exists := s2.IntentsByLane["bogus"]; exists {
		t.Error("IntentsByLane picked up a key written through a snapshot")
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// Every increment is a no-op on a nil collector.
	c.IncIntent("parallel")
	c.IncDispatchDroppedDead()
	c.IncConflict()
	c.IncDefaultHandled()
	c.IncHandlerError()
	c.IncHandlerPanic()
	c.IncGroupCreated()
	c.IncGroupEvicted()
	c.IncClosedSendDrop()
	c.IncClosedSendRecreate()
	c.IncAttempt()
	c.IncRetry()
	c.IncChangeFolded()
	c.IncSnapshotDropped()
	c.IncSubscriberDrop()
	c.IncEventEmitted()
	c.IncEventDiscarded()
	c.IncPublishSuccess()
	c.IncPublishFailure()
	c.AbsorbTapStats(1, 2, 3)

	s := c.Snapshot()
	if s.IntentsDispatched != 0 {
		t.Errorf("nil collector snapshot IntentsDispatched = %d, want 0", s.IntentsDispatched)
	}
	if s.IntentsByLane != nil {
		t.Errorf("nil collector snapshot IntentsByLane should be nil, got %v", s.IntentsByLane)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	const workers, perWorker = 10, 1000

	c := NewCollector("hybrid", "fs", "run-001")

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				c.IncIntent("parallel")
				c.IncChangeFolded()
				c.IncEventEmitted()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	want := int64(workers * perWorker)

	if s.IntentsDispatched != want {
		t.Errorf("IntentsDispatched = %d, want %d", s.IntentsDispatched, want)
	}
	if s.IntentsByLane["parallel"] != want {
		t.Errorf("IntentsByLane[parallel] = %d, want %d", s.IntentsByLane["parallel"], want)
	}
	if s.ChangesFolded != want {
		t.Errorf("ChangesFolded = %d, want %d", s.ChangesFolded, want)
	}
	if s.EventsEmitted != want {
		t.Errorf("EventsEmitted = %d, want %d", s.EventsEmitted, want)
	}
}

func TestCollector_ZeroValueSnapshot(t *testing.T) {
	c := NewCollector("hybrid", "fs", "run-001")
	s := c.Snapshot()

	if s.IntentsDispatched != 0 || s.Conflicts != 0 || s.DefaultHandled != 0 {
		t.Error("fresh collector should have zero dispatch counters")
	}
	if s.Attempts != 0 || s.Retries != 0 || s.ChangesFolded != 0 || s.SnapshotsDropped != 0 {
		t.Error("fresh collector should have zero accumulator counters")
	}
	if s.JournalBatches != 0 || s.JournalRecords != 0 || s.JournalFailures != 0 {
		t.Error("fresh collector should have zero journal counters")
	}
	if len(s.IntentsByLane) != 0 {
		t.Errorf("fresh collector IntentsByLane should be empty, got %v", s.IntentsByLane)
	}
}
