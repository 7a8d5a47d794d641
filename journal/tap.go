package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/wire"
)

// DefaultBatch is the flush threshold when TapConfig.Batch is zero.
const DefaultBatch = 128

// DefaultInterval is the flush interval when TapConfig.Interval is zero.
const DefaultInterval = 2 * time.Second

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a batch-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerInterval indicates an interval-based flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerTermination indicates an end-of-run flush.
	FlushTriggerTermination FlushTrigger = "termination"
)

// ErrNoWriter is returned when a tap is built without a writer.
var ErrNoWriter = errors.New("journal: tap requires a writer")

// Writer abstracts batch persistence for the tap. Implementations
// must preserve ordering within a batch. *Journal satisfies it.
type Writer interface {
	WriteSnapshots(ctx context.Context, recs []wire.StateRecord) error
	WriteEvents(ctx context.Context, recs []wire.EventRecord) error
}

var _ Writer = (*Journal)(nil)

// TapStats is a point-in-time snapshot of tap activity.
type TapStats struct {
	// Batches is the number of successful flushes that wrote records.
	Batches int64
	// Records is the number of records persisted.
	Records int64
	// Failures is the number of failed flush attempts.
	Failures int64
	// Buffered is the number of records currently buffered.
	Buffered int64
}

// TapConfig configures a Tap.
type TapConfig struct {
	// Writer receives the flushed batches (required). Typically a
	// *Journal.
	Writer Writer
	// Batch triggers a flush after this many buffered records
	// (default 128).
	Batch int
	// Interval triggers a background flush on this period (default 2s).
	// Negative disables interval flushing.
	Interval time.Duration
	// Sink receives flush diagnostics. Defaults to a nop sink.
	Sink log.Sink
}

// Tap batches state and event records and flushes them to the journal.
//
// Records accumulate in memory and flush when the batch threshold is
// reached, on the configured interval, and at Flush/Close. A failed
// flush restores the batch, so records are retried on the next trigger
// rather than lost.
//
// Thread safety: mu guards the buffers and stats; flushMu serializes
// flushes so the interval goroutine and count triggers never write
// concurrently. Buffers are swapped under mu and written outside it,
// so Add calls keep appending during a slow write.
type Tap struct {
	cfg TapConfig

	mu       sync.Mutex
	snapBuf  []wire.StateRecord
	eventBuf []wire.EventRecord
	stats    TapStats

	flushMu sync.Mutex

	stopCh  chan struct{}
	stopped bool
}

// NewTap validates cfg and returns a running Tap. The interval
// goroutine starts immediately when interval flushing is enabled.
func NewTap(cfg TapConfig) (*Tap, error) {
	if cfg.Writer == nil {
		return nil, ErrNoWriter
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Sink == nil {
		cfg.Sink = log.NopSink()
	}

	t := &Tap{
		cfg:      cfg,
		snapBuf:  make([]wire.StateRecord, 0, cfg.Batch),
		eventBuf: make([]wire.EventRecord, 0, 16),
		stopCh:   make(chan struct{}),
	}

	if cfg.Interval > 0 {
		go t.intervalLoop()
	}

	return t, nil
}

// AddSnapshot buffers one state record. When the batch threshold is
// reached the buffer is flushed; a flush failure is returned but the
// record stays buffered for retry.
func (t *Tap) AddSnapshot(ctx context.Context, rec wire.StateRecord) error {
	t.mu.Lock()
	t.snapBuf = append(t.snapBuf, rec)
	shouldFlush := t.buffered() >= t.cfg.Batch
	t.mu.Unlock()

	if shouldFlush {
		return t.triggerFlush(ctx, FlushTriggerCount)
	}
	return nil
}

// AddEvent buffers one event record, flushing like AddSnapshot.
func (t *Tap) AddEvent(ctx context.Context, rec wire.EventRecord) error {
	t.mu.Lock()
	t.eventBuf = append(t.eventBuf, rec)
	shouldFlush := t.buffered() >= t.cfg.Batch
	t.mu.Unlock()

	if shouldFlush {
		return t.triggerFlush(ctx, FlushTriggerCount)
	}
	return nil
}

// buffered reports the total buffered record count. Caller must hold mu.
func (t *Tap) buffered() int {
	return len(t.snapBuf) + len(t.eventBuf)
}

// Flush writes all buffered records (end-of-run trigger).
func (t *Tap) Flush(ctx context.Context) error {
	return t.triggerFlush(ctx, FlushTriggerTermination)
}

// triggerFlush performs one flush, serialized by flushMu.
//
// Strategy: swap buffers under mu, write outside mu, restore on
// failure. Restored records are prepended so order is preserved across
// a retry.
func (t *Tap) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	snaps := t.snapBuf
	events := t.eventBuf
	if len(snaps) == 0 && len(events) == 0 {
		t.mu.Unlock()
		return nil
	}
	t.snapBuf = make([]wire.StateRecord, 0, t.cfg.Batch)
	t.eventBuf = make([]wire.EventRecord, 0, 16)
	t.mu.Unlock()

	if len(snaps) > 0 {
		if err := t.cfg.Writer.WriteSnapshots(ctx, snaps); err != nil {
			t.restore(snaps, events)
			t.logFlushFailure("snapshots", trigger, err)
			return err
		}
	}
	if len(events) > 0 {
		if err := t.cfg.Writer.WriteEvents(ctx, events); err != nil {
			// Snapshots are already written; restore only events.
			t.restore(nil, events)
			t.logFlushFailure("events", trigger, err)
			return err
		}
	}

	written := int64(len(snaps) + len(events))
	t.mu.Lock()
	t.stats.Batches++
	t.stats.Records += written
	t.mu.Unlock()

	t.logFlush(trigger, len(snaps), len(events))
	return nil
}

// restore prepends unwritten records back onto the buffers after a
// failed write. Caller must not hold mu.
func (t *Tap) restore(snaps []wire.StateRecord, events []wire.EventRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Failures++
	if len(snaps) > 0 {
		t.snapBuf = append(snaps, t.snapBuf...)
	}
	if len(events) > 0 {
		t.eventBuf = append(events, t.eventBuf...)
	}
}

// Close stops the interval goroutine and flushes remaining records.
func (t *Tap) Close() error {
	t.mu.Lock()
	if !t.stopped {
		t.stopped = true
		close(t.stopCh)
	}
	t.mu.Unlock()

	return t.Flush(context.Background())
}

// Stats returns a consistent snapshot of tap activity.
func (t *Tap) Stats() TapStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Buffered = int64(t.buffered())
	return s
}

// intervalLoop flushes on the configured period until Close.
func (t *Tap) intervalLoop() {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			hasData := t.buffered() > 0
			t.mu.Unlock()

			if hasData {
				// Interval flush errors are logged, retried next trigger.
				_ = t.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-t.stopCh:
			return
		}
	}
}

func (t *Tap) logFlush(trigger FlushTrigger, snaps, events int) {
	t.cfg.Sink.Log(zapcore.DebugLevel, "journal", nil, func() string {
		return fmt.Sprintf("flushed %d snapshots and %d events (%s)", snaps, events, trigger)
	})
}

func (t *Tap) logFlushFailure(what string, trigger FlushTrigger, err error) {
	t.cfg.Sink.Log(zapcore.ErrorLevel, "journal", err, func() string {
		return fmt.Sprintf("%s flush failed (%s), batch retained", what, trigger)
	})
}
