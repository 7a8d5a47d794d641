package runtime

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/dispatch"
	"github.com/pithecene-io/sluice/feed"
	"github.com/pithecene-io/sluice/journal"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/policy"
	"github.com/pithecene-io/sluice/state"
	"github.com/pithecene-io/sluice/store"
	"github.com/pithecene-io/sluice/types"
	"github.com/pithecene-io/sluice/wire"
)

// FlushTimeout bounds the final journal flush and run-metrics write after
// the run's own context has ended.
const FlushTimeout = 30 * time.Second

// Config configures a Daemon. Collaborators arrive constructed; the
// daemon orchestrates, it does not build transports or storage.
type Config struct {
	// RunID identifies the run in journal records and logs. Required.
	RunID string

	// Strategy selects lane assignment. Defaults to dispatch.DefaultStrategy.
	Strategy dispatch.Strategy
	// GroupKey computes the grouped lane's routing tag. Nil groups by
	// envelope type.
	GroupKey func(it types.Intent) string

	// IntakeCapacity, SnapshotCapacity, GroupCapacity, SequentialCapacity,
	// and MaxParallel tune the accumulator. Zero values use the store and
	// dispatch defaults.
	IntakeCapacity     int
	SnapshotCapacity   int
	GroupCapacity      int
	SequentialCapacity int
	MaxParallel        int

	// Retry approves engine attempt restarts. Nil uses policy.Default().
	Retry policy.Retry

	// Registry resolves intents to handlers. Nil uses NewServeRegistry.
	Registry *dispatch.Registry[State, Event]

	// Feeds produce the run's intents. At least one is required; the run
	// ends when every feed has drained.
	Feeds []feed.Source

	// Publisher receives each event record as it is emitted. May be nil.
	Publisher adapter.Publisher

	// Journal persists snapshots, events, and the run-metrics record.
	// Nil disables journaling.
	Journal *journal.Journal
	// TapBatch and TapInterval tune the journal tap. Zero values use the
	// tap defaults; a negative interval disables timed flushes.
	TapBatch    int
	TapInterval time.Duration

	// Logger receives run diagnostics. Nil uses a JSON logger bound to
	// the run id.
	Logger *log.Logger
}

// Daemon executes a single run: feeds dispatch intents into the
// accumulator, the observation pumps journal and publish what comes out,
// and the run ends when the feeds drain or the fold terminates.
type Daemon struct {
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID    string
	Outcome  *RunOutcome
	Duration time.Duration

	// Snapshots and Events count the records observed on the output
	// streams, including the seeded initial snapshot.
	Snapshots int64
	Events    int64

	Metrics metrics.Snapshot

	// Tap and JournalBackend are zero when journaling is disabled.
	Tap            journal.TapStats
	JournalBackend string

	// FinalState is the folded state at scope end.
	FinalState map[string]any

	// FeedErr is the first feed failure, if any. Feed failures do not
	// end the run; the remaining feeds keep dispatching.
	FeedErr error
}

// New validates cfg and returns a Daemon ready to Execute.
func New(cfg Config) (*Daemon, error) {
	if cfg.RunID == "" {
		return nil, errors.New("runtime: run id required")
	}
	if len(cfg.Feeds) == 0 {
		return nil, errors.New("runtime: at least one feed required")
	}
	if cfg.Registry == nil {
		cfg.Registry = NewServeRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger(cfg.RunID)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = dispatch.DefaultStrategy
	}
	if cfg.GroupKey == nil {
		cfg.GroupKey = wire.GroupKeyOf
	}

	backend := "none"
	if cfg.Journal != nil {
		backend = string(cfg.Journal.Backend())
	}

	return &Daemon{
		cfg:       cfg,
		logger:    cfg.Logger,
		collector: metrics.NewCollector(string(cfg.Strategy), backend, cfg.RunID),
	}, nil
}

// Execute runs the daemon until every feed drains or the fold terminates.
// The returned error covers assembly failures only; how the run itself
// ended is in RunResult.Outcome.
//
// Canceling ctx aborts the fold, but the final journal flush and the
// run-metrics write still run under their own timeout.
func (d *Daemon) Execute(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	d.logger.Info("run starting", map[string]any{
		"feeds":    len(d.cfg.Feeds),
		"strategy": string(d.cfg.Strategy),
		"journal":  d.cfg.Journal != nil,
	})

	st, err := store.New(store.Config[State, Event]{
		Initial:            State{},
		Registry:           d.cfg.Registry,
		Strategy:           d.cfg.Strategy,
		GroupKey:           d.cfg.GroupKey,
		IntakeCapacity:     d.cfg.IntakeCapacity,
		SnapshotCapacity:   d.cfg.SnapshotCapacity,
		GroupCapacity:      d.cfg.GroupCapacity,
		SequentialCapacity: d.cfg.SequentialCapacity,
		MaxParallel:        d.cfg.MaxParallel,
		Retry:              d.cfg.Retry,
		Sink:               log.NewZapSink(d.logger),
		Metrics:            d.collector,
	})
	if err != nil {
		return nil, err
	}

	var tap *journal.Tap
	if d.cfg.Journal != nil {
		tap, err = journal.NewTap(journal.TapConfig{
			Writer:   d.cfg.Journal,
			Batch:    d.cfg.TapBatch,
			Interval: d.cfg.TapInterval,
			Sink:     log.NewZapSink(d.logger),
		})
		if err != nil {
			return nil, err
		}
	}

	// Output subscriptions are bound to the scope, not the run context:
	// the streams complete when the store terminates, and the pumps must
	// drain them fully even when ctx is already canceled.
	states := st.States(context.Background())
	events := st.Events(context.Background())

	if err := st.Start(ctx); err != nil {
		return nil, err
	}

	var snapCount, eventCount int64
	var obsWG sync.WaitGroup
	obsWG.Add(2)
	go func() {
		defer obsWG.Done()
		d.pumpStates(states, tap, &snapCount)
	}()
	go func() {
		defer obsWG.Done()
		d.pumpEvents(events, tap, &eventCount)
	}()

	// Feeds run until drained, the run context ends, or the store dies.
	feedCtx, cancelFeeds := context.WithCancel(ctx)
	defer cancelFeeds()
	go func() {
		<-st.Done()
		cancelFeeds()
	}()

	var feedWG sync.WaitGroup
	var feedMu sync.Mutex
	var feedErr error
	for _, src := range d.cfg.Feeds {
		feedWG.Add(1)
		go func() {
			defer feedWG.Done()
			if err := src.Run(feedCtx, st.Dispatch); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("feed failed", map[string]any{"error": err.Error()})
				feedMu.Lock()
				if feedErr == nil {
					feedErr = err
				}
				feedMu.Unlock()
			}
		}()
	}

	feedWG.Wait()
	st.Close()
	<-st.Done()
	obsWG.Wait()

	// The run context may be long gone; the flush gets its own deadline.
	flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), FlushTimeout)
	defer cancelFlush()

	var tapStats journal.TapStats
	if tap != nil {
		if err := tap.Flush(flushCtx); err != nil {
			d.logger.Warn("final journal flush failed", map[string]any{"error": err.Error()})
		}
		_ = tap.Close()
		tapStats = tap.Stats()
		d.collector.AbsorbTapStats(tapStats.Batches, tapStats.Records, tapStats.Failures)
	}

	outcome := ClassifyOutcome(st.Err())
	duration := time.Since(start)
	snap := d.collector.Snapshot()

	if d.cfg.Journal != nil {
		rec := journal.NewRunMetricsRecord(snap, string(outcome.Status), wire.Timestamp(time.Now()), duration.Milliseconds())
		if err := d.cfg.Journal.WriteRunMetrics(flushCtx, rec); err != nil {
			d.logger.Warn("run metrics write failed", map[string]any{"error": err.Error()})
		}
	}

	d.logger.Info("run finished", map[string]any{
		"outcome":   string(outcome.Status),
		"snapshots": snapCount,
		"events":    eventCount,
		"duration":  duration.String(),
	})

	result := &RunResult{
		RunID:      d.cfg.RunID,
		Outcome:    outcome,
		Duration:   duration,
		Snapshots:  snapCount,
		Events:     eventCount,
		Metrics:    snap,
		Tap:        tapStats,
		FinalState: maps.Clone(st.Current().State()),
		FeedErr:    feedErr,
	}
	if d.cfg.Journal != nil {
		result.JournalBackend = string(d.cfg.Journal.Backend())
	}
	return result, nil
}

// pumpStates converts folded snapshots into journal state records. The
// sequence restarts at 1 each run and includes the seeded snapshot.
func (d *Daemon) pumpStates(states <-chan state.Snapshot[State, Event], tap *journal.Tap, count *int64) {
	var seq int64
	for snap := range states {
		seq++
		*count = seq
		if tap == nil {
			continue
		}
		rec := wire.StateRecord{
			ContractVersion: wire.ContractVersion,
			RunID:           d.cfg.RunID,
			Seq:             seq,
			Ts:              wire.Timestamp(time.Now()),
			State:           maps.Clone(snap.State()),
		}
		if ev, ok := snap.Event(); ok {
			rec.EventType = ev.Type
		}
		// Flush failures are logged by the tap and the records stay
		// buffered for the next trigger.
		_ = tap.AddSnapshot(context.Background(), rec)
	}
}

// pumpEvents journals and publishes one-shot events in emission order.
func (d *Daemon) pumpEvents(events <-chan Event, tap *journal.Tap, count *int64) {
	var seq int64
	for ev := range events {
		seq++
		*count = seq
		rec := wire.EventRecord{
			ContractVersion: wire.ContractVersion,
			RunID:           d.cfg.RunID,
			Seq:             seq,
			Ts:              wire.Timestamp(time.Now()),
			Type:            ev.Type,
			Payload:         ev.Payload,
		}
		if tap != nil {
			_ = tap.AddEvent(context.Background(), rec)
		}
		if d.cfg.Publisher != nil {
			if err := d.cfg.Publisher.Publish(context.Background(), &rec); err != nil {
				d.collector.IncPublishFailure()
				d.logger.Warn("event publish failed", map[string]any{
					"type":  ev.Type,
					"error": err.Error(),
				})
			} else {
				d.collector.IncPublishSuccess()
			}
		}
	}
}
