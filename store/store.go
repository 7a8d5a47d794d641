// Package store implements the state accumulator: the stateful scope that
// turns a dispatched intent stream into an observable snapshot stream.
//
// Intents enter through a bounded intake buffer, are executed by the
// dispatch engine, and the resulting changes are folded one at a time
// onto the current snapshot. Folded snapshots pass through a bounded
// drop-oldest buffer to two output streams: a state stream that replays
// the latest snapshot to each new subscriber, and a one-shot event stream
// that delivers only events fired after subscription.
//
// A failed transformation attempt consults the retry policy; an approved
// retry starts a fresh engine attempt over the same intake without
// resetting folded state. An exhausted policy terminates both streams
// with a TerminalError.
package store

import (
	"context"
	"sync"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/sluice/dispatch"
	"github.com/pithecene-io/sluice/group"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/policy"
	"github.com/pithecene-io/sluice/state"
	"github.com/pithecene-io/sluice/types"
)

const (
	// DefaultIntakeCapacity bounds the dispatch intake buffer. A full
	// intake suspends Dispatch callers until the engine catches up.
	DefaultIntakeCapacity = 64
	// DefaultSnapshotCapacity bounds the folded-snapshot buffer. A full
	// buffer sheds its oldest snapshot.
	DefaultSnapshotCapacity = 64
)

// Config configures a Store.
type Config[S, E any] struct {
	// Initial seeds the snapshot fold and the state stream's replay value.
	Initial S
	// Registry resolves intents to handlers. Required.
	Registry *dispatch.Registry[S, E]
	// Strategy selects lane assignment. Defaults to dispatch.DefaultStrategy.
	Strategy dispatch.Strategy
	// GroupKey computes the grouped lane's routing tag. Defaults to the
	// intent's runtime type name.
	GroupKey func(it types.Intent) string
	// IntakeCapacity bounds the intake buffer. Defaults to
	// DefaultIntakeCapacity.
	IntakeCapacity int
	// SnapshotCapacity bounds the folded-snapshot buffer and each state
	// subscriber's channel. Defaults to DefaultSnapshotCapacity.
	SnapshotCapacity int
	// GroupCapacity bounds each grouped-lane queue. Defaults to
	// group.DefaultCapacity.
	GroupCapacity int
	// SequentialCapacity bounds the global FIFO lane. Defaults to
	// dispatch.DefaultSequentialCapacity.
	SequentialCapacity int
	// MaxParallel caps concurrent parallel-lane handlers. Zero means no cap.
	MaxParallel int
	// OnClosedSend is the grouped lane's detached-queue policy.
	OnClosedSend group.ClosedSendPolicy
	// Retry approves or rejects engine attempt restarts. Defaults to
	// policy.Default().
	Retry policy.Retry
	// Sink receives accumulator diagnostics. Defaults to a nop sink.
	Sink log.Sink
	// Metrics receives accumulator counters. May be nil.
	Metrics *metrics.Collector
}

// Store is the stateful intent-processing scope. Create with New, begin
// processing with Start, feed with Dispatch, observe with States and
// Events, end the scope with Close.
type Store[S, E any] struct {
	cfg    Config[S, E]
	engine *dispatch.Engine[S, E]

	intake chan types.Intent

	mu      sync.Mutex
	started bool
	closed  bool
	sending sync.WaitGroup

	smu sync.Mutex
	cur state.Snapshot[S, E]

	ring   *ring[state.Snapshot[S, E]]
	states *broadcast[state.Snapshot[S, E]]
	events *broadcast[E]

	pumpDone chan struct{}
	done     chan struct{}

	errMu  sync.Mutex
	runErr error
}

// New validates cfg, applies defaults, and returns an unstarted Store.
func New[S, E any](cfg Config[S, E]) (*Store[S, E], error) {
	if cfg.IntakeCapacity <= 0 {
		cfg.IntakeCapacity = DefaultIntakeCapacity
	}
	if cfg.SnapshotCapacity <= 0 {
		cfg.SnapshotCapacity = DefaultSnapshotCapacity
	}
	if cfg.Retry == nil {
		cfg.Retry = policy.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = log.NopSink()
	}

	eng, err := dispatch.New(dispatch.Config[S, E]{
		Registry:           cfg.Registry,
		Strategy:           cfg.Strategy,
		GroupKey:           cfg.GroupKey,
		GroupCapacity:      cfg.GroupCapacity,
		SequentialCapacity: cfg.SequentialCapacity,
		MaxParallel:        cfg.MaxParallel,
		OnClosedSend:       cfg.OnClosedSend,
		Sink:               cfg.Sink,
		Metrics:            cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	s := &Store[S, E]{
		cfg:      cfg,
		engine:   eng,
		intake:   make(chan types.Intent, cfg.IntakeCapacity),
		cur:      state.New[S, E](cfg.Initial),
		pumpDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.ring = newRing[state.Snapshot[S, E]](cfg.SnapshotCapacity, cfg.Metrics.IncSnapshotDropped)
	s.states = newBroadcast[state.Snapshot[S, E]](cfg.SnapshotCapacity, true, cfg.Metrics.IncSubscriberDrop)
	s.events = newBroadcast[E](cfg.SnapshotCapacity, false, cfg.Metrics.IncSubscriberDrop)
	// A replayed snapshot must not re-deliver its one-shot event; late
	// subscribers get the state with an absent event slot.
	s.states.prepReplay = func(snap state.Snapshot[S, E]) state.Snapshot[S, E] {
		return state.New[S, E](snap.State())
	}
	s.states.Seed(s.cur)
	return s, nil
}

// Start begins processing dispatched intents. Canceling ctx terminates
// the scope without consulting the retry policy.
func (s *Store[S, E]) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	go s.pump()
	go s.run(ctx)
	return nil
}

// Dispatch submits an intent for processing. A full intake suspends the
// caller until space frees or ctx is canceled; ctx cancellation is the
// only error path. An intent dispatched after the scope ended is logged
// and discarded with a nil return.
func (s *Store[S, E]) Dispatch(ctx context.Context, it types.Intent) error {
	if s.isClosed() {
		s.dropDead(it)
		return nil
	}

	s.sending.Add(1)
	defer s.sending.Done()

	// Re-check after joining the send group: Close waits for in-flight
	// senders before closing the intake channel.
	if s.isClosed() {
		s.dropDead(it)
		return nil
	}

	select {
	case s.intake <- it:
		return nil
	case <-s.done:
		s.dropDead(it)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store[S, E]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store[S, E]) dropDead(it types.Intent) {
	s.cfg.Metrics.IncDispatchDroppedDead()
	s.cfg.Sink.Log(zapcore.WarnLevel, "store", nil, func() string {
		return "intent " + intentName(it) + " dispatched after scope end, discarding"
	})
}

// Close ends the intent intake. Intents already dispatched are still
// processed; once they drain, both output streams complete. Close does
// not wait for that drain and is safe to call more than once.
func (s *Store[S, E]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.sending.Wait()
	close(s.intake)
}

// Done is closed once the scope has ended and both output streams have
// completed.
func (s *Store[S, E]) Done() <-chan struct{} {
	return s.done
}

// Err reports how the scope ended: nil after a clean drain, the context's
// error after cancellation, or a TerminalError after retry exhaustion.
// Valid once Done is closed.
func (s *Store[S, E]) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.runErr
}

// Current returns the latest folded snapshot.
func (s *Store[S, E]) Current() state.Snapshot[S, E] {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.cur
}

// States subscribes to the snapshot stream. The latest snapshot is
// delivered immediately with its event slot cleared (one-shot events are
// never replayed), then every subsequent fold result as folded; a slow
// subscriber loses oldest-first. The channel closes when ctx is canceled
// or the scope ends.
func (s *Store[S, E]) States(ctx context.Context) <-chan state.Snapshot[S, E] {
	id, ch := s.states.Subscribe()
	if id != 0 {
		go func() {
			select {
			case <-ctx.Done():
				s.states.Unsubscribe(id)
			case <-s.done:
			}
		}()
	}
	return ch
}

// Events subscribes to the one-shot event stream. Only events fired after
// subscription are delivered; nothing is replayed. The channel closes
// when ctx is canceled or the scope ends.
func (s *Store[S, E]) Events(ctx context.Context) <-chan E {
	id, ch := s.events.Subscribe()
	if id != 0 {
		go func() {
			select {
			case <-ctx.Done():
				s.events.Unsubscribe(id)
			case <-s.done:
			}
		}()
	}
	return ch
}
