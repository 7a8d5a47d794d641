// Package dispatch implements intent classification and handler execution.
//
// The Engine consumes a flat intent stream and executes each intent's
// handler on one of three lanes:
//
//   - parallel: handlers launch concurrently, no ordering guarantees
//   - sequential: one global FIFO, handlers run one at a time
//   - grouped: per-tag FIFO queues, ordered within a tag, concurrent
//     across tags
//
// Lane assignment follows the configured Strategy. Handler results feed a
// single outgoing change stream; the engine never reorders changes within
// a lane or group, while cross-lane interleaving is unspecified.
//
// The first handler failure or panic cancels the run, drains in-flight
// work, and surfaces as a typed error from Run.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/sluice/group"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/state"
	"github.com/pithecene-io/sluice/types"
)

// DefaultSequentialCapacity bounds the global FIFO lane's queue when no
// capacity is configured.
const DefaultSequentialCapacity = 64

// ErrNoRegistry reports an engine Config without a handler registry.
var ErrNoRegistry = errors.New("dispatch: registry required")

// Config configures an Engine.
type Config[S, E any] struct {
	// Registry resolves intents to handlers. Required.
	Registry *Registry[S, E]
	// Strategy selects lane assignment. Defaults to DefaultStrategy.
	Strategy Strategy
	// GroupKey computes the grouped lane's routing tag. Defaults to the
	// intent's runtime type name.
	GroupKey func(it types.Intent) string
	// GroupCapacity bounds each grouped queue. Defaults to
	// group.DefaultCapacity.
	GroupCapacity int
	// SequentialCapacity bounds the global FIFO queue. Defaults to
	// DefaultSequentialCapacity.
	SequentialCapacity int
	// MaxParallel caps concurrently running parallel-lane handlers.
	// Zero means no cap.
	MaxParallel int
	// OnClosedSend is the grouped lane's policy for sends to queues whose
	// consumer detached. Defaults to group.RecreateOnClosedSend.
	OnClosedSend group.ClosedSendPolicy
	// Sink receives dispatch diagnostics. Defaults to a nop sink.
	Sink log.Sink
	// Metrics receives dispatch counters. May be nil.
	Metrics *metrics.Collector
}

// Engine classifies intents into lanes and runs their handlers. An Engine
// holds no per-run state; Run may be called repeatedly, once per
// transformation attempt.
type Engine[S, E any] struct {
	cfg Config[S, E]
}

// New validates cfg, applies defaults, and returns an Engine.
func New[S, E any](cfg Config[S, E]) (*Engine[S, E], error) {
	if cfg.Registry == nil {
		return nil, ErrNoRegistry
	}
	if cfg.Strategy == "" {
		cfg.Strategy = DefaultStrategy
	}
	if cfg.GroupCapacity <= 0 {
		cfg.GroupCapacity = group.DefaultCapacity
	}
	if cfg.SequentialCapacity <= 0 {
		cfg.SequentialCapacity = DefaultSequentialCapacity
	}
	if cfg.OnClosedSend == "" {
		cfg.OnClosedSend = group.RecreateOnClosedSend
	}
	if cfg.Sink == nil {
		cfg.Sink = log.NopSink()
	}
	return &Engine[S, E]{cfg: cfg}, nil
}

// Strategy returns the engine's effective strategy.
func (e *Engine[S, E]) Strategy() Strategy {
	return e.cfg.Strategy
}

// run carries the state of one Run invocation.
type run[S, E any] struct {
	eng    *Engine[S, E]
	ctx    context.Context
	cancel context.CancelFunc
	out    chan<- state.Change[S, E]
	sem    chan struct{}

	handlers sync.WaitGroup
	lanes    sync.WaitGroup

	mu  sync.Mutex
	err error
}

// Run consumes intents from in until it closes or ctx is canceled,
// classifying each and executing its handler on the assigned lane.
// Handler-emitted changes are written to out in lane order; Run does not
// close out.
//
// Run returns nil on clean completion, the first handler failure or panic
// as a typed error, or ctx's error on cancellation. It does not return
// until every lane has drained and every handler goroutine has finished.
func (e *Engine[S, E]) Run(ctx context.Context, in <-chan types.Intent, out chan<- state.Change[S, E]) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run[S, E]{eng: e, ctx: runCtx, cancel: cancel, out: out}
	if e.cfg.MaxParallel > 0 {
		r.sem = make(chan struct{}, e.cfg.MaxParallel)
	}

	seqCh := make(chan types.Intent, e.cfg.SequentialCapacity)
	r.lanes.Add(1)
	go func() {
		defer r.lanes.Done()
		for it := range seqCh {
			r.invoke(it)
		}
	}()

	groupCh := make(chan types.Intent, e.cfg.GroupCapacity)
	router, err := group.NewRouter(group.Config[types.Intent]{
		Capacity:     e.cfg.GroupCapacity,
		Tag:          e.cfg.GroupKey,
		OnClosedSend: e.cfg.OnClosedSend,
		Sink:         e.cfg.Sink,
		Metrics:      e.cfg.Metrics,
		Consume: func(_ context.Context, _ string, items <-chan types.Intent) {
			for it := range items {
				r.invoke(it)
			}
		},
	})
	if err != nil {
		return err
	}
	r.lanes.Add(1)
	go func() {
		defer r.lanes.Done()
		// The router returns an error only on context cancellation, which
		// Run already observes through runCtx.
		_ = router.Run(runCtx, groupCh)
	}()

intake:
	for {
		select {
		case it, ok := <-in:
			if !ok {
				break intake
			}
			lane, conflict := Classify(it, e.cfg.Strategy)
			if conflict {
				e.cfg.Metrics.IncConflict()
				e.cfg.Sink.Log(zapcore.WarnLevel, "conflict", nil, func() string {
					return fmt.Sprintf("intent type %s declares both concurrency capabilities, routed to %s lane", typeName(it), lane)
				})
			}
			e.cfg.Metrics.IncIntent(string(lane))

			switch lane {
			case types.LaneParallel:
				r.spawn(it)
			case types.LaneSequential:
				select {
				case seqCh <- it:
				case <-runCtx.Done():
					break intake
				}
			default:
				select {
				case groupCh <- it:
				case <-runCtx.Done():
					break intake
				}
			}
		case <-runCtx.Done():
			break intake
		}
	}

	close(seqCh)
	close(groupCh)
	r.handlers.Wait()
	r.lanes.Wait()

	if err := r.firstErr(); err != nil {
		return err
	}
	return ctx.Err()
}

// spawn launches a parallel-lane handler, honoring the concurrency cap.
func (r *run[S, E]) spawn(it types.Intent) {
	if r.sem != nil {
		select {
		case r.sem <- struct{}{}:
		case <-r.ctx.Done():
			return
		}
	}
	r.handlers.Add(1)
	go func() {
		defer r.handlers.Done()
		if r.sem != nil {
			defer func() { <-r.sem }()
		}
		r.invoke(it)
	}()
}

// invoke resolves and executes one intent's handler, recording the first
// failure and canceling the run on error or panic. Once the run is
// canceled, queued intents are discarded instead of executed.
func (r *run[S, E]) invoke(it types.Intent) {
	if r.ctx.Err() != nil {
		return
	}

	cfg := &r.eng.cfg
	h, res := cfg.Registry.Resolve(it)
	switch res {
	case ResolvedNone:
		cfg.Sink.Log(zapcore.WarnLevel, "dispatch", nil, func() string {
			return fmt.Sprintf("no handler for intent type %s, skipping", typeName(it))
		})
		return
	case ResolvedDefault:
		cfg.Metrics.IncDefaultHandled()
		cfg.Sink.Log(zapcore.InfoLevel, "dispatch", nil, func() string {
			return fmt.Sprintf("intent type %s falling back to default handler", typeName(it))
		})
	}

	if err := r.execute(h, it); err != nil {
		if IsPanicError(err) {
			cfg.Metrics.IncHandlerPanic()
		} else {
			cfg.Metrics.IncHandlerError()
		}
		cfg.Sink.Log(zapcore.ErrorLevel, "dispatch", err, func() string {
			return fmt.Sprintf("handler for intent type %s failed", typeName(it))
		})
		r.fail(err)
	}
}

// execute runs a handler with panic containment. Emitted changes are
// forwarded to the run's change stream; emits after cancellation are
// dropped.
func (r *run[S, E]) execute(h Handler[S, E], it types.Intent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(typeName(it), rec)
		}
	}()

	emit := func(ch state.Change[S, E]) {
		select {
		case r.out <- ch:
		case <-r.ctx.Done():
		}
	}
	if herr := h(r.ctx, it, emit); herr != nil {
		return handlerError(typeName(it), herr)
	}
	return nil
}

// fail records the run's first error and cancels in-flight work.
func (r *run[S, E]) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *run[S, E]) firstErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// typeName names an intent's runtime type for diagnostics.
func typeName(it types.Intent) string {
	if it == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", it)
}
