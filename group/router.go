// Package group implements the group-and-route primitive: a flat stream of
// tagged items fanned out into one FIFO sub-stream per distinct tag.
//
// Items sharing a tag are delivered to the same sub-stream in arrival
// order; distinct tags process independently. A sub-stream's consumer may
// detach at any time; the router detects the detached queue on the next
// send and either drops the item or recreates the queue, per configuration.
// A send never panics and never surfaces an error to the routing caller.
package group

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
)

// DefaultCapacity is the per-tag queue capacity when none is configured.
const DefaultCapacity = 64

// ClosedSendPolicy selects what a send to a detached queue does with the
// item after the stale entry is evicted.
type ClosedSendPolicy string

const (
	// RecreateOnClosedSend creates a fresh queue (and consumer) for the tag
	// and re-routes the item to it.
	RecreateOnClosedSend ClosedSendPolicy = "recreate"
	// DropOnClosedSend discards the item.
	DropOnClosedSend ClosedSendPolicy = "drop"
)

// Consumer processes one tag's sub-stream. items yields the tag's items in
// arrival order and is closed when the upstream completes, the router's
// context is canceled, or the entry is evicted.
type Consumer[T any] func(ctx context.Context, tag string, items <-chan T)

// Config configures a Router.
type Config[T any] struct {
	// Capacity bounds each per-tag queue. A full queue backpressures the
	// routing loop until the tag's consumer catches up. Zero or negative
	// values fall back to DefaultCapacity.
	Capacity int
	// Tag computes an item's routing tag. Defaults to the item's runtime
	// type name.
	Tag func(item T) string
	// Consume is started once per tag lifetime, on the tag's first item.
	// Required.
	Consume Consumer[T]
	// OnClosedSend selects drop-vs-recreate for sends to detached queues.
	// Defaults to RecreateOnClosedSend.
	OnClosedSend ClosedSendPolicy
	// Sink receives routing diagnostics. Defaults to a nop sink.
	Sink log.Sink
	// Metrics receives routing counters. May be nil.
	Metrics *metrics.Collector
}

// ErrNoConsumer reports a Config without a Consume function.
var ErrNoConsumer = errors.New("group: consume function required")

// entryState tracks the lifecycle of one per-tag queue.
type entryState int

const (
	entryLive entryState = iota
	entryClosed
)

// entry is one per-tag queue. The routing loop is the only writer of ch;
// the entry's consumer goroutine is the only reader. done is closed when
// the consumer returns, marking the entry detached.
type entry[T any] struct {
	tag  string
	ch   chan T
	done chan struct{}

	mu    sync.Mutex
	state entryState
}

// markClosed transitions the entry to closed. Returns false if it already
// was, so close happens exactly once.
func (e *entry[T]) markClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == entryClosed {
		return false
	}
	e.state = entryClosed
	return true
}

// sendStatus is the result of one enqueue attempt.
type sendStatus int

const (
	sendOK sendStatus = iota
	sendClosed
	sendCanceled
)

// Router fans a flat item stream out into per-tag FIFO queues, each drained
// by its own consumer goroutine.
type Router[T any] struct {
	cfg Config[T]

	mu      sync.Mutex
	entries map[string]*entry[T]

	wg sync.WaitGroup
}

// NewRouter validates cfg, applies defaults, and returns a Router.
func NewRouter[T any](cfg Config[T]) (*Router[T], error) {
	if cfg.Consume == nil {
		return nil, ErrNoConsumer
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Tag == nil {
		cfg.Tag = func(item T) string { return fmt.Sprintf("%T", item) }
	}
	if cfg.OnClosedSend == "" {
		cfg.OnClosedSend = RecreateOnClosedSend
	}
	if cfg.Sink == nil {
		cfg.Sink = log.NopSink()
	}
	return &Router[T]{
		cfg:     cfg,
		entries: make(map[string]*entry[T]),
	}, nil
}

// Run consumes items from in until it closes or ctx is canceled, routing
// each to its tag's queue. On return, every still-live queue has been
// closed exactly once and every consumer has finished.
//
// Run may be called once per Router.
func (r *Router[T]) Run(ctx context.Context, in <-chan T) error {
	defer r.terminate()

	for {
		select {
		case item, ok := <-in:
			if !ok {
				return nil
			}
			if err := r.route(ctx, item); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// route delivers one item, evicting detached entries and applying the
// closed-send policy. It returns an error only on context cancellation.
func (r *Router[T]) route(ctx context.Context, item T) error {
	tag := r.cfg.Tag(item)

	for {
		e := r.liveEntry(ctx, tag)

		switch r.send(ctx, e, item) {
		case sendOK:
			return nil
		case sendCanceled:
			return ctx.Err()
		case sendClosed:
			r.evict(e)
			if r.cfg.OnClosedSend == DropOnClosedSend {
				r.cfg.Metrics.IncClosedSendDrop()
				r.cfg.Sink.Log(zapcore.DebugLevel, "group", nil, func() string {
					return fmt.Sprintf("dropping item for detached group %q", tag)
				})
				return nil
			}
			r.cfg.Metrics.IncClosedSendRecreate()
			r.cfg.Sink.Log(zapcore.DebugLevel, "group", nil, func() string {
				return fmt.Sprintf("recreating detached group %q", tag)
			})
		}
	}
}

// liveEntry returns the tag's live entry, creating the queue and starting
// its consumer on first sight of the tag. Creation is guarded so two
// near-simultaneous items with a fresh tag share one queue.
func (r *Router[T]) liveEntry(ctx context.Context, tag string) *entry[T] {
	r.mu.Lock()
	if e, ok := r.entries[tag]; ok {
		r.mu.Unlock()
		return e
	}
	e := &entry[T]{
		tag:  tag,
		ch:   make(chan T, r.cfg.Capacity),
		done: make(chan struct{}),
	}
	r.entries[tag] = e
	r.mu.Unlock()

	r.cfg.Metrics.IncGroupCreated()
	r.cfg.Sink.Log(zapcore.DebugLevel, "group", nil, func() string {
		return fmt.Sprintf("created group %q", tag)
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(e.done)
		r.cfg.Consume(ctx, e.tag, e.ch)
	}()

	return e
}

// send enqueues item onto e's queue. A full queue backpressures this tag's
// producer side until the consumer drains, the consumer detaches, or ctx
// is canceled.
func (r *Router[T]) send(ctx context.Context, e *entry[T], item T) sendStatus {
	// A consumer that already returned makes the entry unsendable even if
	// buffer space remains: buffered items would never be read.
	select {
	case <-e.done:
		return sendClosed
	default:
	}

	select {
	case e.ch <- item:
		return sendOK
	case <-e.done:
		return sendClosed
	case <-ctx.Done():
		return sendCanceled
	}
}

// evict removes a detached entry from the routing table and closes its
// queue. The consumer has already returned, so nothing reads the queue
// again; the routing loop is the only sender and knows it is not sending.
func (r *Router[T]) evict(e *entry[T]) {
	if !e.markClosed() {
		return
	}
	r.mu.Lock()
	if cur, ok := r.entries[e.tag]; ok && cur == e {
		delete(r.entries, e.tag)
	}
	r.mu.Unlock()
	close(e.ch)
	r.cfg.Metrics.IncGroupEvicted()
}

// terminate closes every still-live queue exactly once and waits for all
// consumers to finish.
func (r *Router[T]) terminate() {
	r.mu.Lock()
	live := make([]*entry[T], 0, len(r.entries))
	for tag, e := range r.entries {
		delete(r.entries, tag)
		live = append(live, e)
	}
	r.mu.Unlock()

	for _, e := range live {
		if e.markClosed() {
			close(e.ch)
		}
	}
	r.wg.Wait()
}

// Live returns the number of live per-tag queues.
func (r *Router[T]) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
