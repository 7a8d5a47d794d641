package store

import "sync"

// ring is a bounded drop-oldest buffer between the fold and the delivery
// pump. Push never blocks: when full, the oldest entry is evicted to make
// room. Pop blocks until an entry arrives or the ring is closed.
//
// Push may be called from any goroutine; Pop is single-consumer.
type ring[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int
	n      int
	closed bool

	signal chan struct{}
	onDrop func()
}

func newRing[T any](capacity int, onDrop func()) *ring[T] {
	return &ring[T]{
		buf:    make([]T, capacity),
		signal: make(chan struct{}, 1),
		onDrop: onDrop,
	}
}

// Push appends v, evicting the oldest entry when full. Pushes after Close
// are discarded.
func (r *ring[T]) Push(v T) {
	dropped := false

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.n == len(r.buf) {
		var zero T
		r.buf[r.head] = zero
		r.head = (r.head + 1) % len(r.buf)
		r.n--
		dropped = true
	}
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
	r.mu.Unlock()

	if dropped && r.onDrop != nil {
		r.onDrop()
	}
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest entry, blocking while the ring is
// empty. It returns false once the ring is closed and fully drained.
func (r *ring[T]) Pop() (T, bool) {
	for {
		r.mu.Lock()
		if r.n > 0 {
			v := r.buf[r.head]
			var zero T
			r.buf[r.head] = zero
			r.head = (r.head + 1) % len(r.buf)
			r.n--
			r.mu.Unlock()
			return v, true
		}
		if r.closed {
			r.mu.Unlock()
			var zero T
			return zero, false
		}
		r.mu.Unlock()

		<-r.signal
	}
}

// Close marks the ring closed and wakes the consumer. Entries still
// buffered remain poppable.
func (r *ring[T]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of buffered entries.
func (r *ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
