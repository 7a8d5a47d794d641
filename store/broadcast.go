package store

import "sync"

// broadcast fans values out to dynamically attached subscribers. Each
// subscriber owns a bounded channel; a full channel sheds its oldest
// buffered value so a slow subscriber never stalls the pump or its peers.
//
// With replayLast set, the most recent published value is tracked even
// while no subscribers are attached, and each new subscriber receives it
// immediately on attach. A non-nil prepReplay rewrites the value a
// subscriber receives on attach; live deliveries are never rewritten.
type broadcast[T any] struct {
	mu         sync.Mutex
	subs       map[uint64]chan T
	nextID     uint64
	buf        int
	replayLast bool
	prepReplay func(T) T
	last       T
	hasLast    bool
	closed     bool
	onDrop     func()
}

func newBroadcast[T any](buf int, replayLast bool, onDrop func()) *broadcast[T] {
	if buf < 1 {
		buf = 1
	}
	return &broadcast[T]{
		subs:       make(map[uint64]chan T),
		nextID:     1,
		buf:        buf,
		replayLast: replayLast,
		onDrop:     onDrop,
	}
}

// Seed installs the initial replay value without publishing it.
func (b *broadcast[T]) Seed(v T) {
	b.mu.Lock()
	b.last = v
	b.hasLast = true
	b.mu.Unlock()
}

// Subscribe attaches a new subscriber. On a closed broadcast the returned
// channel is already closed and the id is zero.
func (b *broadcast[T]) Subscribe() (uint64, <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buf)
	if b.closed {
		close(ch)
		return 0, ch
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.replayLast && b.hasLast {
		v := b.last
		if b.prepReplay != nil {
			v = b.prepReplay(v)
		}
		ch <- v
	}
	return id, ch
}

// Unsubscribe detaches a subscriber and closes its channel. The zero id
// from a closed-broadcast Subscribe is ignored.
func (b *broadcast[T]) Unsubscribe(id uint64) {
	if id == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers v to every subscriber and returns the subscriber
// count. A subscriber whose channel is full loses its oldest buffered
// value to make room.
func (b *broadcast[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}
	if b.replayLast {
		b.last, b.hasLast = v, true
	}

	n := 0
	for _, ch := range b.subs {
		n++
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
			if b.onDrop != nil {
				b.onDrop()
			}
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
	return n
}

// Close detaches all subscribers, closing their channels. Further
// publishes are discarded and further subscribes see a closed channel.
func (b *broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of attached subscribers.
func (b *broadcast[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
