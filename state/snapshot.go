// Package state defines the immutable snapshot model the store folds over.
//
// A Snapshot pairs accumulated state with an optional pending one-shot
// event. Handlers never touch snapshots directly; they produce Change
// values, and the store's fold is the only place changes are applied.
package state

// Snapshot is an immutable pair of accumulated state and an optional
// pending one-shot event. The zero value is usable but callers normally
// construct the seed via New.
//
// Events are one-shot: a pending event survives only until the next
// state-only change, and the store never replays a consumed event.
type Snapshot[S, E any] struct {
	state S
	event *E
}

// New returns the seed snapshot for an accumulator: the initial state with
// no pending event.
func New[S, E any](initial S) Snapshot[S, E] {
	return Snapshot[S, E]{state: initial}
}

// State returns the accumulated state.
func (s Snapshot[S, E]) State() S {
	return s.state
}

// Event returns the pending one-shot event and whether one is present.
func (s Snapshot[S, E]) Event() (E, bool) {
	if s.event == nil {
		var zero E
		return zero, false
	}
	return *s.event, true
}

// HasEvent reports whether a one-shot event is pending.
func (s Snapshot[S, E]) HasEvent() bool {
	return s.event != nil
}

// UpdateState returns a new snapshot with transform applied to the state
// and any pending event cleared.
func (s Snapshot[S, E]) UpdateState(transform func(S) S) Snapshot[S, E] {
	return Snapshot[S, E]{state: transform(s.state)}
}

// WithEvent returns a new snapshot with the same state and the given event
// pending.
func (s Snapshot[S, E]) WithEvent(event E) Snapshot[S, E] {
	return Snapshot[S, E]{state: s.state, event: &event}
}

// UpdateWith returns a new snapshot with transform applied to the state and
// the given event pending, in one step.
func (s Snapshot[S, E]) UpdateWith(event E, transform func(S) S) Snapshot[S, E] {
	return Snapshot[S, E]{state: transform(s.state), event: &event}
}
