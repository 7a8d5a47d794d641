package state

// Change is one incremental state-change operation: a pure transformation
// from one snapshot to the next. Handlers produce changes; only the store's
// fold applies them, strictly one at a time.
type Change[S, E any] func(Snapshot[S, E]) Snapshot[S, E]

// Update returns a change that transforms the state and clears any pending
// event.
func Update[S, E any](transform func(S) S) Change[S, E] {
	return func(s Snapshot[S, E]) Snapshot[S, E] {
		return s.UpdateState(transform)
	}
}

// Event returns a change that attaches a one-shot event, leaving the state
// untouched.
func Event[S, E any](event E) Change[S, E] {
	return func(s Snapshot[S, E]) Snapshot[S, E] {
		return s.WithEvent(event)
	}
}

// UpdateWith returns a change that transforms the state and attaches a
// one-shot event in one step.
func UpdateWith[S, E any](event E, transform func(S) S) Change[S, E] {
	return func(s Snapshot[S, E]) Snapshot[S, E] {
		return s.UpdateWith(event, transform)
	}
}
