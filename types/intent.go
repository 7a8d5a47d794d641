// Package types defines core domain types for the sluice pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

// Intent is one unit of input requesting a state change.
//
// Intents are opaque to the pipeline: any value works. The dispatch engine
// inspects only two optional capabilities, declared by implementing
// ConcurrentCapable or SequentialCapable, and treats intent values as
// immutable from dispatch onward.
type Intent = any

// ConcurrentCapable marks an intent as safe to process in parallel with any
// other concurrent-capable intent. Declare it with an empty method body on
// the intent type.
type ConcurrentCapable interface {
	ConcurrentIntent()
}

// SequentialCapable marks an intent as requiring strict arrival-order
// processing behind all previously dispatched sequential-capable intents,
// sharing one global queue.
type SequentialCapable interface {
	SequentialIntent()
}
