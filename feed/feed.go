// Package feed provides intent sources: bridges that decode external
// transports into a store's dispatch intake.
//
// A Source validates each incoming envelope before materializing it.
// Malformed envelopes are logged and skipped; a desynchronized transport
// (truncated or oversized frame) terminates the source with an error.
package feed

import (
	"context"

	"github.com/pithecene-io/sluice/types"
)

// Dispatcher accepts one materialized intent, typically a Store's
// Dispatch method. It blocks while the intake applies backpressure.
type Dispatcher func(ctx context.Context, it types.Intent) error

// Source decodes intents from a transport and forwards them to a
// dispatcher.
type Source interface {
	// Run forwards intents until the transport is exhausted or ctx is
	// canceled. A nil return means the transport ended cleanly.
	Run(ctx context.Context, dispatch Dispatcher) error
	// Name identifies the source in diagnostics.
	Name() string
	// Close releases transport resources.
	Close() error
}
