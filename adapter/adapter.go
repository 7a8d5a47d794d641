// Package adapter defines the downstream publisher boundary.
//
// Publishers forward pipeline event records to external systems as the
// pipeline emits them. The runtime owns publisher lifecycle; users
// provide configuration only.
package adapter

import (
	"context"
	"errors"

	"github.com/pithecene-io/sluice/wire"
)

// Publisher forwards event records to a downstream system.
// Implementations are called sequentially, one record at a time, for
// the duration of a run.
type Publisher interface {
	// Publish sends one event record to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, rec *wire.EventRecord) error

	// Close releases publisher resources.
	Close() error
}

// Fanout publishes every record to each wrapped publisher in order.
// A failing publisher does not stop delivery to the others; Publish
// returns the joined errors.
type Fanout struct {
	pubs []Publisher
}

// NewFanout wraps pubs in a Fanout.
func NewFanout(pubs ...Publisher) *Fanout {
	return &Fanout{pubs: pubs}
}

// Publish implements Publisher.
func (f *Fanout) Publish(ctx context.Context, rec *wire.EventRecord) error {
	var errs []error
	for _, p := range f.pubs {
		if err := p.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every wrapped publisher and returns the joined errors.
func (f *Fanout) Close() error {
	var errs []error
	for _, p := range f.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of wrapped publishers.
func (f *Fanout) Len() int { return len(f.pubs) }

// Verify Fanout implements the publisher interface.
var _ Publisher = (*Fanout)(nil)
