package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/sluice/wire"
)

// GeneratorConfig configures a GeneratorSource.
type GeneratorConfig struct {
	// Count is the number of envelopes to emit (required, > 0).
	Count int
	// Interval is the pause between envelopes. Zero emits as fast as
	// the pipeline accepts.
	Interval time.Duration
	// Types are the intent type names to cycle through
	// (default: ["generated.tick"]).
	Types []string
	// Concurrency is the capability hint stamped on every envelope
	// (default: none).
	Concurrency string
}

// GeneratorSource emits synthetic intent envelopes. It exists for load
// exercises and smoke runs where no external producer is wired up.
type GeneratorSource struct {
	cfg GeneratorConfig
}

// NewGeneratorSource validates cfg and returns a GeneratorSource.
func NewGeneratorSource(cfg GeneratorConfig) (*GeneratorSource, error) {
	if cfg.Count <= 0 {
		return nil, fmt.Errorf("feed: generator count must be > 0, got %d", cfg.Count)
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("feed: generator interval must be >= 0, got %s", cfg.Interval)
	}
	if len(cfg.Types) == 0 {
		cfg.Types = []string{"generated.tick"}
	}
	for _, typ := range cfg.Types {
		if typ == "" {
			return nil, errors.New("feed: generator type names must be non-empty")
		}
	}
	switch cfg.Concurrency {
	case wire.ConcurrencyNone, wire.ConcurrencyConcurrent, wire.ConcurrencySequential, wire.ConcurrencyBoth:
	default:
		return nil, fmt.Errorf("feed: unknown concurrency hint %q", cfg.Concurrency)
	}
	return &GeneratorSource{cfg: cfg}, nil
}

// Name implements Source.
func (g *GeneratorSource) Name() string { return "generator" }

// Run emits Count envelopes, cycling through the configured types, and
// returns once all are dispatched.
func (g *GeneratorSource) Run(ctx context.Context, dispatch Dispatcher) error {
	for i := 0; i < g.cfg.Count; i++ {
		if g.cfg.Interval > 0 && i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.cfg.Interval):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		env := wire.IntentEnvelope{
			ContractVersion: wire.ContractVersion,
			IntentID:        fmt.Sprintf("gen-%06d", i+1),
			Seq:             int64(i + 1),
			Type:            g.cfg.Types[i%len(g.cfg.Types)],
			Ts:              wire.Timestamp(time.Now()),
			Concurrency:     g.cfg.Concurrency,
			Payload:         map[string]any{"n": i + 1},
		}
		if err := dispatch(ctx, env.Materialize()); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Source. The generator holds no resources.
func (g *GeneratorSource) Close() error { return nil }

// Verify GeneratorSource implements the source interface.
var _ Source = (*GeneratorSource)(nil)
