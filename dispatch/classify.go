package dispatch

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/sluice/types"
)

// Strategy selects how intents are assigned to execution lanes.
type Strategy string

const (
	// StrategyHybrid routes by capability tag: concurrent-tagged intents to
	// the parallel lane, sequential-tagged intents to the global FIFO lane,
	// everything else to per-type grouped queues.
	StrategyHybrid Strategy = "hybrid"
	// StrategyAllParallel sends every intent to the parallel lane,
	// ignoring capability tags.
	StrategyAllParallel Strategy = "all-parallel"
	// StrategyAllSequential sends every intent to the global FIFO lane,
	// ignoring capability tags.
	StrategyAllSequential Strategy = "all-sequential"
)

// DefaultStrategy is used when no strategy is configured.
const DefaultStrategy = StrategyHybrid

// ErrUnknownStrategy reports an unrecognized strategy name.
var ErrUnknownStrategy = errors.New("dispatch: unknown strategy")

// ParseStrategy maps a configuration string to a Strategy. An empty string
// selects DefaultStrategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return DefaultStrategy, nil
	case StrategyHybrid, StrategyAllParallel, StrategyAllSequential:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Strategies returns all recognized strategies in stable order.
func Strategies() []Strategy {
	return []Strategy{StrategyHybrid, StrategyAllParallel, StrategyAllSequential}
}

// Classify assigns an intent to a lane under the given strategy.
//
// conflict reports an intent carrying both capability tags. The
// contradiction is a property of the intent, so it is reported under every
// strategy; under hybrid it additionally forces the grouped fallback lane.
func Classify(it types.Intent, strategy Strategy) (lane types.Lane, conflict bool) {
	_, concurrent := it.(types.ConcurrentCapable)
	_, sequential := it.(types.SequentialCapable)
	conflict = concurrent && sequential

	switch strategy {
	case StrategyAllParallel:
		return types.LaneParallel, conflict
	case StrategyAllSequential:
		return types.LaneSequential, conflict
	default:
	}

	switch {
	case conflict:
		return types.LaneGrouped, true
	case concurrent:
		return types.LaneParallel, false
	case sequential:
		return types.LaneSequential, false
	default:
		return types.LaneGrouped, false
	}
}
