package types

// Lane is the concurrency classification assigned to a dispatched intent.
// Classification is a pure function of the intent value and the engine
// configuration; the same intent always lands in the same lane.
type Lane string

const (
	// LaneParallel processes intents concurrently with no ordering guarantee
	// relative to other parallel intents.
	LaneParallel Lane = "parallel"
	// LaneSequential processes intents strictly one at a time in arrival
	// order, sharing a single queue across all sequential intents.
	LaneSequential Lane = "sequential"
	// LaneGrouped serializes intents that share a group key and processes
	// distinct groups concurrently.
	LaneGrouped Lane = "grouped"
)

// Lanes lists every lane in a stable order, for metrics and reports.
func Lanes() []Lane {
	return []Lane{LaneParallel, LaneSequential, LaneGrouped}
}
