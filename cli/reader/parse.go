package reader

import (
	"github.com/pithecene-io/sluice/journal"
	"github.com/pithecene-io/sluice/wire"
)

func runSummary(rec *journal.RunMetricsRecord) RunSummary {
	return RunSummary{
		RunID:      rec.RunID,
		Outcome:    rec.Outcome,
		Strategy:   rec.Strategy,
		Intents:    rec.IntentsDispatched,
		Events:     rec.EventsEmitted,
		DurationMs: rec.DurationMs,
		Ts:         rec.Ts,
	}
}

func stateView(rec *wire.StateRecord) *StateView {
	return &StateView{
		RunID: rec.RunID,
		Seq:   rec.Seq,
		Ts:    rec.Ts,
		State: rec.State,
	}
}

func eventView(rec *wire.EventRecord) EventView {
	return EventView{
		Seq:     rec.Seq,
		Ts:      rec.Ts,
		Type:    rec.Type,
		Payload: rec.Payload,
	}
}
