package reader

import (
	"context"

	"github.com/pithecene-io/sluice/journal"
)

// Reader answers read-only CLI queries over a journal.
type Reader struct {
	j *journal.Journal
}

// New wraps a reader-mode journal.
func New(j *journal.Journal) *Reader {
	return &Reader{j: j}
}

// Stats returns the latest run-metrics record for runID, or for the most
// recent run when runID is empty.
func (r *Reader) Stats(ctx context.Context, runID string) (*journal.RunMetricsRecord, error) {
	return r.j.LatestRunMetrics(ctx, runID)
}

// ListRuns returns one summary per journaled run, newest first.
func (r *Reader) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	recs, err := r.j.AllRunMetrics(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]RunSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, runSummary(rec))
	}
	return out, nil
}

// InspectRun returns the run's latest folded state with up to eventLimit
// most recent events, optionally filtered by event type. eventLimit <= 0
// returns every journaled event.
func (r *Reader) InspectRun(ctx context.Context, runID, eventType string, eventLimit int) (*StateView, error) {
	latest, err := r.j.LatestState(ctx, runID)
	if err != nil {
		return nil, err
	}
	view := stateView(latest)

	events, err := r.j.Events(ctx, runID, eventType, eventLimit)
	if err != nil {
		return nil, err
	}
	for i := range events {
		view.Events = append(view.Events, eventView(&events[i]))
	}
	return view, nil
}
