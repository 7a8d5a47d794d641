package store

import (
	"context"
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/sluice/state"
)

// run drives transformation attempts until the intake drains, ctx is
// canceled, or the retry policy is exhausted. Each attempt is a fresh
// engine run over the shared intake; intents consumed by a failed attempt
// are not replayed, and folded state carries across attempts.
func (s *Store[S, E]) run(ctx context.Context) {
	var attempt int64

	for {
		attempt++
		s.cfg.Metrics.IncAttempt()

		changes := make(chan state.Change[S, E])
		folded := make(chan struct{})
		go func() {
			defer close(folded)
			for ch := range changes {
				s.apply(ch)
			}
		}()

		err := s.engine.Run(ctx, s.intake, changes)
		close(changes)
		<-folded

		if err == nil {
			s.finish(nil)
			return
		}
		if ctx.Err() != nil {
			s.finish(ctx.Err())
			return
		}

		if !s.cfg.Retry.Allow(attempt, err) {
			s.cfg.Sink.Log(zapcore.ErrorLevel, "store", err, func() string {
				return fmt.Sprintf("attempt %d failed, retry policy exhausted", attempt)
			})
			s.finish(&TerminalError{Attempts: attempt, Err: err})
			return
		}

		s.cfg.Metrics.IncRetry()
		s.cfg.Sink.Log(zapcore.WarnLevel, "store", err, func() string {
			return fmt.Sprintf("attempt %d failed, retrying", attempt)
		})
	}
}

// apply folds one change onto the current snapshot and hands the result
// to the delivery pump. Folds are strictly serial; the fold goroutine is
// the only writer of cur.
func (s *Store[S, E]) apply(ch state.Change[S, E]) {
	s.smu.Lock()
	s.cur = ch(s.cur)
	cur := s.cur
	s.smu.Unlock()

	s.cfg.Metrics.IncChangeFolded()
	s.ring.Push(cur)
}

// pump moves folded snapshots from the ring to the output streams. One
// pump per Store; it exits when the ring closes and is fully drained.
func (s *Store[S, E]) pump() {
	defer close(s.pumpDone)

	for {
		snap, ok := s.ring.Pop()
		if !ok {
			return
		}
		s.states.Publish(snap)
		if ev, has := snap.Event(); has {
			if s.events.Publish(ev) == 0 {
				s.cfg.Metrics.IncEventDiscarded()
			} else {
				s.cfg.Metrics.IncEventEmitted()
			}
		}
	}
}

// finish records the scope's outcome and completes both output streams.
// Snapshots still buffered in the ring are delivered before the streams
// close.
func (s *Store[S, E]) finish(err error) {
	s.ring.Close()
	<-s.pumpDone
	s.states.Close()
	s.events.Close()

	s.errMu.Lock()
	s.runErr = err
	s.errMu.Unlock()
	close(s.done)
}

// intentName names an intent's runtime type for diagnostics.
func intentName(it any) string {
	if it == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", it)
}
