package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/sluice/store"
)

// OutcomeStatus classifies how a run ended.
type OutcomeStatus string

const (
	// OutcomeCompleted means every feed drained and the fold finished cleanly.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeCanceled means the run context was canceled before completion.
	OutcomeCanceled OutcomeStatus = "canceled"
	// OutcomeTerminal means a handler failure exhausted the retry policy.
	OutcomeTerminal OutcomeStatus = "terminal"
)

// Process exit codes for the serve command.
const (
	ExitCodeCompleted    = 0 // run drained and folded cleanly
	ExitCodeTerminal     = 1 // handler failure exhausted retries
	ExitCodeCanceled     = 2 // interrupted before completion
	ExitCodeInvalidInput = 3 // invalid arguments or configuration
)

// RunOutcome is the classified end state of a run.
type RunOutcome struct {
	Status  OutcomeStatus
	Message string
}

// ClassifyOutcome maps the store's terminal error to a run outcome.
//
//   - nil: completed
//   - context cancellation or deadline: canceled
//   - terminal handler failure: terminal, carrying attempts and cause
func ClassifyOutcome(err error) *RunOutcome {
	switch {
	case err == nil:
		return &RunOutcome{
			Status:  OutcomeCompleted,
			Message: "run completed",
		}

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &RunOutcome{
			Status:  OutcomeCanceled,
			Message: fmt.Sprintf("run canceled: %v", err),
		}

	case store.IsTerminal(err):
		var term *store.TerminalError
		errors.As(err, &term)
		return &RunOutcome{
			Status:  OutcomeTerminal,
			Message: fmt.Sprintf("handler failed after %d attempts: %v", term.Attempts, term.Err),
		}

	default:
		return &RunOutcome{
			Status:  OutcomeTerminal,
			Message: fmt.Sprintf("run failed: %v", err),
		}
	}
}

// ExitCodeFor maps an outcome status to the serve command's exit code.
func ExitCodeFor(status OutcomeStatus) int {
	switch status {
	case OutcomeCompleted:
		return ExitCodeCompleted
	case OutcomeCanceled:
		return ExitCodeCanceled
	default:
		return ExitCodeTerminal
	}
}
