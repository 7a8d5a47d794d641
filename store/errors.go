package store

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted reports a second Start call on the same Store.
var ErrAlreadyStarted = errors.New("store: already started")

// TerminalError reports a run that exhausted its retry policy. Both output
// streams complete once a TerminalError is recorded; the final failing
// cause is available via Unwrap.
type TerminalError struct {
	// Attempts is the number of transformation attempts that failed,
	// including the final one.
	Attempts int64
	// Err is the cause of the final failed attempt.
	Err error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("store: terminal after %d failed attempts: %v", e.Attempts, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether err marks a run that exhausted its retries.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}
