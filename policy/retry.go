// Package policy provides the retry policies the store consults after a
// transformation attempt fails.
//
// A policy is a pure predicate over (attempt number, failure cause). It
// never performs the retry itself; the store owns resubscription.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/sluice/dispatch"
)

// Retry decides whether the store resubscribes its transformation stage
// after a failed attempt.
//
// Allow receives the 1-based number of the attempt that just failed and the
// failure cause. Returning true restarts the transformation stage from
// scratch; returning false terminates the pipeline.
type Retry interface {
	Allow(attempt int64, cause error) bool
}

// RetryFunc adapts a plain predicate to the Retry interface.
type RetryFunc func(attempt int64, cause error) bool

// Allow implements Retry.
func (f RetryFunc) Allow(attempt int64, cause error) bool {
	return f(attempt, cause)
}

// Never returns a policy that never resubscribes: the first failure is
// terminal.
func Never() Retry {
	return RetryFunc(func(int64, error) bool { return false })
}

// Always returns a policy that resubscribes on every failure, regardless of
// cause. Intended for tests and supervised environments; a deterministic
// failure loops indefinitely under it.
func Always() Retry {
	return RetryFunc(func(int64, error) bool { return true })
}

// MaxRetries returns a policy that resubscribes while the failed attempt
// number is at most n, regardless of cause. MaxRetries(3) permits three
// resubscriptions, so four attempts in total.
func MaxRetries(n int64) Retry {
	return RetryFunc(func(attempt int64, _ error) bool { return attempt <= n })
}

// Transient returns a policy that resubscribes on transient failures up to
// n times and never on fatal causes. Cancellation and recovered panics are
// fatal; handler-returned errors are transient.
func Transient(n int64) Retry {
	return RetryFunc(func(attempt int64, cause error) bool {
		if Fatal(cause) {
			return false
		}
		return attempt <= n
	})
}

// DefaultMaxRetries is the retry budget of the default policy.
const DefaultMaxRetries = 3

// Default returns the default policy: Transient(DefaultMaxRetries).
func Default() Retry {
	return Transient(DefaultMaxRetries)
}

// Fatal reports whether cause belongs to an unrecoverable category:
// context cancellation or a recovered handler panic.
func Fatal(cause error) bool {
	if cause == nil {
		return false
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return true
	}
	return dispatch.IsPanicError(cause)
}

// Retry modes accepted by FromConfig.
const (
	ModeTransient = "transient"
	ModeAlways    = "always"
	ModeNever     = "never"
	ModeMax       = "max"
)

// ErrUnknownMode reports an unrecognized retry mode in configuration.
var ErrUnknownMode = errors.New("unknown retry mode")

// FromConfig builds a Retry from configuration values. An empty mode means
// transient. maxRetries applies to the transient and max modes; values
// below one fall back to DefaultMaxRetries.
func FromConfig(mode string, maxRetries int64) (Retry, error) {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	switch mode {
	case ModeTransient, "":
		return Transient(maxRetries), nil
	case ModeAlways:
		return Always(), nil
	case ModeNever:
		return Never(), nil
	case ModeMax:
		return MaxRetries(maxRetries), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}
