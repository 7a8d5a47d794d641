package dispatch

import (
	"errors"
	"fmt"
)

// DispatchError classifies a failed transformation attempt for the store's
// retry decision.
type DispatchError struct {
	// Kind indicates whether a handler returned an error or panicked.
	Kind DispatchErrorKind
	// IntentType is the runtime type name of the intent being handled.
	IntentType string
	// Err is the underlying error.
	Err error
}

// DispatchErrorKind classifies dispatch failures.
type DispatchErrorKind int

const (
	// DispatchErrorHandler indicates a handler returned a non-nil error.
	DispatchErrorHandler DispatchErrorKind = iota
	// DispatchErrorPanic indicates a recovered panic inside a handler or a
	// change application.
	DispatchErrorPanic
)

func (e *DispatchError) Error() string {
	return e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsHandlerError returns true if the error is a handler-returned failure.
func IsHandlerError(err error) bool {
	var dErr *DispatchError
	if errors.As(err, &dErr) {
		return dErr.Kind == DispatchErrorHandler
	}
	return false
}

// IsPanicError returns true if the error is a recovered panic.
func IsPanicError(err error) bool {
	var dErr *DispatchError
	if errors.As(err, &dErr) {
		return dErr.Kind == DispatchErrorPanic
	}
	return false
}

func handlerError(intentType string, err error) *DispatchError {
	return &DispatchError{
		Kind:       DispatchErrorHandler,
		IntentType: intentType,
		Err:        fmt.Errorf("handler %s: %w", intentType, err),
	}
}

func panicError(intentType string, recovered any) *DispatchError {
	return &DispatchError{
		Kind:       DispatchErrorPanic,
		IntentType: intentType,
		Err:        fmt.Errorf("handler %s: panic: %v", intentType, recovered),
	}
}
