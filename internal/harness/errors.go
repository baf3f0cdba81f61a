package harness

import (
	"errors"
	"fmt"
)

var (
	// ErrJoinFailure: a worker ended without delivering its outcome.
	ErrJoinFailure = errors.New("worker join failure")

	// ErrCancelled: the run's context ended before every batch was joined.
	ErrCancelled = errors.New("test run cancelled")

	ErrInvalidPhase = errors.New("invalid harness phase transition")
)

// HarnessError is a failure of the harness itself, never of a test.
type HarnessError struct {
	Kind error
	Msg  string
	Err  error
}

func (e *HarnessError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
}

func (e *HarnessError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PanicError is reported as the failure of a test whose invocation panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
