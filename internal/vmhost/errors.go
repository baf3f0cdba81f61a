package vmhost

import (
	"errors"
	"fmt"
)

// Invocation failure kinds, matched with errors.Is.
var (
	ErrClassNotFound     = errors.New("class not found")
	ErrEntryPointMissing = errors.New("entry point missing")
	ErrUncaughtException = errors.New("uncaught exception")
	ErrAttachFailure     = errors.New("runtime attach failure")
	ErrStartFailure      = errors.New("runtime start failure")
	ErrUnknownBackend    = errors.New("unknown runtime backend")
	ErrHostClosed        = errors.New("runtime host closed")
)

// InvokeError reports a failed entry point invocation.
type InvokeError struct {
	Kind  error
	Class string
	Msg   string
	Err   error
}

func (e *InvokeError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case errors.Is(e.Kind, ErrUncaughtException) && e.Msg != "":
		return e.Msg
	case e.Msg != "":
		return fmt.Sprintf("%s: %v: %s", e.Class, e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Class, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Class, e.Kind)
	}
}

func (e *InvokeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsException reports whether err is an uncaught exception raised by the
// invoked program, as opposed to a host-side failure.
func IsException(err error) bool {
	return errors.Is(err, ErrUncaughtException)
}
