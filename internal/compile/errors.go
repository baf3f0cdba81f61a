package compile

import (
	"errors"
	"fmt"
)

var (
	// ErrToolFailure: the compiler exited with a non-zero status.
	ErrToolFailure = errors.New("compiler failed")

	// ErrSpawnFailure: the compiler could not be started.
	ErrSpawnFailure = errors.New("compiler could not be started")
)

// CompileError reports a failed compiler invocation.
type CompileError struct {
	Kind   error
	Status int
	Err    error
}

func (e *CompileError) Error() string {
	if e == nil {
		return ""
	}
	if errors.Is(e.Kind, ErrSpawnFailure) {
		return fmt.Sprintf("Failed to execute command: %v", e.Err)
	}
	return fmt.Sprintf("Compilation failed with status: %d", e.Status)
}

func (e *CompileError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// HookError reports a pre- or post-build hook that failed or could not start.
type HookError struct {
	Command string
	Status  int
	Err     error
}

func (e *HookError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("`%s` failed to execute: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("`%s` failed with status: %d", e.Command, e.Status)
}

func (e *HookError) Unwrap() error { return e.Err }
