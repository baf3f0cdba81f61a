// Package vmhost owns the single managed runtime instance of a command and
// invokes program entry points on it.
package vmhost

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// Host wraps one runtime instance. Invoke is safe for concurrent use; each
// call attaches its own thread context.
type Host struct {
	backend string
	rt      Runtime

	mu     sync.RWMutex
	closed bool
}

// Start constructs the runtime instance through the named backend. An empty
// name selects DefaultBackend.
func Start(backend string, opts Options) (*Host, error) {
	if backend == "" {
		backend = DefaultBackend
	}
	f, err := lookup(backend)
	if err != nil {
		return nil, err
	}
	rt, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStartFailure, backend, err)
	}
	return &Host{backend: backend, rt: rt}, nil
}

// Backend returns the name the host was started with.
func (h *Host) Backend() string {
	return h.backend
}

// Invoke runs class.main(args) and reports how it ended. Whether ctx can
// interrupt a running program depends on the backend.
func (h *Host) Invoke(ctx context.Context, class string, args []string) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHostClosed
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c, aerr := h.rt.Attach()
	if aerr != nil {
		return &InvokeError{Kind: ErrAttachFailure, Class: class, Err: aerr}
	}
	defer func() {
		if derr := c.Detach(); derr != nil && err == nil {
			err = &InvokeError{Kind: ErrAttachFailure, Class: class, Err: derr}
		}
	}()

	if cerr := c.CallMain(ctx, class, args); cerr != nil {
		var ie *InvokeError
		if errors.As(cerr, &ie) {
			return ie
		}
		return &InvokeError{Kind: ErrUncaughtException, Class: class, Msg: cerr.Error(), Err: cerr}
	}
	return nil
}

// Close destroys the runtime instance after in-flight invocations finish.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.rt.Destroy()
}
