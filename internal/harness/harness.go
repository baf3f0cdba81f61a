// Package harness runs compiled test programs through a runtime host in
// bounded, sequential batches and collects the names of those that passed.
package harness

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lvzrr/lvjb/internal/diag"
	"github.com/lvzrr/lvjb/internal/fileset"
	"github.com/lvzrr/lvjb/internal/trace"
	"github.com/lvzrr/lvjb/internal/vmhost"
)

// Invoker runs an entry point to completion. *vmhost.Host satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, class string, args []string) error
}

// Harness runs test entry points through Invoker.
type Harness struct {
	Invoker Invoker

	// Parallelism bounds the batch size. Zero or less uses runtime.NumCPU().
	Parallelism int

	// Root and Ext map test files back to class names.
	Root string
	Ext  string

	Diag  *diag.Printer
	Log   *slog.Logger
	Trace *trace.Recorder

	// OnPhase, when set, observes every phase transition.
	OnPhase func(p Phase, batch int)
}

type outcome struct {
	entry string
	err   error
}

// RunAll runs one invocation per test file, at most Parallelism at a time,
// one batch fully joined before the next starts.
//
// A failing test is reported on the diagnostic stream and left out of the
// summary; it does not make RunAll fail. A worker that ends without an
// outcome is an error, and so is a ctx that ends mid-run: no later batch is
// dispatched and no summary is returned.
func (h *Harness) RunAll(ctx context.Context, files []string) (*Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p := h.Parallelism
	if p <= 0 {
		p = runtime.NumCPU()
	}
	printer := h.Diag
	if printer == nil {
		printer = diag.Discard()
	}
	log := h.Log
	if log == nil {
		log = diag.NopLogger()
	}

	entries := make([]string, 0, len(files))
	for _, f := range files {
		name, err := fileset.EntryPointName(h.Root, f, h.Ext)
		if err != nil {
			printer.Errorf(diag.Fail, "TEST FAILED", "%s: %v", f, err)
			continue
		}
		entries = append(entries, name)
	}

	m := &machine{on: h.OnPhase}
	sum := &Summary{Total: len(files), Passed: make([]string, 0, len(entries))}
	var mu sync.Mutex

	for start := 0; start < len(entries); start += p {
		end := min(start+p, len(entries))
		batch := entries[start:end]

		from := PhaseIdle
		if start > 0 {
			from = PhaseJoining
		}
		if err := m.transition(from, PhaseDispatching); err != nil {
			return nil, err
		}
		log.Debug("dispatch batch", "batch", m.batch, "size", len(batch))

		var (
			g        errgroup.Group
			joinErrs []error
			bi       = m.batch
		)
		for _, entry := range batch {
			entry := entry
			h.Trace.Add(trace.Event{Kind: trace.EventDispatched, Entry: entry, Batch: bi})
			g.Go(func() error {
				delivered := false
				defer func() {
					if !delivered {
						mu.Lock()
						joinErrs = append(joinErrs, &HarnessError{Kind: ErrJoinFailure, Msg: entry})
						mu.Unlock()
					}
				}()
				out := outcome{entry: entry, err: h.invoke(ctx, entry)}
				h.deliver(out, bi, sum, &mu, printer)
				delivered = true
				return nil
			})
		}

		if err := m.transition(PhaseDispatching, PhaseJoining); err != nil {
			return nil, err
		}
		_ = g.Wait()
		if len(joinErrs) > 0 {
			log.Error("worker join failure", "batch", bi, "count", len(joinErrs))
			return nil, errors.Join(joinErrs...)
		}
		if cerr := ctx.Err(); cerr != nil {
			log.Warn("test run cancelled", "batch", bi, "remaining", len(entries)-end)
			return nil, &HarnessError{Kind: ErrCancelled, Msg: cerr.Error(), Err: cerr}
		}
		sum.Batches++
	}

	from := PhaseIdle
	if len(entries) > 0 {
		from = PhaseJoining
	}
	if err := m.transition(from, PhaseDone); err != nil {
		return nil, err
	}

	log.Info("test run finished", "total", sum.Total, "passed", len(sum.Passed), "batches", sum.Batches)
	sum.Report(printer)
	return sum, nil
}

// invoke calls the entry point with no arguments, turning a panic into a
// test failure.
func (h *Harness) invoke(ctx context.Context, entry string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return h.Invoker.Invoke(ctx, entry, []string{})
}

func (h *Harness) deliver(out outcome, batch int, sum *Summary, mu *sync.Mutex, p *diag.Printer) {
	if out.err != nil {
		p.Errorf(diag.Fail, "TEST FAILED", "%s: %v", out.entry, out.err)
		h.Trace.Add(trace.Event{Kind: trace.EventFailed, Entry: out.entry, Batch: batch, Reason: reason(out.err)})
		return
	}
	mu.Lock()
	sum.Passed = append(sum.Passed, out.entry)
	mu.Unlock()
	h.Trace.Add(trace.Event{Kind: trace.EventPassed, Entry: out.entry, Batch: batch})
}

func reason(err error) string {
	var pe *PanicError
	switch {
	case errors.As(err, &pe):
		return "Panic"
	case errors.Is(err, vmhost.ErrClassNotFound):
		return "ClassNotFound"
	case errors.Is(err, vmhost.ErrEntryPointMissing):
		return "EntryPointMissing"
	case errors.Is(err, vmhost.ErrAttachFailure):
		return "AttachFailure"
	case errors.Is(err, vmhost.ErrUncaughtException):
		return "UncaughtException"
	default:
		return "Error"
	}
}
