// Package trace records what a test run did (dispatches, passes, failures)
// in a canonical form that does not depend on worker interleaving.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// RunTrace is the canonical record of one harness run.
//
// It carries no timestamps, durations or error text, so two runs with the
// same inputs and the same per-test outcomes encode to identical bytes.
type RunTrace struct {
	// Suite identifies the set of entry points that was run.
	Suite  string
	Events []Event
}

// Kind discriminates events. The string values are part of the encoding.
type Kind string

const (
	EventDispatched Kind = "Dispatched"
	EventPassed     Kind = "Passed"
	EventFailed     Kind = "Failed"
)

// Event is one logical step for one entry point.
type Event struct {
	Kind  Kind
	Entry string

	// Batch is the zero-based batch the entry point was dispatched in.
	Batch int

	// Reason is a stable failure code ("ClassNotFound", "UncaughtException",
	// "Panic", ...). Empty unless Kind is EventFailed.
	Reason string
}

// Recorder accumulates events from concurrent workers in arrival order.
// The zero value is ready to use; a nil *Recorder drops events.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Add(e Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Trace returns the canonical trace of what was added so far, labelled suite.
func (r *Recorder) Trace(suite string) RunTrace {
	t := RunTrace{Suite: suite}
	if r != nil {
		r.mu.Lock()
		t.Events = slices.Clone(r.events)
		r.mu.Unlock()
	}
	t.Canonicalize()
	return t
}

// Validate checks basic invariants.
func (t *RunTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.Suite == "" {
		return errors.New("suite is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Entry == "" {
			return fmt.Errorf("events[%d].entry is required", i)
		}
		if e.Batch < 0 {
			return fmt.Errorf("events[%d].batch is negative", i)
		}
		if e.Kind != EventFailed && e.Reason != "" {
			return fmt.Errorf("events[%d].reason set on %s event", i, e.Kind)
		}
	}
	return nil
}

// Canonicalize sorts events by (entry, kind order, batch, reason).
func (t *RunTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.Entry != b.Entry {
			return a.Entry < b.Entry
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Batch != b.Batch {
			return a.Batch < b.Batch
		}
		return a.Reason < b.Reason
	})
}

func kindOrder(k Kind) int {
	switch k {
	case EventDispatched:
		return 10
	case EventPassed:
		return 20
	case EventFailed:
		return 30
	default:
		return 1000
	}
}

// CanonicalJSON encodes a canonicalized copy of the trace.
func (t RunTrace) CanonicalJSON() ([]byte, error) {
	c := RunTrace{Suite: t.Suite, Events: make([]Event, len(t.Events))}
	copy(c.Events, t.Events)
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&c)
}

// Hash returns the hash of the canonical encoding.
func (t RunTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeHash(b), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (t RunTrace) MarshalJSON() ([]byte, error) {
	if t.Suite == "" {
		return nil, errors.New("suite is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"suite":`)
	sb, _ := json.Marshal(t.Suite)
	buf.Write(sb)
	buf.WriteString(`,"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits an empty reason.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)
	buf.WriteString(`,"entry":`)
	nb, _ := json.Marshal(e.Entry)
	buf.Write(nb)
	fmt.Fprintf(&buf, `,"batch":%d`, e.Batch)
	if e.Reason != "" {
		buf.WriteString(`,"reason":`)
		rb, _ := json.Marshal(e.Reason)
		buf.Write(rb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
