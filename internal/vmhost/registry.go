package vmhost

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/lvzrr/lvjb/internal/proc"
)

// Options configure a runtime instance.
type Options struct {
	// Classpath is the expanded, ':'-joined class path.
	Classpath string

	// Flags are runtime engine flags (args.jvm).
	Flags []string

	// Java is the launcher used by the jvm and exec backends.
	Java string

	// Dir is the working directory of the program.
	Dir string

	// Runner launches processes for process-based backends.
	Runner proc.Runner

	// Stdout and Stderr receive program output.
	Stdout io.Writer
	Stderr io.Writer
}

// Runtime is one managed runtime instance.
type Runtime interface {
	// Attach gives the calling OS thread its own execution context.
	Attach() (Context, error)

	// Destroy tears the instance down. No context may be attached.
	Destroy() error
}

// Context is a per-thread execution context. It must not be shared between
// threads.
type Context interface {
	// CallMain invokes the static main(String[]) of class.
	CallMain(ctx context.Context, class string, args []string) error

	Detach() error
}

// Factory constructs a runtime instance.
type Factory func(Options) (Runtime, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// DefaultBackend is used when no backend is configured: one persistent JVM
// process. Builds with the jni tag switch it to the in-process backend.
var DefaultBackend = "jvm"

// Register makes a backend available by name. Registering a name twice
// replaces the earlier factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return keysLocked()
}

func lookup(name string) (Factory, error) {
	if name == "" {
		name = DefaultBackend
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, name, keysLocked())
	}
	return f, nil
}

func keysLocked() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
