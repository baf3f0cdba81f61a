package vmhost

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/lvzrr/lvjb/internal/proc"
)

func init() {
	Register("exec", newExecRuntime)
}

// execRuntime runs every invocation in a fresh java process. It is only
// used when selected by name, for JDKs that cannot launch a source file.
// Attach and Detach have nothing to set up.
type execRuntime struct {
	opts Options
}

func newExecRuntime(opts Options) (Runtime, error) {
	if opts.Java == "" {
		opts.Java = "java"
	}
	if opts.Runner == nil {
		opts.Runner = proc.NewExecRunner()
	}
	return &execRuntime{opts: opts}, nil
}

func (r *execRuntime) Attach() (Context, error) { return execContext{r}, nil }
func (r *execRuntime) Destroy() error           { return nil }

type execContext struct {
	rt *execRuntime
}

func (c execContext) Detach() error { return nil }

func (c execContext) CallMain(ctx context.Context, class string, args []string) error {
	o := c.rt.opts
	argv := append([]string{}, o.Flags...)
	if o.Classpath != "" {
		argv = append(argv, "-cp", o.Classpath)
	}
	argv = append(argv, class)
	argv = append(argv, args...)

	res, err := o.Runner.Run(ctx, proc.Command{
		Path:   o.Java,
		Args:   argv,
		Dir:    o.Dir,
		Stdout: o.Stdout,
		Stderr: o.Stderr,
	})
	if err != nil {
		if proc.IsSpawnError(err) {
			return &InvokeError{Kind: ErrAttachFailure, Class: class, Err: err}
		}
		return err
	}
	if res.Success() {
		return nil
	}
	return classify(class, res)
}

func classify(class string, res *proc.Result) *InvokeError {
	stderr := string(res.Stderr)
	switch {
	case strings.Contains(stderr, "Could not find or load main class"),
		strings.Contains(stderr, "java.lang.ClassNotFoundException: "+class):
		return &InvokeError{Kind: ErrClassNotFound, Class: class}
	case strings.Contains(stderr, "Main method not found"),
		strings.Contains(stderr, "Main method is not static"):
		return &InvokeError{Kind: ErrEntryPointMissing, Class: class}
	}
	return &InvokeError{Kind: ErrUncaughtException, Class: class, Msg: exceptionMessage(res)}
}

const exceptionPrefix = `Exception in thread "main" `

func exceptionMessage(res *proc.Result) string {
	var last string
	for _, line := range bytes.Split(res.Stderr, []byte("\n")) {
		l := strings.TrimSpace(string(line))
		if strings.HasPrefix(l, exceptionPrefix) {
			return strings.TrimPrefix(l, exceptionPrefix)
		}
		if l != "" {
			last = l
		}
	}
	if last != "" {
		return last
	}
	return fmt.Sprintf("exited with status %d", res.ExitCode)
}
