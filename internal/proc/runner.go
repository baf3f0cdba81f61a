// Package proc runs external tools (compiler, archiver, doc generator, shell
// hooks, the java launcher) behind a small process-invocation abstraction.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
)

// Command describes a single external process invocation.
type Command struct {
	// Path is the program to run. It is looked up in PATH when it has no separator.
	Path string

	// Args are the arguments, excluding the program name.
	Args []string

	// Dir is the working directory. Empty means the caller's directory.
	Dir string

	// Env is the complete environment. Nil inherits the host environment.
	Env []string

	// Stdin is connected to the child's standard input when non-nil.
	Stdin io.Reader

	// Stdout and Stderr receive a live copy of the child's streams.
	// Output is always captured into Result regardless of these sinks.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for diagnostics.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of a process that was started successfully.
type Result struct {
	// ExitCode is the process exit status. 0 indicates success.
	ExitCode int

	// Stdout is the captured standard output.
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte
}

// Success reports whether the process exited with status 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// SpawnError reports that a process could not be started at all.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("failed to execute %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IsSpawnError reports whether err (or anything it wraps) is a *SpawnError.
func IsSpawnError(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}

// Runner executes commands.
//
// A non-zero exit status is not an error: it is reported through
// Result.ExitCode. A non-nil error means the process never ran
// (*SpawnError) or was cancelled.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as child processes of the current process.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts cmd and waits for it to exit.
//
// The child is placed in its own process group so that cancelling ctx kills
// the whole tree the tool may have spawned.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cmd.Path) == "" {
		return nil, &SpawnError{Path: cmd.Path, Err: errors.New("empty program path")}
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.Stdin = cmd.Stdin
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	c.Stdout = teeTo(&stdout, cmd.Stdout)
	c.Stderr = teeTo(&stderr, cmd.Stderr)

	if err := c.Start(); err != nil {
		return nil, &SpawnError{Path: cmd.Path, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if c.Process != nil {
			_ = syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("%s cancelled: %w", cmd.Path, ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &SpawnError{Path: cmd.Path, Err: err}
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}

func teeTo(capture *bytes.Buffer, sink io.Writer) io.Writer {
	if sink == nil {
		return capture
	}
	return io.MultiWriter(capture, sink)
}

// Starter launches processes that outlive a single call.
type Starter interface {
	Start(cmd Command) (*Process, error)
}

// Process is a started child that runs until it exits or is killed.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Start launches cmd in its own process group and returns without waiting.
// Output goes to cmd's sinks only; nothing is captured.
func (r *ExecRunner) Start(cmd Command) (*Process, error) {
	if strings.TrimSpace(cmd.Path) == "" {
		return nil, &SpawnError{Path: cmd.Path, Err: errors.New("empty program path")}
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.Stdin = cmd.Stdin
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := c.Start(); err != nil {
		return nil, &SpawnError{Path: cmd.Path, Err: err}
	}
	p := &Process{cmd: c, done: make(chan struct{})}
	go func() {
		p.err = c.Wait()
		close(p.done)
	}()
	return p, nil
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits and returns its exit error, if any.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Kill kills the process group and waits for the process to exit.
func (p *Process) Kill() error {
	err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	<-p.done
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// Shell wraps a shell command line as a Command run through `sh -c`.
func Shell(line string) Command {
	return Command{Path: "sh", Args: []string{"-c", line}}
}
