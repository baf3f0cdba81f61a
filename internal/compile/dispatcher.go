// Package compile runs the external compiler over a batch of source files,
// bracketed by the configured pre- and post-build shell hooks.
package compile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lvzrr/lvjb/internal/config"
	"github.com/lvzrr/lvjb/internal/diag"
	"github.com/lvzrr/lvjb/internal/fileset"
	"github.com/lvzrr/lvjb/internal/proc"
)

// Dispatcher invokes the compiler for one build pass.
type Dispatcher struct {
	Runner proc.Runner
	Config *config.Config

	// Root is the project root; every tool runs there.
	Root string

	Diag *diag.Printer
	Log  *slog.Logger
}

// New builds a dispatcher with a discarding printer and logger, to be
// overridden by the caller where needed.
func New(r proc.Runner, cfg *config.Config, root string) *Dispatcher {
	return &Dispatcher{Runner: r, Config: cfg, Root: root, Diag: diag.Discard(), Log: diag.NopLogger()}
}

// Compile runs pre-build hooks, then the compiler once with every file, then
// post-build hooks. An empty file set skips the compiler and succeeds.
func (d *Dispatcher) Compile(ctx context.Context, files []string) error {
	if err := RunHooks(ctx, d.Runner, d.Root, d.Config.PreBuildCmds, d.Diag); err != nil {
		return err
	}
	if len(files) == 0 {
		d.Diag.Errorf(diag.OK, "COMPILER", "Nothing to compile")
		d.Log.Debug("compile skipped", "files", 0)
		return nil
	}

	cp := fileset.ExpandClasspath(d.Root, d.Config.Classpath)
	cmd := d.Command(cp, files)

	d.Diag.Printf(diag.Info, "COMPILER", "classpath: %s, output to: %s", cp, d.Config.Paths.Bin)
	d.Diag.Raw(listing(files))
	d.Log.Info("compile", "compiler", d.Config.Compiler, "files", len(files))

	res, err := d.Runner.Run(ctx, cmd)
	if err != nil {
		if proc.IsSpawnError(err) {
			return &CompileError{Kind: ErrSpawnFailure, Err: err}
		}
		return err
	}
	if !res.Success() {
		d.Log.Warn("compile failed", "status", res.ExitCode)
		return &CompileError{Kind: ErrToolFailure, Status: res.ExitCode}
	}
	d.Diag.Printf(diag.OK, "COMPILER OK", "Compilation succeeded.")

	return RunHooks(ctx, d.Runner, d.Root, d.Config.PostBuildCmds, d.Diag)
}

// Command builds `<compiler> [-cp cp] -d <bin> files... [compilation args]`.
func (d *Dispatcher) Command(cp string, files []string) proc.Command {
	var args []string
	if len(d.Config.Classpath) > 0 {
		args = append(args, "-cp", cp)
	}
	args = append(args, "-d", d.Config.Paths.Bin)
	args = append(args, files...)
	args = append(args, d.Config.Args.Compilation...)
	return proc.Command{
		Path:   d.Config.Compiler,
		Args:   args,
		Dir:    d.Root,
		Stdout: d.Diag.Stdout(),
		Stderr: d.Diag.Stderr(),
	}
}

func listing(files []string) string {
	var b strings.Builder
	for i, f := range files {
		mark := "├ "
		if i == len(files)-1 {
			mark = "└ "
		}
		fmt.Fprintf(&b, "  %s %s\n", mark, f)
	}
	return b.String()
}

// RunHooks runs each hook through `sh -c` in order and stops at the first
// one that fails.
func RunHooks(ctx context.Context, r proc.Runner, dir string, hooks []string, p *diag.Printer) error {
	for _, h := range hooks {
		p.Errorf(diag.Info, "PRECOMP HOOK", "Running %s", h)
		cmd := proc.Shell(h)
		cmd.Dir = dir
		cmd.Stdout = p.Stdout()
		cmd.Stderr = p.Stderr()
		res, err := r.Run(ctx, cmd)
		if err != nil {
			return &HookError{Command: h, Err: err}
		}
		if !res.Success() {
			return &HookError{Command: h, Status: res.ExitCode}
		}
	}
	return nil
}
