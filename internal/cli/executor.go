package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lvzrr/lvjb/internal/compile"
	"github.com/lvzrr/lvjb/internal/config"
	"github.com/lvzrr/lvjb/internal/diag"
	"github.com/lvzrr/lvjb/internal/harness"
	"github.com/lvzrr/lvjb/internal/history"
	"github.com/lvzrr/lvjb/internal/proc"
	"github.com/lvzrr/lvjb/internal/project"
	"github.com/lvzrr/lvjb/internal/toolchain"
	"github.com/lvzrr/lvjb/internal/vmhost"
)

var errNoEntryPoint = errors.New("No entry point")

// Options replace the collaborators Execute uses. Zero values select the
// process defaults.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer

	Runner     proc.Runner
	HTTPClient *http.Client

	// LookupEnv overrides environment lookup for config overrides.
	LookupEnv func(string) (string, bool)
}

func (o Options) withDefaults() Options {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Runner == nil {
		o.Runner = proc.NewExecRunner()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.LookupEnv == nil {
		o.LookupEnv = os.LookupEnv
	}
	return o
}

// Result is the outcome of one command.
type Result struct {
	ExitCode int

	// RunID identifies the run in the log and the history database.
	RunID string

	// Summary is set by test.
	Summary *harness.Summary
}

// Execute runs inv against the real process environment.
func Execute(ctx context.Context, inv Invocation) (Result, error) {
	return ExecuteWith(ctx, inv, Options{})
}

// ExecuteWith runs inv. Every failure is reported as one tagged diagnostic
// line and yields ExitFailure.
func ExecuteWith(ctx context.Context, inv Invocation, opts Options) (res Result, execErr error) {
	res.ExitCode = ExitFailure
	opts = opts.withDefaults()
	p := diag.New(opts.Stdout, opts.Stderr)

	switch inv.Command {
	case CmdHelp:
		printHelp(opts.Stdout)
		res.ExitCode = ExitSuccess
		return res, nil
	case CmdInit:
		if _, err := project.Init(inv.WorkDir); err != nil {
			p.Errorf(diag.Fail, "lvjb", "%v", err)
			return res, err
		}
		p.Errorf(diag.OK, "lvjb", "Initialized project in %s", inv.WorkDir)
		res.ExitCode = ExitSuccess
		return res, nil
	}

	cfg, err := config.Load(inv.WorkDir)
	if err == nil {
		err = cfg.ApplyEnv(opts.LookupEnv)
	}
	if err != nil {
		p.Errorf(diag.Fail, "lvjb", "%v", err)
		return res, err
	}

	stateDir := filepath.Join(inv.WorkDir, config.StateDir)
	log, closer, err := diag.OpenLog(stateDir, cfg.LogLevel)
	if err != nil {
		p.Errorf(diag.Info, "lvjb", "logging disabled: %v", err)
		log = diag.NopLogger()
	} else {
		defer closer.Close()
	}

	run := history.NewRun(inv.Command)
	res.RunID = run.ID
	log = log.With("run", run.ID)
	log.Info("command start", "command", inv.Command, "target", inv.Target)

	s := &session{
		inv:      inv,
		cfg:      cfg,
		opts:     opts,
		p:        p,
		log:      log,
		stateDir: stateDir,
	}
	err = s.dispatch(ctx, run)
	run.Finish(err)
	if recorded(inv.Command) {
		// An interrupted run is still recorded.
		s.record(context.WithoutCancel(ctx), run)
	}
	log.Info("command finish", "command", inv.Command, "ok", err == nil, "duration", run.Duration)

	if err != nil {
		p.Errorf(diag.Fail, errorTag(inv.Command, err), "%v", err)
		return res, err
	}
	res.Summary = s.summary
	res.ExitCode = ExitSuccess
	return res, nil
}

// reportInvocationError prints a ParseInvocation error as a tagged line.
func reportInvocationError(opts Options, err error) {
	opts = opts.withDefaults()
	tag := "lvjb"
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr.Tag != "" {
		tag = invErr.Tag
	}
	diag.New(opts.Stdout, opts.Stderr).Errorf(diag.Fail, tag, "%v", err)
}

// session carries the loaded project state through one command.
type session struct {
	inv      Invocation
	cfg      *config.Config
	opts     Options
	p        *diag.Printer
	log      *slog.Logger
	stateDir string

	summary *harness.Summary
}

func (s *session) root() string { return s.inv.WorkDir }

func (s *session) dispatch(ctx context.Context, run *history.Run) error {
	switch s.inv.Command {
	case CmdInitPkg:
		dir, err := project.InitPackage(s.root(), s.cfg, s.inv.Target)
		if err != nil {
			return err
		}
		s.log.Info("package created", "dir", dir)
		return nil
	case CmdBuild:
		return s.build(ctx, run, s.inv.Target, s.inv.Rebuild)
	case CmdTest:
		return s.test(ctx, run)
	case CmdRun:
		return s.run(ctx)
	case CmdClean:
		n, err := project.Clean(s.root(), s.cfg)
		if err != nil {
			return err
		}
		s.p.Errorf(diag.OK, "CLEAN", "Removed %d class files and the build cache", n)
		return nil
	case CmdDocgen:
		return s.toolchain().Docgen(ctx, s.inv.Target)
	case CmdCurl:
		return s.curl(ctx, s.inv.Target)
	case CmdRelease:
		return s.release(ctx, run)
	case CmdHistory:
		return s.history(ctx, s.inv.HistoryLimit)
	default:
		return fmt.Errorf("Unrecognized command: '%s'", s.inv.Command)
	}
}

func (s *session) dispatcher() *compile.Dispatcher {
	d := compile.New(s.opts.Runner, s.cfg, s.root())
	d.Diag = s.p
	d.Log = s.log
	return d
}

func (s *session) toolchain() *toolchain.Toolchain {
	tc := toolchain.New(s.opts.Runner, s.cfg, s.root())
	tc.Diag = s.p
	tc.Log = s.log
	return tc
}

// recorded reports whether a command is kept in the run history.
func recorded(cmd string) bool {
	switch cmd {
	case CmdBuild, CmdTest, CmdRun, CmdRelease:
		return true
	}
	return false
}

func (s *session) record(ctx context.Context, run *history.Run) {
	store, err := history.Open(ctx, s.stateDir)
	if err != nil {
		s.log.Warn("history unavailable", "err", err)
		return
	}
	defer store.Close()
	if err := store.Record(ctx, run); err != nil {
		s.log.Warn("history not recorded", "err", err)
	}
}

// errorTag picks the diagnostic tag a failed command is reported under.
func errorTag(cmd string, err error) string {
	var (
		hookErr    *compile.HookError
		compileErr *compile.CompileError
		invokeErr  *vmhost.InvokeError
		harnessErr *harness.HarnessError
	)
	switch {
	case errors.As(err, &hookErr):
		return "HOOK ERROR"
	case errors.As(err, &compileErr):
		return "COMPILER ERROR"
	case errors.As(err, &invokeErr):
		if errors.Is(invokeErr.Kind, vmhost.ErrUncaughtException) {
			return "EXCEPTION"
		}
		return "RUNNER"
	case errors.Is(err, vmhost.ErrStartFailure), errors.Is(err, vmhost.ErrUnknownBackend), errors.Is(err, errNoEntryPoint):
		return "RUNNER"
	case errors.As(err, &harnessErr):
		return "TESTRUNNER"
	}
	switch cmd {
	case CmdCurl:
		return "CURL ERROR"
	case CmdRelease:
		return "RELEASE"
	case CmdDocgen:
		return "DOCGEN ERROR"
	}
	return "lvjb"
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `lvjb - fast, minimal Java build + test tool

Usage:
  lvjb <command> [args]

Available Commands:
  init                       Initializes project structure and config
  initpkg <pkg>              Creates folder tree under src/ for given package
  build [pkg|all] [--re]     Builds Java sources (incrementally unless --re)
  test [--trace file]        Compiles and runs test files (in one runtime, parallel)
  run [MainClass] [-- args]  Runs specified Java class or entry_point from config
  clean                      Deletes all .class files and clears cache
  docgen <Class|pkg>         Generates Javadoc for specified class or package
  curl <url>                 Downloads and registers remote JAR
  release                    Builds JAR from entry_point and config values
  history [-n N]             Lists the last N recorded runs
  help                       Displays this help message

Quirks & Notes:
  - Always compiles default/ (no-package) sources, even if building a package.
  - test/ files are treated as standalone Java programs, no framework needed.
  - Classpath expansion supports wildcards like lib/*
  - Incremental builds use fast xxhash content hashing (not timestamps).
  - A test run where every test fails still exits 0; check [PASSED TESTS].

Example:
  lvjb init
  lvjb initpkg com.example.app
  lvjb build com.example.app
  lvjb run com.example.app.Main
`)
	fmt.Fprintf(w, "\nRuntime backends: %s (default %s)\n", strings.Join(vmhost.Backends(), ", "), vmhost.DefaultBackend)
}
