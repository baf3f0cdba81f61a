package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lvzrr/lvjb/internal/config"
	"github.com/lvzrr/lvjb/internal/diag"
	"github.com/lvzrr/lvjb/internal/fetch"
	"github.com/lvzrr/lvjb/internal/fileset"
	"github.com/lvzrr/lvjb/internal/harness"
	"github.com/lvzrr/lvjb/internal/history"
	"github.com/lvzrr/lvjb/internal/lockfile"
	"github.com/lvzrr/lvjb/internal/project"
	"github.com/lvzrr/lvjb/internal/staleness"
	"github.com/lvzrr/lvjb/internal/trace"
	"github.com/lvzrr/lvjb/internal/vmhost"
)

// buildDirs returns the source directories a build of target reads.
//
// No target compiles the no-package directory, incremental or not. "all"
// or a rebuild compiles the whole source tree. A package compiles its own
// directory plus the no-package directory.
func (s *session) buildDirs(target string, rebuild bool) []string {
	src := config.Dir(s.root(), s.cfg.Paths.Src)
	nopkg := filepath.Join(src, s.cfg.Paths.SrcNoPkg)
	switch {
	case target == BuildAll || rebuild:
		return []string{src}
	case target == "":
		return []string{nopkg}
	default:
		return []string{project.PackageDir(s.root(), s.cfg, target), nopkg}
	}
}

func (s *session) build(ctx context.Context, run *history.Run, target string, rebuild bool) error {
	lockPath := lockfile.Path(s.root())
	lock, err := lockfile.Load(lockPath)
	if err != nil {
		return err
	}
	store := staleness.New(lock.Files).WithBase(s.root())
	incremental := s.cfg.Incremental && !rebuild
	if rebuild {
		// The whole tree is about to be fingerprinted again.
		store.Reset()
	}
	ext := s.cfg.SourceExt()

	seen := map[string]bool{}
	var files []string
	for _, dir := range s.buildDirs(target, rebuild) {
		var found []string
		if incremental {
			found, err = fileset.ResolveStale(dir, ext, store)
		} else {
			found, err = fileset.Resolve(dir, ext)
		}
		if err != nil {
			return err
		}
		for _, f := range found {
			if seen[f] {
				continue
			}
			seen[f] = true
			if !incremental {
				// Refresh the fingerprint so the next incremental build starts clean.
				store.IsStale(f)
			}
			files = append(files, f)
		}
	}

	run.Compiled = len(files)
	s.log.Info("build", "target", target, "incremental", incremental, "stale", len(files), "tracked", store.Len())
	// The lock is written even when compilation fails.
	compileErr := s.dispatcher().Compile(ctx, relTo(s.root(), files))
	if err := lock.Write(lockPath); err != nil {
		s.p.Errorf(diag.Fail, "COMPILER", "Error saving cache: %v", err)
	}
	return compileErr
}

func (s *session) test(ctx context.Context, run *history.Run) error {
	testDir := config.Dir(s.root(), s.cfg.Paths.Test)
	ext := s.cfg.SourceExt()
	files, err := fileset.Resolve(testDir, ext)
	if err != nil {
		return err
	}
	run.Compiled = len(files)
	if err := s.dispatcher().Compile(ctx, relTo(s.root(), files)); err != nil {
		return err
	}

	host, err := s.startHost()
	if err != nil {
		return err
	}
	defer host.Close()

	rec := &trace.Recorder{}
	h := &harness.Harness{
		Invoker:     host,
		Parallelism: s.cfg.TestParallelism,
		Root:        testDir,
		Ext:         ext,
		Diag:        s.p,
		Log:         s.log,
		Trace:       rec,
	}
	sum, err := h.RunAll(ctx, files)
	if err != nil {
		return err
	}
	s.summary = sum
	run.Passed, run.Total = len(sum.Passed), sum.Total

	if s.inv.TracePath != "" {
		return writeTrace(s.inv.TracePath, rec.Trace(trace.SuiteID(relTo(testDir, files))))
	}
	return nil
}

func writeTrace(path string, rt trace.RunTrace) error {
	data, err := rt.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (s *session) run(ctx context.Context) error {
	entry := s.inv.Target
	if entry == "" {
		entry = s.cfg.EntryPoint
	}
	if entry == "" {
		return errNoEntryPoint
	}
	args := append(append([]string{}, s.cfg.Args.Runtime...), s.inv.Extra...)

	host, err := s.startHost()
	if err != nil {
		return err
	}
	defer host.Close()

	s.log.Info("run", "entry", entry, "args", len(args), "backend", host.Backend())
	if err := host.Invoke(ctx, entry, args); err != nil {
		return err
	}
	s.p.Errorf(diag.OK, "RUNNER OK", "")
	return nil
}

func (s *session) startHost() (*vmhost.Host, error) {
	return vmhost.Start(s.cfg.Runtime.Backend, vmhost.Options{
		Classpath: fileset.ExpandClasspath(s.root(), s.cfg.Classpath),
		Flags:     s.cfg.Args.JVM,
		Java:      s.cfg.Runtime.Java,
		Dir:       s.root(),
		Runner:    s.opts.Runner,
		Stdout:    s.p.Stdout(),
		Stderr:    s.p.Stderr(),
	})
}

func (s *session) curl(ctx context.Context, url string) error {
	s.p.Errorf(diag.Info, "FETCHING", "%s", url)
	f := fetch.New(s.opts.HTTPClient, config.Dir(s.root(), s.cfg.Paths.Lib))
	name, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}
	s.p.Errorf(diag.OK, "FETCHED", "%s", name)

	lockPath := lockfile.Path(s.root())
	lock, err := lockfile.Load(lockPath)
	if err != nil {
		return err
	}
	lock.AddURLLib(url)
	return lock.Write(lockPath)
}

func (s *session) release(ctx context.Context, run *history.Run) error {
	if err := s.build(ctx, run, BuildAll, false); err != nil {
		return err
	}
	out, err := s.toolchain().Archive(ctx)
	if err != nil {
		return err
	}
	s.p.Errorf(diag.OK, "RELEASE", "Created: %s", out)

	lockPath := lockfile.Path(s.root())
	lock, err := lockfile.Load(lockPath)
	if err != nil {
		return err
	}
	lock.AddRelease(s.cfg.Jar, s.cfg.Version)
	return lock.Write(lockPath)
}

func (s *session) history(ctx context.Context, limit int) error {
	store, err := history.Open(ctx, s.stateDir)
	if err != nil {
		return err
	}
	defer store.Close()
	runs, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		s.p.Errorf(diag.Info, "lvjb", "No runs recorded yet.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "COMMAND", "STARTED", "DURATION", "COMPILED", "PASSED", "STATUS")
	for _, r := range runs {
		passed := "-"
		if r.Command == CmdTest {
			passed = fmt.Sprintf("%d/%d", r.Passed, r.Total)
		}
		status := "ok"
		if !r.OK {
			status = "failed"
		}
		t.Row(
			r.ID[:min(8, len(r.ID))],
			r.Command,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond).String(),
			strconv.Itoa(r.Compiled),
			passed,
			status,
		)
	}
	fmt.Fprintln(s.p.Stdout(), t.Render())
	return nil
}

// relTo rewrites paths under root as root-relative paths.
func relTo(root string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			rel = p
		}
		out[i] = rel
	}
	return out
}
