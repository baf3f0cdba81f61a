package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/lvzrr/lvjb/internal/config"
	"github.com/lvzrr/lvjb/internal/lockfile"
	"github.com/lvzrr/lvjb/internal/proc"
	"github.com/lvzrr/lvjb/internal/project"
	"github.com/lvzrr/lvjb/internal/vmhost"
)

// fakeRunner answers every external tool with a configured exit status.
type fakeRunner struct {
	mu    sync.Mutex
	calls []proc.Command
	exit  map[string]int
}

func (f *fakeRunner) Run(_ context.Context, cmd proc.Command) (*proc.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	return &proc.Result{ExitCode: f.exit[cmd.Path]}, nil
}

func (f *fakeRunner) callsTo(path string) []proc.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []proc.Command
	for _, c := range f.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// fakeBackend is an in-process runtime whose programs are Go functions.
type fakeBackend struct {
	mu       sync.Mutex
	programs map[string]func(args []string) error
	invoked  map[string][]string
}

func (b *fakeBackend) Attach() (vmhost.Context, error) { return fakeContext{b}, nil }
func (b *fakeBackend) Destroy() error                  { return nil }

type fakeContext struct{ b *fakeBackend }

func (c fakeContext) Detach() error { return nil }

func (c fakeContext) CallMain(_ context.Context, class string, args []string) error {
	c.b.mu.Lock()
	c.b.invoked[class] = args
	prog, ok := c.b.programs[class]
	c.b.mu.Unlock()
	if !ok {
		return &vmhost.InvokeError{Kind: vmhost.ErrClassNotFound, Class: class}
	}
	return prog(args)
}

type fixture struct {
	root    string
	runner  *fakeRunner
	backend *fakeBackend
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	name    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		root:    t.TempDir(),
		runner:  &fakeRunner{exit: map[string]int{}},
		backend: &fakeBackend{programs: map[string]func([]string) error{}, invoked: map[string][]string{}},
		name:    "cli-fake-" + t.Name(),
	}
	vmhost.Register(f.name, func(vmhost.Options) (vmhost.Runtime, error) { return f.backend, nil })
	if _, err := project.Init(f.root); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return f
}

func (f *fixture) configure(t *testing.T, edit func(*config.Config)) {
	t.Helper()
	cfg, err := config.Load(f.root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	edit(cfg)
	if err := cfg.Write(f.root); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) run(t *testing.T, args ...string) Result {
	t.Helper()
	return f.runContext(t, context.Background(), args...)
}

func (f *fixture) runContext(t *testing.T, ctx context.Context, args ...string) Result {
	t.Helper()
	f.stdout.Reset()
	f.stderr.Reset()
	res, _ := Run(ctx, f.root, args, Options{
		Stdout: &f.stdout,
		Stderr: &f.stderr,
		Runner: f.runner,
		LookupEnv: func(key string) (string, bool) {
			if key == config.EnvRuntimeBackend {
				return f.name, true
			}
			return "", false
		},
	})
	return res
}

func compiledFiles(cmd proc.Command) []string {
	var out []string
	for _, a := range cmd.Args {
		if strings.HasSuffix(a, ".java") {
			out = append(out, filepath.ToSlash(a))
		}
	}
	sort.Strings(out)
	return out
}

func TestExecute_IncrementalBuild(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/default/A.java", "class A {}")
	f.write(t, "src/default/B.java", "class B {}")

	if res := f.run(t, "build"); res.ExitCode != ExitSuccess {
		t.Fatalf("first build exit %d: %s", res.ExitCode, f.stderr.String())
	}
	calls := f.runner.callsTo("javac")
	if len(calls) != 1 {
		t.Fatalf("expected one compiler call, got %d", len(calls))
	}
	if got := compiledFiles(calls[0]); !equal(got, []string{"src/default/A.java", "src/default/B.java"}) {
		t.Fatalf("first build files: %v", got)
	}
	if calls[0].Dir != f.root {
		t.Fatalf("compiler dir: %q", calls[0].Dir)
	}
	lock, err := lockfile.Load(lockfile.Path(f.root))
	if err != nil || len(lock.Files) != 2 {
		t.Fatalf("lock after build: %+v, %v", lock, err)
	}

	f.run(t, "build")
	if len(f.runner.callsTo("javac")) != 1 {
		t.Fatalf("unchanged tree recompiled")
	}
	if !strings.Contains(f.stderr.String(), "[COMPILER] Nothing to compile") {
		t.Fatalf("expected nothing-to-compile, got %q", f.stderr.String())
	}

	f.write(t, "src/default/A.java", "class A { int x; }")
	f.run(t, "build")
	calls = f.runner.callsTo("javac")
	if len(calls) != 2 || !equal(compiledFiles(calls[1]), []string{"src/default/A.java"}) {
		t.Fatalf("expected only A recompiled, got %v", compiledFiles(calls[len(calls)-1]))
	}

	f.run(t, "build", "--re")
	calls = f.runner.callsTo("javac")
	if len(calls) != 3 || len(compiledFiles(calls[2])) != 2 {
		t.Fatalf("--re should compile the whole tree, got %v", compiledFiles(calls[len(calls)-1]))
	}
}

func TestExecute_BuildPackageIncludesDefault(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/default/A.java", "class A {}")
	f.write(t, "src/com/ex/C.java", "package com.ex; class C {}")
	f.write(t, "src/org/other/D.java", "package org.other; class D {}")

	if res := f.run(t, "build", "com.ex"); res.ExitCode != ExitSuccess {
		t.Fatalf("exit %d: %s", res.ExitCode, f.stderr.String())
	}
	got := compiledFiles(f.runner.callsTo("javac")[0])
	if !equal(got, []string{"src/com/ex/C.java", "src/default/A.java"}) {
		t.Fatalf("package build files: %v", got)
	}

	f.run(t, "build", "all")
	got = compiledFiles(f.runner.callsTo("javac")[1])
	if !equal(got, []string{"src/org/other/D.java"}) {
		t.Fatalf("build all should add only the untouched package, got %v", got)
	}
}

func TestExecute_NonIncrementalBareBuildStaysInDefault(t *testing.T) {
	f := newFixture(t)
	f.configure(t, func(c *config.Config) { c.Incremental = false })
	f.write(t, "src/default/A.java", "class A {}")
	f.write(t, "src/com/ex/C.java", "package com.ex; class C {}")

	for i := 0; i < 2; i++ {
		if res := f.run(t, "build"); res.ExitCode != ExitSuccess {
			t.Fatalf("build %d exit %d: %s", i, res.ExitCode, f.stderr.String())
		}
		calls := f.runner.callsTo("javac")
		if len(calls) != i+1 || !equal(compiledFiles(calls[i]), []string{"src/default/A.java"}) {
			t.Fatalf("build %d should compile only the default dir, unfiltered: %v", i, compiledFiles(calls[len(calls)-1]))
		}
	}

	f.run(t, "build", "com.ex")
	calls := f.runner.callsTo("javac")
	if got := compiledFiles(calls[2]); !equal(got, []string{"src/com/ex/C.java", "src/default/A.java"}) {
		t.Fatalf("package build: %v", got)
	}
}

func TestExecute_RebuildDropsDeletedFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/default/A.java", "class A {}")
	old := f.write(t, "src/default/Old.java", "class Old {}")
	f.run(t, "build")
	if err := os.Remove(old); err != nil {
		t.Fatal(err)
	}

	if res := f.run(t, "build", "--re"); res.ExitCode != ExitSuccess {
		t.Fatalf("rebuild exit %d: %s", res.ExitCode, f.stderr.String())
	}
	lock, err := lockfile.Load(lockfile.Path(f.root))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lock.Files["src/default/A.java"]; !ok || len(lock.Files) != 1 {
		t.Fatalf("lock after rebuild: %v", lock.Files)
	}
}

func TestExecute_CompileFailure(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/default/A.java", "class A {")
	f.runner.exit["javac"] = 1

	res := f.run(t, "build")
	if res.ExitCode != ExitFailure {
		t.Fatalf("expected failure exit, got %d", res.ExitCode)
	}
	if !strings.Contains(f.stderr.String(), "[COMPILER ERROR] Compilation failed with status: 1") {
		t.Fatalf("stderr: %q", f.stderr.String())
	}
	lock, _ := lockfile.Load(lockfile.Path(f.root))
	if len(lock.Files) != 1 {
		t.Fatalf("failed build should still record the file as seen: %v", lock.Files)
	}

	// Unchanged content is not offered again.
	f.runner.exit["javac"] = 0
	if res := f.run(t, "build"); res.ExitCode != ExitSuccess {
		t.Fatalf("second build exit %d", res.ExitCode)
	}
	if len(f.runner.callsTo("javac")) != 1 {
		t.Fatalf("unchanged file recompiled after a failed build")
	}
}

func TestExecute_HookFailure(t *testing.T) {
	f := newFixture(t)
	f.configure(t, func(c *config.Config) { c.PreBuildCmds = []string{"false"} })
	f.runner.exit["sh"] = 1

	if res := f.run(t, "build"); res.ExitCode != ExitFailure {
		t.Fatalf("expected failure exit, got %d", res.ExitCode)
	}
	if !strings.Contains(f.stderr.String(), "[HOOK ERROR] `false` failed with status: 1") {
		t.Fatalf("stderr: %q", f.stderr.String())
	}
}

func TestExecute_TestOneThrows(t *testing.T) {
	f := newFixture(t)
	for _, n := range []string{"T1", "T2", "T3", "T4", "T5"} {
		f.write(t, "test/"+n+".java", "class "+n+" {}")
		f.backend.programs[n] = func([]string) error { return nil }
	}
	f.backend.programs["T3"] = func([]string) error {
		return errors.New("java.lang.AssertionError: expected 2")
	}

	res := f.run(t, "test", "--trace", "trace.json")
	if res.ExitCode != ExitSuccess {
		t.Fatalf("test exit %d: %s", res.ExitCode, f.stderr.String())
	}
	if len(f.runner.callsTo("javac")) != 1 || len(compiledFiles(f.runner.callsTo("javac")[0])) != 5 {
		t.Fatalf("expected every test source compiled once")
	}
	passed := append([]string{}, res.Summary.Passed...)
	sort.Strings(passed)
	if !equal(passed, []string{"T1", "T2", "T4", "T5"}) {
		t.Fatalf("passed: %v", passed)
	}
	if !strings.Contains(f.stderr.String(), "[TEST FAILED] T3: java.lang.AssertionError: expected 2") {
		t.Fatalf("stderr: %q", f.stderr.String())
	}

	data, err := os.ReadFile(filepath.Join(f.root, "trace.json"))
	if err != nil {
		t.Fatalf("trace not written: %v", err)
	}
	var tr struct {
		Suite  string `json:"suite"`
		Events []struct {
			Kind  string `json:"kind"`
			Entry string `json:"entry"`
		} `json:"events"`
	}
	if err := json.Unmarshal(data, &tr); err != nil {
		t.Fatalf("trace json: %v", err)
	}
	if tr.Suite == "" || len(tr.Events) != 10 {
		t.Fatalf("trace: suite %q, %d events", tr.Suite, len(tr.Events))
	}
}

func TestExecute_TestCancelledMidRunFails(t *testing.T) {
	f := newFixture(t)
	f.configure(t, func(c *config.Config) { c.TestParallelism = 1 })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, n := range []string{"T1", "T2"} {
		f.write(t, "test/"+n+".java", "class "+n+" {}")
		f.backend.programs[n] = func([]string) error {
			cancel()
			return nil
		}
	}

	res := f.runContext(t, ctx, "test")
	if res.ExitCode != ExitFailure {
		t.Fatalf("cancelled test run should fail, got exit %d: %s", res.ExitCode, f.stderr.String())
	}
	if !strings.Contains(f.stderr.String(), "[TESTRUNNER] test run cancelled") {
		t.Fatalf("stderr: %q", f.stderr.String())
	}
	if len(f.backend.invoked) != 1 {
		t.Fatalf("expected one test run before cancellation, got %v", f.backend.invoked)
	}
}

func TestExecute_TestNoTests(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, "test")
	if res.ExitCode != ExitSuccess {
		t.Fatalf("exit %d", res.ExitCode)
	}
	if !strings.Contains(f.stderr.String(), "[TESTRUNNER] No tests passed.") {
		t.Fatalf("stderr: %q", f.stderr.String())
	}
}

func TestExecute_RunEntryPointAndArgs(t *testing.T) {
	f := newFixture(t)
	f.configure(t, func(c *config.Config) {
		c.EntryPoint = "com.ex.Main"
		c.Args.Runtime = []string{"a"}
	})
	f.backend.programs["com.ex.Main"] = func([]string) error { return nil }

	if res := f.run(t, "run", "--", "b", "c"); res.ExitCode != ExitSuccess {
		t.Fatalf("exit %d: %s", res.ExitCode, f.stderr.String())
	}
	if got := f.backend.invoked["com.ex.Main"]; !equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("args: %v", got)
	}
	if !strings.Contains(f.stderr.String(), "[RUNNER OK]") {
		t.Fatalf("stderr: %q", f.stderr.String())
	}
}

func TestExecute_RunFailures(t *testing.T) {
	f := newFixture(t)
	if res := f.run(t, "run"); res.ExitCode != ExitFailure || !strings.Contains(f.stderr.String(), "[RUNNER] No entry point") {
		t.Fatalf("no entry point: exit %d, %q", res.ExitCode, f.stderr.String())
	}

	f.backend.programs["Boom"] = func([]string) error {
		return errors.New("java.lang.RuntimeException: boom")
	}
	if res := f.run(t, "run", "Boom"); res.ExitCode != ExitFailure || !strings.Contains(f.stderr.String(), "[EXCEPTION] java.lang.RuntimeException: boom") {
		t.Fatalf("exception: exit %d, %q", res.ExitCode, f.stderr.String())
	}

	if res := f.run(t, "run", "Missing"); res.ExitCode != ExitFailure || !strings.Contains(f.stderr.String(), "[RUNNER] Missing: class not found") {
		t.Fatalf("missing class: exit %d, %q", res.ExitCode, f.stderr.String())
	}
}

func TestExecute_NotAProject(t *testing.T) {
	root := t.TempDir()
	var stderr bytes.Buffer
	res, err := Run(context.Background(), root, []string{"build"}, Options{Stdout: &bytes.Buffer{}, Stderr: &stderr})
	if !errors.Is(err, config.ErrNotProject) || res.ExitCode != ExitFailure {
		t.Fatalf("expected ErrNotProject, got %v (exit %d)", err, res.ExitCode)
	}
	if !strings.HasPrefix(stderr.String(), "[lvjb] not a lvjb directory") {
		t.Fatalf("stderr: %q", stderr.String())
	}
}

func TestExecute_CleanResetsCache(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/default/A.java", "class A {}")
	f.write(t, "bin/A.class", "cafebabe")
	f.run(t, "build")

	if res := f.run(t, "clean"); res.ExitCode != ExitSuccess {
		t.Fatalf("clean exit %d", res.ExitCode)
	}
	if _, err := os.Stat(filepath.Join(f.root, "bin", "A.class")); !os.IsNotExist(err) {
		t.Fatalf("class file survived clean")
	}
	f.run(t, "build")
	if len(f.runner.callsTo("javac")) != 2 {
		t.Fatalf("expected full rebuild after clean")
	}
}

func TestExecute_ReleaseRecordsJar(t *testing.T) {
	f := newFixture(t)
	f.configure(t, func(c *config.Config) {
		c.EntryPoint = "Main"
		c.Jar = "app"
	})
	f.write(t, "src/default/Main.java", "class Main {}")

	if res := f.run(t, "release"); res.ExitCode != ExitSuccess {
		t.Fatalf("release exit %d: %s", res.ExitCode, f.stderr.String())
	}
	jar := f.runner.callsTo("jar")
	if len(jar) != 1 || jar[0].Args[1] != filepath.Join("releases", "app-0.0.1.jar") {
		t.Fatalf("jar calls: %+v", jar)
	}
	if !strings.Contains(f.stderr.String(), "[RELEASE] Created: "+filepath.Join("releases", "app-0.0.1.jar")) {
		t.Fatalf("stderr: %q", f.stderr.String())
	}
	lock, _ := lockfile.Load(lockfile.Path(f.root))
	if len(lock.Releases) != 1 || lock.Releases[0].Jar != "app" || lock.Releases[0].Version != "0.0.1" {
		t.Fatalf("releases: %+v", lock.Releases)
	}
}

func TestExecute_ReleaseWithoutEntryPoint(t *testing.T) {
	f := newFixture(t)
	if res := f.run(t, "release"); res.ExitCode != ExitFailure {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(f.stderr.String(), "[RELEASE] No entry point set in config") {
		t.Fatalf("stderr: %q", f.stderr.String())
	}
}

func TestExecute_CurlRecordsLibrary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jar"))
	}))
	defer srv.Close()

	f := newFixture(t)
	url := srv.URL + "/libs/gson-2.10.jar"
	if res := f.run(t, "curl", url); res.ExitCode != ExitSuccess {
		t.Fatalf("curl exit %d: %s", res.ExitCode, f.stderr.String())
	}
	if _, err := os.Stat(filepath.Join(f.root, "lib", "gson-2.10.jar")); err != nil {
		t.Fatalf("library not saved: %v", err)
	}
	lock, _ := lockfile.Load(lockfile.Path(f.root))
	if len(lock.URLLibs) != 1 || lock.URLLibs[0] != url {
		t.Fatalf("url_libs: %v", lock.URLLibs)
	}
	if !strings.Contains(f.stderr.String(), "[FETCHED] gson-2.10.jar") {
		t.Fatalf("stderr: %q", f.stderr.String())
	}
}

func TestExecute_HistoryListsRuns(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/default/A.java", "class A {}")
	f.run(t, "build")
	f.run(t, "test")

	if res := f.run(t, "history", "-n", "5"); res.ExitCode != ExitSuccess {
		t.Fatalf("history exit %d: %s", res.ExitCode, f.stderr.String())
	}
	out := f.stdout.String()
	if !strings.Contains(out, "build") || !strings.Contains(out, "test") || !strings.Contains(out, "0/0") {
		t.Fatalf("history output: %q", out)
	}
}

func TestExecute_HelpAndInitNeedNoConfig(t *testing.T) {
	root := t.TempDir()
	var stdout, stderr bytes.Buffer
	opts := Options{Stdout: &stdout, Stderr: &stderr}
	if res, _ := Run(context.Background(), root, []string{"--help"}, opts); res.ExitCode != ExitSuccess {
		t.Fatalf("help exit %d", res.ExitCode)
	}
	if !strings.Contains(stdout.String(), "Available Commands:") {
		t.Fatalf("help text: %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), "Runtime backends: ") || !strings.Contains(stdout.String(), "jvm") {
		t.Fatalf("help should list runtime backends: %q", stdout.String())
	}
	if res, _ := Run(context.Background(), root, []string{"init"}, opts); res.ExitCode != ExitSuccess {
		t.Fatalf("init exit %d: %s", res.ExitCode, stderr.String())
	}
	if !config.Exists(root) {
		t.Fatalf("init did not write config")
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
