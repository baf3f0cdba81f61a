package cli

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseInvocation_Commands(t *testing.T) {
	wd := t.TempDir()
	cases := []struct {
		name string
		args []string
		want Invocation
	}{
		{"help", []string{"--help"}, Invocation{Command: CmdHelp}},
		{"init", []string{"init"}, Invocation{Command: CmdInit}},
		{"initpkg", []string{"initpkg", "com.ex"}, Invocation{Command: CmdInitPkg, Target: "com.ex"}},
		{"build default", []string{"build"}, Invocation{Command: CmdBuild}},
		{"build pkg", []string{"build", "com.ex"}, Invocation{Command: CmdBuild, Target: "com.ex"}},
		{"build re first", []string{"build", "--re", "com.ex"}, Invocation{Command: CmdBuild, Target: "com.ex", Rebuild: true}},
		{"build all re", []string{"build", "all", "--re"}, Invocation{Command: CmdBuild, Target: BuildAll, Rebuild: true}},
		{"test", []string{"test"}, Invocation{Command: CmdTest}},
		{"run entry", []string{"run", "com.ex.Main"}, Invocation{Command: CmdRun, Target: "com.ex.Main"}},
		{"run entry args", []string{"run", "Main", "--", "a", "b"}, Invocation{Command: CmdRun, Target: "Main", Extra: []string{"a", "b"}}},
		{"run dashdash", []string{"run", "--", "x"}, Invocation{Command: CmdRun, Extra: []string{"x"}}},
		{"clean", []string{"clean"}, Invocation{Command: CmdClean}},
		{"docgen", []string{"docgen", "com.ex"}, Invocation{Command: CmdDocgen, Target: "com.ex"}},
		{"curl", []string{"curl", "https://h/x.jar"}, Invocation{Command: CmdCurl, Target: "https://h/x.jar"}},
		{"release", []string{"release"}, Invocation{Command: CmdRelease}},
		{"history", []string{"history", "-n", "3"}, Invocation{Command: CmdHistory, HistoryLimit: 3}},
		{"history default", []string{"history"}, Invocation{Command: CmdHistory, HistoryLimit: DefaultHistoryLimit}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseInvocation(wd, tc.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.want.WorkDir = wd
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v\nwant %#v", got, tc.want)
			}
		})
	}
}

func TestParseInvocation_TracePathResolvesUnderWorkDir(t *testing.T) {
	wd := t.TempDir()
	inv, err := ParseInvocation(wd, []string{"test", "--trace", "out/trace.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.TracePath != filepath.Join(wd, "out", "trace.json") {
		t.Fatalf("trace path: %q", inv.TracePath)
	}
}

func TestParseInvocation_Errors(t *testing.T) {
	wd := t.TempDir()
	cases := []struct {
		args    []string
		tag     string
		message string
	}{
		{nil, "lvjb", "No command provided"},
		{[]string{"frobnicate"}, "lvjb", "Unrecognized command: 'frobnicate'"},
		{[]string{"initpkg"}, "lvjb", "Missing package name for 'initpkg'"},
		{[]string{"docgen"}, "DOCGEN ERROR", "No class specified"},
		{[]string{"curl"}, "CURL ERROR", "No url specified"},
		{[]string{"test", "extra"}, "TESTRUNNER", `unexpected arguments: "extra"`},
		{[]string{"history", "-n", "-1"}, "lvjb", "-n must be >= 0"},
	}
	for _, tc := range cases {
		_, err := ParseInvocation(wd, tc.args)
		var invErr *InvocationError
		if !errors.As(err, &invErr) {
			t.Fatalf("%v: expected InvocationError, got %v", tc.args, err)
		}
		if invErr.Tag != tc.tag || invErr.Message != tc.message {
			t.Fatalf("%v: got [%s] %q", tc.args, invErr.Tag, invErr.Message)
		}
		if ExitCode(err) != ExitFailure {
			t.Fatalf("%v: exit code %d", tc.args, ExitCode(err))
		}
	}
}

func TestParseInvocation_WorkDirMustBeAbsolute(t *testing.T) {
	_, err := ParseInvocation("relative", []string{"build"})
	if ExitCode(err) != ExitFailure {
		t.Fatalf("expected failure for relative workdir, got %v", err)
	}
	if ExitCode(nil) != ExitSuccess {
		t.Fatalf("nil error should map to success")
	}
}
