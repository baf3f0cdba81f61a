package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Command names.
const (
	CmdInit    = "init"
	CmdInitPkg = "initpkg"
	CmdBuild   = "build"
	CmdTest    = "test"
	CmdRun     = "run"
	CmdClean   = "clean"
	CmdDocgen  = "docgen"
	CmdCurl    = "curl"
	CmdRelease = "release"
	CmdHistory = "history"
	CmdHelp    = "help"
)

// BuildAll selects the whole source tree for build.
const BuildAll = "all"

// DefaultHistoryLimit is the number of runs `history` lists without -n.
const DefaultHistoryLimit = 10

// Invocation is a parsed command line.
//
// WorkDir is the project root and must be absolute.
type Invocation struct {
	Command string
	WorkDir string

	// Target is the command's positional argument: the package for build
	// and initpkg, the entry point for run, the class or package for docgen,
	// the URL for curl.
	Target string

	// Rebuild disables incremental filtering (build --re).
	Rebuild bool

	// Extra holds the arguments after `--` for run.
	Extra []string

	// TracePath, when set, receives the canonical test trace.
	TracePath string

	HistoryLimit int
}

// InvocationError is a command line that cannot be executed. Tag is the
// diagnostic tag it is reported under.
type InvocationError struct {
	ExitCode int
	Tag      string
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(tag, format string, args ...any) error {
	return &InvocationError{ExitCode: ExitFailure, Tag: tag, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses args (without the program name) for a project
// rooted at workDir. It does not touch the filesystem.
func ParseInvocation(workDir string, args []string) (Invocation, error) {
	workDir = filepath.Clean(workDir)
	if !filepath.IsAbs(workDir) {
		return Invocation{}, invalidInvocationf("lvjb", "working directory must be absolute (got %q)", workDir)
	}
	if len(args) == 0 {
		return Invocation{}, invalidInvocationf("lvjb", "No command provided")
	}

	inv := Invocation{Command: args[0], WorkDir: workDir}
	rest := args[1:]

	switch inv.Command {
	case CmdHelp, "--help", "-h":
		inv.Command = CmdHelp
	case CmdInit, CmdClean, CmdRelease:
	case CmdInitPkg:
		if len(rest) == 0 {
			return Invocation{}, invalidInvocationf("lvjb", "Missing package name for 'initpkg'")
		}
		inv.Target = rest[0]
	case CmdBuild:
		for _, a := range rest {
			if a == "--re" {
				inv.Rebuild = true
				continue
			}
			if inv.Target == "" {
				inv.Target = a
			}
		}
	case CmdTest:
		fs := newFlagSet(CmdTest)
		fs.StringVar(&inv.TracePath, "trace", "", "write the canonical test trace to this file")
		if err := fs.Parse(rest); err != nil {
			return Invocation{}, invalidInvocationf("TESTRUNNER", "%v", err)
		}
		if fs.NArg() != 0 {
			return Invocation{}, invalidInvocationf("TESTRUNNER", "unexpected arguments: %q", strings.Join(fs.Args(), " "))
		}
		if inv.TracePath != "" && !filepath.IsAbs(inv.TracePath) {
			inv.TracePath = filepath.Join(workDir, inv.TracePath)
		}
	case CmdRun:
		parseRun(&inv, rest)
	case CmdDocgen:
		if len(rest) == 0 {
			return Invocation{}, invalidInvocationf("DOCGEN ERROR", "No class specified")
		}
		inv.Target = rest[0]
	case CmdCurl:
		if len(rest) == 0 {
			return Invocation{}, invalidInvocationf("CURL ERROR", "No url specified")
		}
		inv.Target = rest[0]
	case CmdHistory:
		fs := newFlagSet(CmdHistory)
		fs.IntVar(&inv.HistoryLimit, "n", DefaultHistoryLimit, "number of runs to list")
		if err := fs.Parse(rest); err != nil {
			return Invocation{}, invalidInvocationf("lvjb", "%v", err)
		}
		if inv.HistoryLimit < 0 {
			return Invocation{}, invalidInvocationf("lvjb", "-n must be >= 0")
		}
	default:
		return Invocation{}, invalidInvocationf("lvjb", "Unrecognized command: '%s'", inv.Command)
	}
	return inv, nil
}

// parseRun splits `run [entry] [-- args...]`. A leading `--` means the
// configured entry point.
func parseRun(inv *Invocation, rest []string) {
	dash := -1
	for i, a := range rest {
		if a == "--" {
			dash = i
			break
		}
	}
	if len(rest) > 0 && dash != 0 {
		inv.Target = rest[0]
	}
	if dash >= 0 {
		inv.Extra = append([]string{}, rest[dash+1:]...)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// ExitCode extracts the exit code from a ParseInvocation error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr.ExitCode != 0 {
		return invErr.ExitCode
	}
	return ExitFailure
}
