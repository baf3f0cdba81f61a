// Package toolchain drives the JDK side tools used by release and docgen:
// the jar archiver and the javadoc generator.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lvzrr/lvjb/internal/config"
	"github.com/lvzrr/lvjb/internal/diag"
	"github.com/lvzrr/lvjb/internal/fileset"
	"github.com/lvzrr/lvjb/internal/proc"
)

const (
	DefaultJar     = "jar"
	DefaultJavadoc = "javadoc"
)

var (
	// ErrNoEntryPoint: release needs entry_point to write the manifest.
	ErrNoEntryPoint = errors.New("No entry point set in config")

	// ErrNoSources: the docgen target matched no source files.
	ErrNoSources = errors.New("no source files found")
)

// ToolError reports a side tool that failed or could not be started.
type ToolError struct {
	Tool   string
	Status int
	Err    error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed to execute: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s command failed with status: %d", e.Tool, e.Status)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Toolchain runs jar and javadoc for one project.
type Toolchain struct {
	Runner proc.Runner
	Config *config.Config
	Root   string

	// Jar and Javadoc name the tools; empty means the PATH defaults.
	Jar     string
	Javadoc string

	Diag *diag.Printer
	Log  *slog.Logger
}

func New(r proc.Runner, cfg *config.Config, root string) *Toolchain {
	return &Toolchain{
		Runner:  r,
		Config:  cfg,
		Root:    root,
		Jar:     DefaultJar,
		Javadoc: DefaultJavadoc,
		Diag:    diag.Discard(),
		Log:     diag.NopLogger(),
	}
}

// ReleasePath is releases/<jar>-<version>.jar, relative to the root.
func (t *Toolchain) ReleasePath() string {
	return filepath.Join(t.Config.Paths.Releases, fmt.Sprintf("%s-%s.jar", t.Config.Jar, t.Config.Version))
}

// Manifest returns the manifest body for the configured entry point.
func Manifest(entry string) string {
	return fmt.Sprintf("Main-Class: %s\n", entry)
}

// Archive packs the bin directory into the release jar with a manifest
// naming the entry point. It returns the jar path relative to the root.
func (t *Toolchain) Archive(ctx context.Context) (string, error) {
	if t.Config.EntryPoint == "" {
		return "", ErrNoEntryPoint
	}

	stateDir := filepath.Join(t.Root, config.StateDir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", err
	}
	mf, err := os.CreateTemp(stateDir, "MANIFEST.*.MF")
	if err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	defer os.Remove(mf.Name())
	if _, err := mf.WriteString(Manifest(t.Config.EntryPoint)); err != nil {
		_ = mf.Close()
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	if err := mf.Close(); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}

	out := t.ReleasePath()
	if err := os.MkdirAll(config.Dir(t.Root, t.Config.Paths.Releases), 0o755); err != nil {
		return "", err
	}

	cmd := proc.Command{
		Path:   toolName(t.Jar, DefaultJar),
		Args:   []string{"cfm", out, mf.Name(), "-C", t.Config.Paths.Bin, "."},
		Dir:    t.Root,
		Stdout: t.Diag.Stdout(),
		Stderr: t.Diag.Stderr(),
	}
	t.Log.Info("archive", "jar", out, "main", t.Config.EntryPoint)
	if err := t.run(ctx, cmd); err != nil {
		return "", err
	}
	return out, nil
}

// DocSources returns the files javadoc should read for target, a dotted
// package or class name under src. A package directory wins over a class
// file of the same name.
func (t *Toolchain) DocSources(target string) ([]string, error) {
	src := config.Dir(t.Root, t.Config.Paths.Src)
	base := filepath.Join(src, fileset.ClassToPath(target))

	var files []string
	if info, err := os.Stat(base); err == nil && info.IsDir() {
		all, err := fileset.Resolve(base, t.Config.SourceExt())
		if err != nil {
			return nil, err
		}
		files = all
	} else if _, err := os.Stat(base + t.Config.SourceExt()); err == nil {
		files = []string{base + t.Config.SourceExt()}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoSources, target)
	}
	return files, nil
}

// Docgen runs `javadoc -d <docs> -cp <classpath> <files>` for target.
func (t *Toolchain) Docgen(ctx context.Context, target string) error {
	files, err := t.DocSources(target)
	if err != nil {
		return err
	}
	args := []string{"-d", t.Config.Paths.Docs, "-cp", fileset.ExpandClasspath(t.Root, t.Config.Classpath)}
	args = append(args, files...)
	cmd := proc.Command{
		Path:   toolName(t.Javadoc, DefaultJavadoc),
		Args:   args,
		Dir:    t.Root,
		Stdout: t.Diag.Stdout(),
		Stderr: t.Diag.Stderr(),
	}
	t.Log.Info("docgen", "target", target, "files", len(files))
	return t.run(ctx, cmd)
}

func (t *Toolchain) run(ctx context.Context, cmd proc.Command) error {
	res, err := t.Runner.Run(ctx, cmd)
	if err != nil {
		return &ToolError{Tool: cmd.Path, Err: err}
	}
	if !res.Success() {
		t.Log.Warn("tool failed", "tool", cmd.Path, "status", res.ExitCode)
		return &ToolError{Tool: cmd.Path, Status: res.ExitCode}
	}
	return nil
}

func toolName(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
