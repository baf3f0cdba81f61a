// Package config loads and writes the project configuration file (lvjb.yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the project configuration file at the project root.
	FileName = "lvjb.yaml"

	// StateDir holds tool-private state (logs, run history).
	StateDir = ".lvjb"
)

// ErrNotProject is returned by Load when the directory has no config file.
var ErrNotProject = errors.New("not a lvjb directory, run 'lvjb init' to initialize it, or run --help for more info")

// Paths names the project directories, relative to the project root.
type Paths struct {
	Src      string `yaml:"src"`
	SrcNoPkg string `yaml:"src_nopkg"`
	Bin      string `yaml:"bin"`
	Lib      string `yaml:"lib"`
	Test     string `yaml:"test"`
	Docs     string `yaml:"docs"`
	Releases string `yaml:"releases"`
}

// Args holds extra arguments passed through to external tools.
type Args struct {
	// Compilation is appended after the source files on the compiler command line.
	Compilation []string `yaml:"compilation,omitempty"`

	// Runtime is passed to the entry point of `run`.
	Runtime []string `yaml:"runtime,omitempty"`

	// JVM holds managed runtime engine flags (e.g. -Xmx512m).
	JVM []string `yaml:"jvm,omitempty"`
}

// Runtime selects and configures the managed runtime backend.
type Runtime struct {
	// Backend is a registered backend name ("jvm", "exec", "jni"). Empty picks the default.
	Backend string `yaml:"backend,omitempty"`

	// Java is the launcher used by the jvm and exec backends.
	Java string `yaml:"java,omitempty"`
}

// Config is the parsed lvjb.yaml.
type Config struct {
	Jar             string   `yaml:"jar"`
	Compiler        string   `yaml:"compiler"`
	EntryPoint      string   `yaml:"entry_point,omitempty"`
	SrcExt          string   `yaml:"src_ext"`
	Classpath       []string `yaml:"classpath"`
	Incremental     bool     `yaml:"incremental"`
	Paths           Paths    `yaml:"paths"`
	Args            Args     `yaml:"args"`
	PreBuildCmds    []string `yaml:"pre_build_cmds"`
	PostBuildCmds   []string `yaml:"post_build_cmds"`
	LogLevel        int      `yaml:"log_level"`
	Version         string   `yaml:"version"`
	Runtime         Runtime  `yaml:"runtime"`
	TestParallelism int      `yaml:"test_parallelism"`
}

// Default returns the configuration written by `lvjb init`.
func Default() *Config {
	return &Config{
		Jar:         "out",
		Compiler:    "javac",
		SrcExt:      "java",
		Classpath:   []string{"bin", "lib/*"},
		Incremental: true,
		Paths: Paths{
			Src:      "src",
			SrcNoPkg: "default",
			Bin:      "bin",
			Lib:      "lib",
			Test:     "test",
			Docs:     "docs",
			Releases: "releases",
		},
		PreBuildCmds:  []string{},
		PostBuildCmds: []string{},
		Version:       "0.0.1",
		Runtime:       Runtime{Java: "java"},
	}
}

// Path returns the config file location for a project root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads lvjb.yaml from root. Keys absent from the file keep their
// default values. Returns ErrNotProject if the file does not exist.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotProject
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data, Path(root))
}

// Parse decodes config bytes over the defaults.
// The path argument is used only for error messages.
func Parse(data []byte, path string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate(path string) error {
	if strings.TrimSpace(c.Compiler) == "" {
		return fmt.Errorf("%s: compiler is required", path)
	}
	if strings.TrimSpace(c.SrcExt) == "" {
		return fmt.Errorf("%s: src_ext is required", path)
	}
	if strings.TrimSpace(c.Paths.Src) == "" || strings.TrimSpace(c.Paths.Bin) == "" {
		return fmt.Errorf("%s: paths.src and paths.bin are required", path)
	}
	if c.LogLevel < 0 {
		return fmt.Errorf("%s: log_level must be >= 0", path)
	}
	if c.TestParallelism < 0 {
		return fmt.Errorf("%s: test_parallelism must be >= 0", path)
	}
	return nil
}

// Write serializes the config to root/lvjb.yaml.
func (c *Config) Write(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(Path(root), data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Exists reports whether root already has a config file.
func Exists(root string) bool {
	_, err := os.Stat(Path(root))
	return err == nil
}

// SourceExt returns the source extension with a leading dot (".java").
func (c *Config) SourceExt() string {
	return "." + strings.TrimPrefix(c.SrcExt, ".")
}

// Dir resolves a configured project directory against root.
func Dir(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
