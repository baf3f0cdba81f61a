// Package lockfile persists the project cache (lvjb.lock): file fingerprints,
// release history and fetched library URLs. The whole document is loaded once
// and written back as a unit.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the lock file at the project root.
const FileName = "lvjb.lock"

// Release records one archive produced by `lvjb release`.
type Release struct {
	Jar     string `yaml:"jar"`
	Version string `yaml:"version"`
}

// Lock is the persisted cache document.
//
// Releases may contain nil slots; they are preserved as YAML nulls.
type Lock struct {
	Files    map[string]string `yaml:"files"`
	Releases []*Release        `yaml:"releases"`
	URLLibs  []string          `yaml:"url_libs"`
}

// New returns an empty lock.
func New() *Lock {
	return &Lock{
		Files:    map[string]string{},
		Releases: []*Release{},
		URLLibs:  []string{},
	}
}

// Path returns the lock file location for a project root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads the lock file. A missing file yields an empty lock.
func Load(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	l := New()
	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if l.Files == nil {
		l.Files = map[string]string{}
	}
	return l, nil
}

// Write replaces the lock file atomically.
func (l *Lock) Write(path string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("encoding lock file: %w", err)
	}
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

// AddRelease appends a release record.
func (l *Lock) AddRelease(jar, version string) {
	l.Releases = append(l.Releases, &Release{Jar: jar, Version: version})
}

// AddURLLib records a fetched library URL.
func (l *Lock) AddURLLib(url string) {
	l.URLLibs = append(l.URLLibs, url)
}

// Remove deletes the lock file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
