// Package project creates and resets the on-disk layout of a lvjb project.
package project

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lvzrr/lvjb/internal/config"
	"github.com/lvzrr/lvjb/internal/fileset"
	"github.com/lvzrr/lvjb/internal/lockfile"
)

// Init writes a default config and an empty lock (only if absent) and
// creates the project directories. An existing config is left untouched
// and its paths are used for the directories.
func Init(root string) (*config.Config, error) {
	cfg := config.Default()
	if config.Exists(root) {
		loaded, err := config.Load(root)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if err := cfg.Write(root); err != nil {
		return nil, err
	}

	lockPath := lockfile.Path(root)
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		if err := lockfile.New().Write(lockPath); err != nil {
			return nil, err
		}
	}

	dirs := []string{
		cfg.Paths.Src,
		cfg.Paths.Bin,
		filepath.Join(cfg.Paths.Src, cfg.Paths.SrcNoPkg),
		cfg.Paths.Test,
		cfg.Paths.Lib,
		cfg.Paths.Docs,
		cfg.Paths.Releases,
	}
	for _, d := range dirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		if err := os.MkdirAll(config.Dir(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return cfg, nil
}

// PackageDir returns src/<pkg as path> for a dotted package name.
func PackageDir(root string, cfg *config.Config, pkg string) string {
	return filepath.Join(config.Dir(root, cfg.Paths.Src), fileset.ClassToPath(pkg))
}

// InitPackage creates the source directory for a dotted package name.
func InitPackage(root string, cfg *config.Config, pkg string) (string, error) {
	pkg = strings.Trim(strings.TrimSpace(pkg), ".")
	if pkg == "" {
		return "", fmt.Errorf("invalid package name %q", pkg)
	}
	dir := PackageDir(root, cfg, pkg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Clean deletes every compiled class under the bin directory and removes
// the lock file, so the next build sees every source as stale.
// It returns the number of class files removed.
func Clean(root string, cfg *config.Config) (int, error) {
	bin := config.Dir(root, cfg.Paths.Bin)
	removed := 0
	err := filepath.WalkDir(bin, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == bin {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".class" {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cleaning %s: %w", cfg.Paths.Bin, err)
	}
	if err := lockfile.Remove(lockfile.Path(root)); err != nil {
		return removed, err
	}
	return removed, nil
}
