// Package fileset discovers source files under a directory tree and maps
// between file paths, class names and classpath entries.
package fileset

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Resolve walks root recursively and returns every file whose name ends
// with ext. Symbolic links are followed, including a linked root; link
// cycles are not detected. A missing root yields an empty result. Order
// follows the host directory iteration and must not be relied on.
func Resolve(root, ext string) ([]string, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if strings.HasSuffix(info.Name(), ext) {
			return []string{root}, nil
		}
		return nil, nil
	}
	var out []string
	if err := walk(root, ext, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// readDir is swapped in tests.
var readDir = os.ReadDir

func walk(dir, ext string, out *[]string) error {
	entries, err := readDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		isDir := e.IsDir()
		if e.Type()&fs.ModeSymlink != 0 {
			// A dangling link is kept as a file, like any other non-directory.
			if target, err := os.Stat(path); err == nil {
				isDir = target.IsDir()
			}
		}
		if !isDir {
			if strings.HasSuffix(e.Name(), ext) {
				*out = append(*out, path)
			}
			continue
		}
		if err := walk(path, ext, out); err != nil {
			// Removed between listing and descent.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// StaleChecker is the part of the staleness store the resolver needs.
type StaleChecker interface {
	IsStale(path string) bool
}

// ResolveStale resolves root and keeps only the files store reports as stale.
// Each file is checked once, in discovery order.
func ResolveStale(root, ext string, store StaleChecker) ([]string, error) {
	all, err := Resolve(root, ext)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, f := range all {
		if store.IsStale(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// EntryPointName maps a source or compiled file under root to its fully
// qualified class name: the path relative to root without ext, with path
// separators replaced by dots.
func EntryPointName(root, file, ext string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &os.PathError{Op: "entrypoint", Path: file, Err: errors.New("not under " + root)}
	}
	rel = strings.TrimSuffix(rel, ext)
	rel = filepath.ToSlash(rel)
	return strings.ReplaceAll(rel, "/", "."), nil
}

// ClassToPath turns a dotted package or class name into a relative path.
func ClassToPath(name string) string {
	return filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))
}

// ExpandClasspath joins classpath entries with ':'. An entry ending in "/*"
// expands to the .jar files directly inside that directory; unreadable
// directories contribute nothing. Relative entries resolve against root but
// are emitted as written.
func ExpandClasspath(root string, entries []string) string {
	var out []string
	for _, e := range entries {
		if !strings.HasSuffix(e, "/*") {
			out = append(out, e)
			continue
		}
		dir := strings.TrimSuffix(e, "/*")
		abs := dir
		if !filepath.IsAbs(dir) {
			abs = filepath.Join(root, dir)
		}
		items, err := os.ReadDir(abs)
		if err != nil {
			continue
		}
		for _, it := range items {
			if !it.IsDir() && filepath.Ext(it.Name()) == ".jar" {
				out = append(out, filepath.Join(dir, it.Name()))
			}
		}
	}
	return strings.Join(out, ":")
}
