// Package staleness decides which source files changed since they were last
// seen, using a 64-bit content fingerprint per normalized path.
package staleness

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Store answers "has this file changed" against a fingerprint map.
//
// The map is owned by the caller (normally lockfile.Lock.Files) and is
// mutated in place. A Store is not safe for concurrent use.
type Store struct {
	files map[string]string

	// base, when set, makes keys relative to it so the map stays valid
	// when the project directory moves.
	base string
}

// New wraps files. A nil map is replaced by an empty one.
func New(files map[string]string) *Store {
	if files == nil {
		files = map[string]string{}
	}
	return &Store{files: files}
}

// WithBase keys paths under base relative to it and returns s.
func (s *Store) WithBase(base string) *Store {
	s.base = base
	return s
}

// Len reports the number of tracked paths.
func (s *Store) Len() int {
	return len(s.files)
}

// IsStale reports whether path is new or its content differs from the stored
// fingerprint. A stale file's fingerprint is recorded immediately, so a second
// call with unchanged content returns false.
//
// Unreadable files are always stale and leave the store untouched.
func (s *Store) IsStale(path string) bool {
	sum, err := Fingerprint(path)
	if err != nil {
		return true
	}
	key := s.key(path)
	if prev, ok := s.files[key]; ok {
		if n, err := strconv.ParseUint(prev, 10, 64); err == nil && n == sum {
			return false
		}
	}
	s.files[key] = strconv.FormatUint(sum, 10)
	return true
}

// Reset drops every record, including those of deleted files.
func (s *Store) Reset() {
	for k := range s.files {
		delete(s.files, k)
	}
}

// Fingerprint hashes the raw bytes of path.
func Fingerprint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

func (s *Store) key(path string) string {
	if s.base != "" {
		if rel, err := filepath.Rel(s.base, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	return normalize(path)
}

func normalize(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}
