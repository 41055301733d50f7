// Package localstore is a small file-backed key-value store. It plays the
// role a browser's localStorage plays for the frontend: a synchronous,
// same-device store the document layer can fall back to when the remote
// backend is unreachable.
package localstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists one file per key under a single directory.
type Store struct {
	dir string
}

// New creates the backing directory if needed and returns a Store over it.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("localstore: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localstore: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Get returns the value stored at key. The second return reports whether the
// key exists; a missing key is not an error.
func (s *Store) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localstore: read %q: %w", key, err)
	}
	return data, true, nil
}

// Set writes the value atomically via a temp file and rename, so a crash
// mid-write never leaves a half-written blob behind.
func (s *Store) Set(key string, value []byte) error {
	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("localstore: write %q: %w", key, err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("localstore: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("localstore: write %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("localstore: write %q: %w", key, err)
	}
	return nil
}

// Delete removes the key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("localstore: delete %q: %w", key, err)
	}
	return nil
}

// path maps a key to a file name. Keys are caller-controlled identifiers
// (they may embed user ids), so anything outside a safe set is escaped.
func (s *Store) path(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "%%%04x", r)
		}
	}
	return filepath.Join(s.dir, b.String()+".json")
}
