// Package storage persists installed binary assets under a root directory.
//
// Installs are atomic: bytes land in a temp file first and are renamed into
// place, so a crash mid-install never leaves a torn asset visible under the
// installed name.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store is a directory of installed assets addressed by file name.
type Store struct {
	root string
}

// New returns a store rooted at dir. The directory is created lazily on the
// first install.
func New(root string) *Store {
	return &Store{root: root}
}

// Install writes data under name and returns the installed path, replacing
// any previous content.
func (s *Store) Install(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("storage: create root %q: %w", s.root, err)
	}

	dest := filepath.Join(s.root, name)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %q: %w", name, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("storage: install %q: %w", name, err)
	}
	return dest, nil
}

// Remove deletes name from the store. Removing a file that does not exist is
// not an error.
func (s *Store) Remove(name string) error {
	err := os.Remove(filepath.Join(s.root, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %q: %w", name, err)
	}
	return nil
}

// Path returns where name lives under the root, whether or not it is
// installed.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}
