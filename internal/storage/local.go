package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore writes artifacts into a directory on the local filesystem
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed and returns a store rooted there
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save writes data atomically and returns the file name as its location
func (s *LocalStore) Save(_ context.Context, name string, data []byte) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}

	return filepath.Base(path), nil
}

// Open returns a reader for the artifact at location
func (s *LocalStore) Open(_ context.Context, location string) (io.ReadCloser, error) {
	path, err := s.path(location)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return f, nil
}

// Delete removes the artifact at location. Missing artifacts are not an error.
func (s *LocalStore) Delete(_ context.Context, location string) error {
	path, err := s.path(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// path confines location to the store directory
func (s *LocalStore) path(location string) (string, error) {
	name := filepath.Base(filepath.Clean(location))
	if name == "." || name == string(filepath.Separator) || name == ".." {
		return "", fmt.Errorf("invalid artifact location: %q", location)
	}
	return filepath.Join(s.dir, name), nil
}
