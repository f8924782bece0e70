package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"storygen-backend/internal/shared/storage/object"
)

// Store keeps objects as files below a root directory. Content types are not persisted.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{root: dir}
}

func (s *Store) path(key string) (string, error) {
	if err := object.CheckKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Write replaces the file atomically via a temp file and rename.
func (s *Store) Write(ctx context.Context, key string, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("local store mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return fmt.Errorf("local store temp: %w", err)
	}
	_, werr := tmp.Write(body)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("local store write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("local store commit %s: %w", key, err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := s.path(key)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, object.ErrNotFound
	}
	return body, err
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local store remove %s: %w", key, err)
	}
	return nil
}

var _ object.Blobs = (*Store)(nil)
