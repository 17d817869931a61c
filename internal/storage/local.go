package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const localScheme = "file://"

// LocalStore writes attachments under a directory on disk.
type LocalStore struct {
	root string
}

// NewLocalStore returns a store rooted at dir ("./uploads" when empty).
func NewLocalStore(dir string) *LocalStore {
	if strings.TrimSpace(dir) == "" {
		dir = "./uploads"
	}
	return &LocalStore{root: dir}
}

// Put implements Store.
func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", wrap("put", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", wrap("put", key, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", wrap("put", key, err)
	}
	return localScheme + filepath.ToSlash(key), nil
}

// Get implements Store.
func (s *LocalStore) Get(_ context.Context, locator string) ([]byte, error) {
	if !strings.HasPrefix(locator, localScheme) {
		return nil, wrap("get", locator, ErrNotFound)
	}
	key := strings.TrimPrefix(locator, localScheme)
	full, err := s.resolve(key)
	if err != nil {
		return nil, wrap("get", key, err)
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, wrap("get", key, ErrNotFound)
	}
	if err != nil {
		return nil, wrap("get", key, err)
	}
	return data, nil
}

func (s *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("key escapes storage root")
	}
	return filepath.Join(s.root, clean), nil
}
