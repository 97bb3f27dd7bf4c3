package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage keeps uploaded source files on local disk so the indexer can load
// them by path.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/uploads"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

// Save writes data under key and returns the absolute path of the file.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close file: %w", err)
	}
	return path, nil
}

// Clear removes every stored file but keeps the base directory.
func (s *Storage) Clear(_ context.Context) error {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read storage dir: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.basePath, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("clear storage: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Storage) BasePath() string {
	return s.basePath
}

func (s *Storage) resolve(key string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + key))
	if name == "/" || name == "." || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.basePath, name), nil
}
