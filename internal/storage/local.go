package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes objects below a directory and serves them from BaseURL.
// It backs development setups and tests.
type LocalStorage struct {
	root    string
	baseURL string
}

// NewLocalStorage creates the root directory when missing.
func NewLocalStorage(root, baseURL string) (*LocalStorage, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: local root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &LocalStorage{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory objects are written to.
func (s *LocalStorage) Root() string {
	return s.root
}

// Put writes the object and returns its public URL.
func (s *LocalStorage) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("storage: create directory: %w", err)
	}

	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("storage: create object: %w", err)
	}
	if _, err := io.Copy(file, body); err != nil {
		_ = file.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("storage: write object: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("storage: close object: %w", err)
	}

	return s.baseURL + "/" + key, nil
}

// Delete removes the object. Missing objects are not an error.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}
