package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var _ BlobStore = (*DiskStore)(nil)

// DiskStore implements BlobStore on the local filesystem. It backs
// single-node deployments and tests; object-store backends satisfy the same
// interface.
type DiskStore struct {
	baseDir string
	baseURL string
}

// NewDiskStore creates a DiskStore rooted at baseDir. baseURL is the public
// prefix under which the directory is served.
func NewDiskStore(baseDir, baseURL string) (*DiskStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage directory cannot be empty")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &DiskStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// localPath maps a storage key to a path under baseDir, rejecting keys that
// would escape it.
func (s *DiskStore) localPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage key cannot be empty")
	}

	cleaned := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}

	return filepath.Join(s.baseDir, cleaned), nil
}

// Put writes the contents of r under key, replacing any previous object
func (s *DiskStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	path, err := s.localPath(key)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create storage subdirectory: %w", err)
	}

	// Write to a temp file first so a failed write never leaves a partial
	// object under the final key.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write object bytes: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move object into place: %w", err)
	}

	return s.URL(key), nil
}

// Delete removes the object under key; deleting a missing key is not an error
func (s *DiskStore) Delete(ctx context.Context, key string) error {
	path, err := s.localPath(key)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove object: %w", err)
	}

	return nil
}

// Exists reports whether an object is stored under key
func (s *DiskStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.localPath(key)
	if err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}

	return true, nil
}

// URL returns the public address for key
func (s *DiskStore) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// Dir returns the root directory objects are stored under, for static serving.
func (s *DiskStore) Dir() string {
	return s.baseDir
}
