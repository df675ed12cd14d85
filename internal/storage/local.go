package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Compile-time check that LocalArchiver implements Archiver.
var _ Archiver = (*LocalArchiver)(nil)

// LocalArchiver implements Archiver using local disk. Suitable for single
// node deployments and development; swap for S3Archiver in production.
type LocalArchiver struct {
	dir string
}

// NewLocalArchiver creates a LocalArchiver rooted at dir.
// If dir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalArchiver(dir string) (*LocalArchiver, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "genrelay")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	return &LocalArchiver{dir: dir}, nil
}

// Dir returns the archive directory path.
func (a *LocalArchiver) Dir() string {
	return a.dir
}

// Archive writes the artifact to disk and returns a file URL.
func (a *LocalArchiver) Archive(ctx context.Context, key string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path := filepath.Join(a.dir, filepath.Base(key))

	f, err := os.Create(path) // #nosec G304 - path is derived from a generated job id
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write archive file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close archive file: %w", err)
	}

	return "file://" + path, nil
}
