package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore publishes artifacts to a directory tree. It serves local
// development and tests; folder IDs are absolute directory paths and
// URLs use the file scheme.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local artifact store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, wrapErr("init", abs, err)
	}
	return &LocalStore{root: abs}, nil
}

// EnsureFolder creates (or reuses) the named directory. parentID may be
// empty for the store root, or a path previously returned by this method.
func (l *LocalStore) EnsureFolder(_ context.Context, parentID, name string) (*Folder, error) {
	base := l.root
	if parentID != "" {
		base = parentID
	}
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr("ensure_folder", dir, err)
	}
	return &Folder{ID: dir, URL: "file://" + dir}, nil
}

// Upload copies one artifact into the folder.
func (l *LocalStore) Upload(_ context.Context, folder *Folder, name, _ string, r io.Reader) (*Artifact, error) {
	dest := filepath.Join(folder.ID, name)
	f, err := os.Create(dest)
	if err != nil {
		return nil, wrapErr("upload", dest, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return nil, wrapErr("upload", dest, err)
	}
	if err := f.Close(); err != nil {
		return nil, wrapErr("upload", dest, err)
	}
	return &Artifact{ID: dest, URL: "file://" + dest}, nil
}
