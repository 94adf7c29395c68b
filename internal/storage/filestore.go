package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// BlobStore is the document/storage layer the core consumes. Paths returned
// by Store are opaque to callers and stable across restarts.
type BlobStore interface {
	Store(data []byte) (path string, err error)
	Read(path string) ([]byte, error)
	Exists(path string) bool
}

// FileStore is a filesystem-backed BlobStore rooted at a base directory.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Store writes data under a random two-level path and returns the relative
// path. The fan-out keeps directories small.
func (s *FileStore) Store(data []byte) (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	name := hex.EncodeToString(buf[:])
	rel := filepath.Join(name[:2], name[2:])

	dir := filepath.Join(s.root, name[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.root, rel), data, 0o644); err != nil {
		return "", err
	}
	return rel, nil
}

// Read returns the stored bytes for a path previously returned by Store.
func (s *FileStore) Read(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.root, path))
}

// Exists reports whether the path holds stored bytes.
func (s *FileStore) Exists(path string) bool {
	info, err := os.Stat(filepath.Join(s.root, path))
	return err == nil && !info.IsDir()
}
