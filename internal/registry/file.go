package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/plumedb/plume/pkg/types"
)

// FileStore persists the registry snapshot as a single msgpack file.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed registry store. A relative path is
// resolved against repoPath; an absolute path is used as-is.
func NewFileStore(path, repoPath string) *FileStore {
	if !filepath.IsAbs(path) && repoPath != "" {
		path = filepath.Join(repoPath, path)
	}
	return &FileStore{path: path}
}

// Path returns the resolved registry file path.
func (s *FileStore) Path() string {
	return s.path
}

// GetSnapshot loads the registry file. A missing file is reported as
// types.ErrStoreNotFound so callers can tell "never applied" from "corrupt".
func (s *FileStore) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("registry: not found at %q: %w (have you run \"plume apply\"?)",
			s.path, types.ErrStoreNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", s.path, err)
	}

	var snap Snapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("registry: unmarshal %s: %w", s.path, err)
	}
	return &snap, nil
}

// UpdateSnapshot stamps a fresh version and writes the file, creating the
// containing directory on demand.
func (s *FileStore) UpdateSnapshot(ctx context.Context, snap *Snapshot) error {
	snap.VersionID = uuid.New().String()
	snap.LastUpdated = time.Now().UTC()

	raw, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("registry: create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return fmt.Errorf("registry: write %s: %w", s.path, err)
	}
	return nil
}

// Teardown removes the registry file; a file that is already gone is not an
// error.
func (s *FileStore) Teardown(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("registry: remove %s: %w", s.path, err)
	}
	return nil
}
