// Package store provides snapshot persistence backends.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/yusa21/tunedeck/internal/app/sync"
)

// FileStore persists the snapshot as a JSON file. Writes go through a
// temp file and rename so a crash mid-write never leaves a truncated
// snapshot behind.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at the given path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("snapshot path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create snapshot directory")
	}
	return &FileStore{path: path}, nil
}

// Load implements sync.Store.
func (f *FileStore) Load(_ context.Context) (sync.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return sync.Snapshot{}, sync.ErrNotFound
		}
		return sync.Snapshot{}, errors.Wrap(err, "failed to read snapshot")
	}

	var snapshot sync.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return sync.Snapshot{}, errors.Wrap(err, "failed to decode snapshot")
	}
	return snapshot, nil
}

// Save implements sync.Store.
func (f *FileStore) Save(_ context.Context, snapshot sync.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write snapshot")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.Wrap(err, "failed to replace snapshot")
	}
	return nil
}

// Clear implements sync.Store.
func (f *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove snapshot")
	}
	return nil
}
