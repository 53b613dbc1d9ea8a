package sync

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by Store.Load when no snapshot exists.
var ErrNotFound = errors.New("snapshot not found")

// Store persists snapshots. Save replaces any previous snapshot;
// loading after Clear returns ErrNotFound.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
	Clear(ctx context.Context) error
}
