package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yusa21/tunedeck/internal/app/sync"
)

func testSnapshot() sync.Snapshot {
	return sync.Snapshot{
		SchemaVersion: sync.SchemaVersion,
		SavedAt:       time.Now().Truncate(time.Second),
		Repeat:        "all",
		Volume:        0.75,
	}
}

func TestNewFileStore_RequiresPath(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}

func TestFileStore_SaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()

	// Empty store
	_, err = fs.Load(ctx)
	assert.ErrorIs(t, err, sync.ErrNotFound)

	// Round trip
	require.NoError(t, fs.Save(ctx, testSnapshot()))
	got, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "all", got.Repeat)
	assert.InDelta(t, 0.75, got.Volume, 0.001)

	// Save replaces
	replaced := testSnapshot()
	replaced.Repeat = "one"
	require.NoError(t, fs.Save(ctx, replaced))
	got, err = fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Repeat)

	// Clear is idempotent
	require.NoError(t, fs.Clear(ctx))
	require.NoError(t, fs.Clear(ctx))
	_, err = fs.Load(ctx)
	assert.ErrorIs(t, err, sync.ErrNotFound)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = fs.Load(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, sync.ErrNotFound)
}

func TestFileStore_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, fs.Save(context.Background(), testSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.json", entries[0].Name())
}
