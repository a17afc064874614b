package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBoundaryStoreMissingFile(t *testing.T) {
	store := NewFileBoundaryStore(t.TempDir())

	boundary, err := store.Load()
	require.NoError(t, err)
	assert.True(t, boundary.ResetAt.IsZero())
}

func TestFileBoundaryStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileBoundaryStore(filepath.Join(dir, "state"))

	want := Boundary{ResetAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, store.Save(want))

	// A fresh store instance reads the same boundary back.
	got, err := NewFileBoundaryStore(filepath.Join(dir, "state")).Load()
	require.NoError(t, err)
	assert.True(t, got.ResetAt.Equal(want.ResetAt))
}

func TestFileBoundaryStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reset_boundary.json"), []byte("{not json"), 0o644))

	_, err := NewFileBoundaryStore(dir).Load()
	assert.Error(t, err)
}
