package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	return NewCatalog(filepath.Join(t.TempDir(), "catalog.toml"), 1024)
}

func TestCatalogRoundTrip(t *testing.T) {
	c := newTestCatalog(t)

	entry := Entry{
		ID:       "rec-20260830-120000-abcd",
		Kind:     KindRecording,
		Path:     "/tmp/rec.mp4",
		Created:  time.Now().Truncate(time.Second),
		Duration: 12.5,
		Width:    1920,
		Height:   1080,
		Bytes:    4096,
	}
	require.NoError(t, c.Add(entry))

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, entry.Width, entries[0].Width)
	assert.Equal(t, entry.Duration, entries[0].Duration)
}

func TestCatalogAddReplacesSamePath(t *testing.T) {
	c := newTestCatalog(t)

	require.NoError(t, c.Add(Entry{ID: "a", Kind: KindRecording, Path: "/tmp/x.mp4", Bytes: 1}))
	require.NoError(t, c.Add(Entry{ID: "b", Kind: KindRecording, Path: "/tmp/x.mp4", Bytes: 2}))

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ID)
}

func TestCatalogEntriesNewestFirst(t *testing.T) {
	c := newTestCatalog(t)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, c.Add(Entry{ID: "old", Path: "/tmp/a.mp4", Created: old}))
	require.NoError(t, c.Add(Entry{ID: "new", Path: "/tmp/b.mp4", Created: time.Now()}))

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].ID)
}

func TestCatalogPrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog(filepath.Join(dir, "catalog.toml"), 1024)

	keep := filepath.Join(dir, "keep.mp4")
	require.NoError(t, os.WriteFile(keep, make([]byte, 2048), 0o644))
	tiny := filepath.Join(dir, "tiny.mp4")
	require.NoError(t, os.WriteFile(tiny, []byte("x"), 0o644))

	require.NoError(t, c.Add(Entry{ID: "keep", Path: keep, Bytes: 2048}))
	require.NoError(t, c.Add(Entry{ID: "tiny", Path: tiny, Bytes: 1}))
	require.NoError(t, c.Add(Entry{ID: "gone", Path: filepath.Join(dir, "missing.mp4")}))

	removed, err := c.Prune(false)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep", entries[0].ID)

	// The undersized stray is deleted from disk as well.
	_, statErr := os.Stat(tiny)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCatalogPruneDryRun(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog(filepath.Join(dir, "catalog.toml"), 1024)

	require.NoError(t, c.Add(Entry{ID: "gone", Path: filepath.Join(dir, "missing.mp4")}))

	removed, err := c.Prune(true)
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	entries, err := c.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
