package recorder

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession_DefaultName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	now := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)

	session, err := NewSession(dir, "", now)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^rec-20260824-103000-[a-z0-9]{6}$`), session.ID)
	assert.Equal(t, filepath.Join(dir, session.ID+".mp4"), session.OutputPath)
	assert.Equal(t, now, session.StartedAt)

	info, err := os.Stat(dir)
	require.NoError(t, err, "recordings directory should be created")
	assert.True(t, info.IsDir())
}

func TestNewSession_UniqueIDs(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	a, err := NewSession(dir, "", now)
	require.NoError(t, err)
	b, err := NewSession(dir, "", now)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID, "same-second sessions must not collide")
	assert.NotEqual(t, a.OutputPath, b.OutputPath)
}

func TestNewSession_CustomName(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	for _, tc := range []struct {
		name string
		stem string
	}{
		{"demo", "demo"},
		{"demo.mp4", "demo"},
		{"  spaced  ", "spaced"},
		{"../escape", "escape"},
		{"nested/dir/take2", "take2"},
		{".", "recording"},
	} {
		session, err := NewSession(dir, tc.name, now)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, tc.stem+".mp4"), session.OutputPath, "name %q", tc.name)
	}
}

func TestNewSession_RequiresDir(t *testing.T) {
	_, err := NewSession("", "", time.Now())
	assert.Error(t, err)
}
