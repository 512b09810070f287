package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitorReleaseAndCleanup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "requests", "01J0000000000000000000000")
	j := NewJanitor(dir, zerolog.Nop())
	require.NoError(t, j.Prepare())

	src := j.Track("source.mp4")
	short := j.Track("short_000.mp4")
	assert.Equal(t, filepath.Join(dir, "source.mp4"), src)
	require.NoError(t, os.WriteFile(src, []byte("s"), 0o644))
	require.NoError(t, os.WriteFile(short, []byte("v"), 0o644))
	require.NoError(t, os.WriteFile(short+".part", []byte("p"), 0o644))

	require.NoError(t, j.Release(short))
	assert.NoFileExists(t, short)
	assert.NoFileExists(t, short+".part")
	assert.FileExists(t, src)
	assert.Equal(t, []string{src}, j.Tracked())

	// Untracked stray files go with the directory.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.tmp"), nil, 0o644))

	require.NoError(t, j.Cleanup())
	assert.NoDirExists(t, dir)
	assert.Empty(t, j.Tracked())
	assert.NoError(t, j.Cleanup(), "second cleanup is a no-op")
}

func TestJanitorReleaseMissingFile(t *testing.T) {
	j := NewJanitor(t.TempDir(), zerolog.Nop())
	assert.NoError(t, j.Release(j.Track("never-written.mp4")))
}

func TestSweepStale(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	old := filepath.Join(root, "old")
	fresh := filepath.Join(root, "fresh")
	require.NoError(t, os.MkdirAll(old, 0o755))
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(old, "source.mp4"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.txt"), nil, 0o644))
	past := now.Add(-10 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	n, err := SweepStale(root, 6*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.FileExists(t, filepath.Join(root, "note.txt"))
}

func TestSweepStaleMissingRoot(t *testing.T) {
	n, err := SweepStale(filepath.Join(t.TempDir(), "nope"), time.Hour, time.Now())
	assert.NoError(t, err)
	assert.Zero(t, n)
}
