package diskmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
)

func writeArtifact(t *testing.T, dir, name string, size int, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func newTestSweeper(dir string, maxPerDay, maxUsageMB int) *Sweeper {
	return NewSweeper(&conf.ArtifactSettings{
		Enabled:    true,
		Path:       dir,
		MaxPerDay:  maxPerDay,
		MaxUsageMB: maxUsageMB,
	})
}

func TestSweeper_EnforcesPerDayCap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	for i := range 5 {
		name := fmt.Sprintf("detection_20260824_10000%d_3.jpg", i)
		writeArtifact(t, dir, name, 10, base.Add(time.Duration(i)*time.Minute))
	}

	sweeper := newTestSweeper(dir, 3, 500)
	removed, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// The oldest two are gone, the newest three remain.
	_, err = os.Stat(filepath.Join(dir, "detection_20260824_100000_3.jpg"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "detection_20260824_100004_3.jpg"))
	assert.NoError(t, err)
}

func TestSweeper_PerDayCapIsIndependentPerDay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	writeArtifact(t, dir, "detection_20260823_120000_1.jpg", 10, base.Add(-24*time.Hour))
	writeArtifact(t, dir, "detection_20260824_120000_1.jpg", 10, base)

	sweeper := newTestSweeper(dir, 1, 500)
	removed, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.Zero(t, removed, "one file per day fits the cap")
}

func TestSweeper_EnforcesUsageCapOldestFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	// Three 1 MB files against a 2 MB cap.
	for i := range 3 {
		name := fmt.Sprintf("detection_20260824_11000%d_2.jpg", i)
		writeArtifact(t, dir, name, 1024*1024, base.Add(time.Duration(i)*time.Minute))
	}

	sweeper := newTestSweeper(dir, 100, 2)
	removed, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(dir, "detection_20260824_110000_2.jpg"))
	assert.True(t, os.IsNotExist(err), "oldest file deleted first")
}

func TestSweeper_IgnoresForeignFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))
	writeArtifact(t, dir, "detection_20260824_100000_1.jpg", 10, time.Now())

	sweeper := newTestSweeper(dir, 1, 500)
	_, err := sweeper.Sweep()
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestSweeper_MissingDirectoryIsNotAnError(t *testing.T) {
	t.Parallel()

	sweeper := newTestSweeper(filepath.Join(t.TempDir(), "never-created"), 10, 10)
	removed, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDayOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "20260824", dayOf("detection_20260824_150405_3.jpg"))
	assert.Empty(t, dayOf("detection_.jpg"))
}
