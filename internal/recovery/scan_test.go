package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libresprite/recovery/internal/infra/liveness"
)

func TestScan_ClassifiesWithoutModifying(t *testing.T) {
	root := t.TempDir()
	crashed := leaveSession(t, root, t0, 4242, true)
	running := leaveSession(t, root, t0.Add(time.Minute), 777, true)
	empty := leaveSession(t, root, t0.Add(2*time.Minute), 888, false)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o750))

	report, err := Scan(context.Background(), root, ScanOptions{Prober: aliveOnly(777)})
	require.NoError(t, err)
	defer report.Close()

	require.Len(t, report.Entries, 3)
	// Newest first.
	assert.Equal(t, StateEmpty, report.Entries[0].State)
	assert.Equal(t, 888, report.Entries[0].PID)
	assert.Equal(t, StateRunning, report.Entries[1].State)
	assert.Equal(t, StateCrashed, report.Entries[2].State)

	rec := report.Recoverable()
	require.Len(t, rec, 1)
	assert.Equal(t, filepath.Base(crashed), rec[0].Name())

	for _, p := range []string{crashed, running, empty} {
		assert.True(t, exists(p), p)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	report, err := Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
}

func TestScan_CorruptSession(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "20261017-093000-999")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "doc-1"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pid"), []byte("garbage"), 0o600))

	report, err := Scan(context.Background(), root, ScanOptions{Prune: true, Prober: aliveOnly()})
	require.NoError(t, err)
	defer report.Close()

	require.Len(t, report.Entries, 1)
	assert.Equal(t, StateCorrupt, report.Entries[0].State)
	assert.Error(t, report.Entries[0].Err)
	assert.False(t, report.Entries[0].Pruned)
	assert.True(t, exists(dir))
}

func TestScan_ProbeFailureCountsAsCrashed(t *testing.T) {
	root := t.TempDir()
	leaveSession(t, root, t0, 4242, true)

	failing := func(int) (bool, error) { return true, os.ErrPermission }
	report, err := Scan(context.Background(), root, ScanOptions{Prober: liveness.ProberFunc(failing)})
	require.NoError(t, err)
	defer report.Close()

	require.Len(t, report.Entries, 1)
	assert.Equal(t, StateCrashed, report.Entries[0].State)
	assert.Error(t, report.Entries[0].Err)
}

func TestScan_PruneSkippedWhileLocked(t *testing.T) {
	root := t.TempDir()
	empty := leaveSession(t, root, t0, 888, false)

	held := flock.New(filepath.Join(root, LockFile))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	report, err := Scan(context.Background(), root, ScanOptions{
		Prune:       true,
		Prober:      aliveOnly(),
		LockTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	defer report.Close()

	require.Len(t, report.Entries, 1)
	assert.False(t, report.Entries[0].Pruned)
	assert.True(t, exists(empty))
}

func TestScan_PrunesExpired(t *testing.T) {
	root := t.TempDir()
	old := leaveSession(t, root, t0.AddDate(0, 0, -40), 1, true)
	recent := leaveSession(t, root, t0.AddDate(0, 0, -2), 2, true)

	report, err := Scan(context.Background(), root, ScanOptions{
		Prune:         true,
		RetentionDays: 30,
		Prober:        aliveOnly(),
		Now:           func() time.Time { return t0 },
	})
	require.NoError(t, err)
	defer report.Close()

	require.Len(t, report.Entries, 2)
	assert.Equal(t, StateCrashed, report.Entries[0].State)
	assert.Equal(t, StateExpired, report.Entries[1].State)
	assert.True(t, report.Entries[1].Pruned)
	assert.False(t, exists(old))
	assert.True(t, exists(recent))
}
