package recovery

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libresprite/recovery/internal/core/domain"
	"github.com/libresprite/recovery/internal/doc"
	"github.com/libresprite/recovery/internal/storage/activitylog"
	"github.com/libresprite/recovery/internal/storage/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newObserver(t *testing.T, opts ObserverOptions) (*BackupObserver, *session.Session, *doc.Context) {
	t.Helper()
	s := session.New(filepath.Join(t.TempDir(), session.Name(t0, 4242)), session.WithProber(aliveOnly()))
	require.NoError(t, s.Create(4242))
	editor := doc.NewContext()
	o := NewBackupObserver(s, editor, opts)
	t.Cleanup(func() {
		_ = o.Stop(context.Background())
		_ = s.Close()
	})
	return o, s, editor
}

func saveCount(t *testing.T, s *session.Session) int {
	t.Helper()
	res, err := s.ActivityLog()
	require.NoError(t, err)
	n := 0
	for _, e := range res.Entries {
		if e.OpType == activitylog.OpTypeSave {
			n++
		}
	}
	return n
}

func TestObserver_DebounceCollapsesEdits(t *testing.T) {
	o, s, editor := newObserver(t, ObserverOptions{Debounce: 50 * time.Millisecond})
	o.Start()

	d := newSprite(16, 16, 2)
	editor.Add(d)
	for i := 0; i < 10; i++ {
		paint(d, byte(i+1))
	}

	require.Eventually(t, func() bool {
		backups, err := s.Backups()
		return err == nil && len(backups) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return o.Pending() == 0 }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, saveCount(t, s))
	b, err := s.Backup(session.KeyFor(d.ID()))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.Generation())
	assert.NoError(t, o.LastError())
}

func TestObserver_FlushWritesImmediately(t *testing.T) {
	o, s, editor := newObserver(t, ObserverOptions{Debounce: time.Hour})
	o.Start()

	d := newSprite(16, 16, 1)
	editor.Add(d)
	paint(d, 3)
	assert.Equal(t, 1, o.Pending())
	assert.True(t, s.IsEmpty())

	require.NoError(t, o.Flush(context.Background()))
	assert.Equal(t, 0, o.Pending())
	assert.False(t, s.IsEmpty())
}

func TestObserver_RemoveDocumentDeletesBackup(t *testing.T) {
	o, s, editor := newObserver(t, ObserverOptions{Debounce: time.Hour})
	o.Start()

	d := newSprite(16, 16, 1)
	editor.Add(d)
	paint(d, 3)
	require.NoError(t, o.Flush(context.Background()))
	require.False(t, s.IsEmpty())

	editor.Remove(d)
	require.NoError(t, o.Flush(context.Background()))
	assert.True(t, s.IsEmpty())

	// No longer followed.
	paint(d, 4)
	assert.Equal(t, 0, o.Pending())
}

func TestObserver_RemoveReplacesPendingSave(t *testing.T) {
	o, s, editor := newObserver(t, ObserverOptions{Debounce: time.Hour})
	o.Start()

	d := newSprite(16, 16, 1)
	editor.Add(d)
	paint(d, 3)
	editor.Remove(d)
	require.NoError(t, o.Flush(context.Background()))
	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, saveCount(t, s))
}

func TestObserver_UndoRedoSchedule(t *testing.T) {
	o, _, editor := newObserver(t, ObserverOptions{Debounce: time.Hour})
	o.Start()

	d := newSprite(16, 16, 1)
	editor.Add(d)
	paint(d, 3)
	require.NoError(t, o.Flush(context.Background()))

	require.True(t, d.Undo(nil))
	assert.Equal(t, 1, o.Pending())
	require.NoError(t, o.Flush(context.Background()))

	require.True(t, d.Redo(nil))
	assert.Equal(t, 1, o.Pending())
}

func TestObserver_FollowsDocumentsOpenBeforeStart(t *testing.T) {
	o, _, editor := newObserver(t, ObserverOptions{Debounce: time.Hour})
	d := newSprite(16, 16, 1)
	editor.Add(d)

	paint(d, 1)
	assert.Equal(t, 0, o.Pending())

	o.Start()
	paint(d, 2)
	assert.Equal(t, 1, o.Pending())
}

func TestObserver_StopUnsubscribes(t *testing.T) {
	o, s, editor := newObserver(t, ObserverOptions{Debounce: time.Hour})
	o.Start()

	d := newSprite(16, 16, 1)
	editor.Add(d)
	paint(d, 1)
	require.NoError(t, o.Stop(context.Background()))
	assert.Equal(t, 0, o.Pending())

	paint(d, 2)
	assert.Equal(t, 0, o.Pending())
	assert.ErrorIs(t, o.Flush(context.Background()), ErrObserverStopped)
	assert.True(t, s.IsEmpty())

	// Idempotent.
	require.NoError(t, o.Stop(context.Background()))
}

func TestObserver_StopBeforeStart(t *testing.T) {
	o, _, _ := newObserver(t, ObserverOptions{})
	require.NoError(t, o.Stop(context.Background()))
	o.Start()
	assert.Equal(t, 0, o.Pending())
}

func TestObserver_SaveErrorIsRecorded(t *testing.T) {
	o, s, editor := newObserver(t, ObserverOptions{Debounce: time.Hour})
	o.Start()

	d := newSprite(16, 16, 1)
	editor.Add(d)
	require.NoError(t, s.Close())
	paint(d, 1)

	err := o.Flush(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.ErrorIs(t, o.LastError(), domain.ErrSessionClosed)
}

func TestObserver_MaxDelayBoundsDebounce(t *testing.T) {
	clock := &fakeClock{now: t0}
	o, _, editor := newObserver(t, ObserverOptions{
		Debounce: time.Minute,
		MaxDelay: 3 * time.Minute,
		Now:      clock.Now,
	})
	o.Start()

	d := newSprite(8, 8, 1)
	editor.Add(d)

	due := func() time.Time {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.pending[d.ID()].due
	}

	paint(d, 1)
	assert.Equal(t, t0.Add(time.Minute), due())

	// Each edit lands before the previous deadline.
	for i := 0; i < 3; i++ {
		clock.Advance(50 * time.Second)
		paint(d, byte(i+2))
	}
	assert.Equal(t, t0.Add(3*time.Minute), due())
}
