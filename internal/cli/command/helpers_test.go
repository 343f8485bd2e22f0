package command

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/libresprite/recovery/internal/doc"
	"github.com/libresprite/recovery/internal/infra/liveness"
	"github.com/libresprite/recovery/internal/storage/session"
)

const (
	deadPID  = 101
	alivePID = 202
)

// useProber makes every command probe pids with p for the rest of the test.
func useProber(t *testing.T, p liveness.Prober) {
	t.Helper()
	prev := newProber
	newProber = func() liveness.Prober { return p }
	t.Cleanup(func() { newProber = prev })
}

func aliveOnly(pids ...int) liveness.Prober {
	return liveness.ProberFunc(func(pid int) (bool, error) {
		for _, p := range pids {
			if p == pid {
				return true, nil
			}
		}
		return false, nil
	})
}

func newSprite(w, h, frames int) *doc.Document {
	s := doc.NewSprite(doc.FormatRGB, w, h)
	s.SetFrames(frames)
	layer := s.AddLayer("Layer 1")
	for f := 0; f < frames; f++ {
		img := doc.NewImage(doc.FormatRGB, w, h)
		for i := range img.Pix {
			img.Pix[i] = byte(f + 1)
		}
		layer.SetCel(&doc.Cel{Frame: f, Opacity: 255, Image: img})
	}
	return doc.NewDocument(s, "walk.ase")
}

// leaveSession writes a session directory for pid and returns its name and
// the keys of the backups it holds.
func leaveSession(t *testing.T, root string, created time.Time, pid int, docs ...*doc.Document) (string, []string) {
	t.Helper()
	name := session.Name(created, pid)
	s := session.New(filepath.Join(root, name), session.WithProber(aliveOnly()))
	require.NoError(t, s.Create(pid))
	var keys []string
	for _, d := range docs {
		require.NoError(t, s.SaveDocumentChanges(context.Background(), d))
		keys = append(keys, session.KeyFor(d.ID()))
	}
	require.NoError(t, s.Close())
	return name, keys
}

// run executes recoveryctl with args and returns what it wrote to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runContext(context.Background(), t, &bytes.Buffer{}, args...)
}

func runContext(ctx context.Context, t *testing.T, out interface {
	Write([]byte) (int, error)
	String() string
}, args ...string) (string, error) {
	t.Helper()
	app := App()
	app.Writer = out
	app.ErrWriter = &bytes.Buffer{}
	err := app.RunContext(ctx, append([]string{"recoveryctl"}, args...))
	return out.String(), err
}

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
