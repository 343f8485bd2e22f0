package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/libresprite/recovery/internal/doc"
	"github.com/libresprite/recovery/internal/infra/liveness"
	"github.com/libresprite/recovery/internal/storage/session"
)

var t0 = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

// aliveOnly returns a prober reporting exactly the given pids as alive.
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

func paint(d *doc.Document, v byte) {
	d.Modify(func(s *doc.Sprite) {
		pix := s.Layers[0].Cel(0).Image.Pix
		for i := range pix {
			pix[i] = v
		}
	})
}

// leaveSession writes a session directory as a process that then died
// would have left it. With withBackup false the session holds no backup.
func leaveSession(t *testing.T, root string, created time.Time, pid int, withBackup bool) string {
	t.Helper()
	path := filepath.Join(root, session.Name(created, pid))
	s := session.New(path, session.WithProber(aliveOnly()))
	require.NoError(t, s.Create(pid))
	if withBackup {
		require.NoError(t, s.SaveDocumentChanges(context.Background(), newSprite(64, 64, 3)))
	}
	require.NoError(t, s.Close())
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
