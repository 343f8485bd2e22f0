package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/libresprite/recovery/internal/core/domain"
	"github.com/libresprite/recovery/internal/doc"
	"github.com/libresprite/recovery/internal/infra/liveness"
	"github.com/libresprite/recovery/internal/storage/activitylog"
	"github.com/libresprite/recovery/internal/storage/codec"
)

func deadProber() liveness.Prober {
	return liveness.ProberFunc(func(int) (bool, error) { return false, nil })
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	path := filepath.Join(t.TempDir(), Name(time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC), 4242))
	s := New(path, append([]Option{WithProber(deadProber())}, opts...)...)
	if err := s.Create(4242); err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newSprite returns a document whose frame f is filled with byte f+1.
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

func paint(d *doc.Document, frame int, v byte) {
	d.Modify(func(s *doc.Sprite) {
		pix := s.Layers[0].Cel(frame).Image.Pix
		for i := range pix {
			pix[i] = v
		}
	})
}

func celValue(t *testing.T, d *doc.Document, frame int) byte {
	t.Helper()
	var v byte
	d.Read(func(s *doc.Sprite) {
		cel := s.Layers[0].Cel(frame)
		if cel == nil {
			t.Fatalf("frame %d has no cel", frame)
		}
		v = cel.Image.Pix[0]
	})
	return v
}

func onlyBackup(t *testing.T, s *Session) *Backup {
	t.Helper()
	backups, err := s.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("len(Backups()) = %d, want 1", len(backups))
	}
	return backups[0]
}

func TestName_RoundTrip(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	name := Name(created, 4242)
	if name != "20260102-030405-4242" {
		t.Fatalf("Name() = %q", name)
	}

	got, pid, ok := ParseName(name)
	if !ok || pid != 4242 || !got.Equal(created) {
		t.Fatalf("ParseName(%q) = %v, %d, %v", name, got, pid, ok)
	}

	for _, bad := range []string{"", "foo", "20260102-030405", "20260102-030405-0", "2026012-030405-1", ".tmp-20260102-030405-1"} {
		if _, _, ok := ParseName(bad); ok {
			t.Errorf("ParseName(%q) should fail", bad)
		}
	}
}

func TestCreate_IdempotentAndConflict(t *testing.T) {
	s := newTestSession(t)

	if err := s.Create(4242); err != nil {
		t.Fatalf("second Create: %v", err)
	}
	pid, err := s.PID()
	if err != nil || pid != 4242 {
		t.Fatalf("PID() = %d, %v", pid, err)
	}

	other := New(s.Path())
	defer other.Close()
	if err := other.Create(4242); err != nil {
		t.Fatalf("Create from a second handle with the same pid: %v", err)
	}
	if err := other.Create(99); !errors.Is(err, domain.ErrSessionConflict) {
		t.Fatalf("Create(99) error = %v, want ErrSessionConflict", err)
	}
}

func TestSaveAndRestore(t *testing.T) {
	s := newTestSession(t)
	d := newSprite(64, 64, 3)

	if err := s.SaveDocumentChanges(context.Background(), d); err != nil {
		t.Fatalf("SaveDocumentChanges: %v", err)
	}

	b := onlyBackup(t, s)
	if b.Key() != KeyFor(d.ID()) {
		t.Fatalf("Key() = %q, want %q", b.Key(), KeyFor(d.ID()))
	}
	if b.Description() != "RGB Sprite 64x64, 3 frames: walk.ase" {
		t.Fatalf("Description() = %q", b.Description())
	}
	if b.Generation() != 1 || b.Size() == 0 {
		t.Fatalf("Generation() = %d Size() = %d", b.Generation(), b.Size())
	}

	got, err := s.RestoreBackup(b)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if got.Filename() != "walk.ase" {
		t.Fatalf("Filename() = %q", got.Filename())
	}
	got.Read(func(sp *doc.Sprite) {
		if sp.Width != 64 || sp.Height != 64 || sp.Frames() != 3 {
			t.Fatalf("restored %dx%d frames=%d", sp.Width, sp.Height, sp.Frames())
		}
	})
	for f := 0; f < 3; f++ {
		if v := celValue(t, got, f); v != byte(f+1) {
			t.Fatalf("frame %d = %d, want %d", f, v, f+1)
		}
	}

	res, err := s.ActivityLog()
	if err != nil {
		t.Fatalf("ActivityLog: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].OpType != activitylog.OpTypeSave {
		t.Fatalf("log entries = %+v", res.Entries)
	}
}

func TestSave_InterruptedBeforePublish(t *testing.T) {
	s := newTestSession(t)
	d := newSprite(8, 8, 1)
	ctx := context.Background()

	if err := s.SaveDocumentChanges(ctx, d); err != nil {
		t.Fatalf("first save: %v", err)
	}
	paint(d, 0, 77)

	crash := errors.New("simulated crash")
	testHookBeforePublish = func(string) error { return crash }
	err := s.SaveDocumentChanges(ctx, d)
	testHookBeforePublish = nil
	if !errors.Is(err, crash) {
		t.Fatalf("interrupted save error = %v, want simulated crash", err)
	}

	b := onlyBackup(t, s)
	if b.Generation() != 1 {
		t.Fatalf("Generation() = %d, want 1", b.Generation())
	}
	got, err := s.RestoreBackup(b)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if v := celValue(t, got, 0); v != 1 {
		t.Fatalf("restored value = %d, want the pre-crash value 1", v)
	}

	// A partial directory left by a real crash is never selected.
	partial := filepath.Join(b.Dir(), tempGenerationName(9))
	os.Mkdir(partial, 0o750)
	os.WriteFile(filepath.Join(partial, codec.HeaderFile), []byte("half"), 0o600)
	b = onlyBackup(t, s)
	if b.Generation() != 1 {
		t.Fatalf("Generation() = %d with partial dir present, want 1", b.Generation())
	}

	// The next save succeeds and supersedes generation 1.
	if err := s.SaveDocumentChanges(ctx, d); err != nil {
		t.Fatalf("save after crash: %v", err)
	}
	got, _ = s.RestoreBackup(onlyBackup(t, s))
	if v := celValue(t, got, 0); v != 77 {
		t.Fatalf("restored value = %d, want 77", v)
	}
}

func TestSave_UnchangedIsNotRewritten(t *testing.T) {
	s := newTestSession(t)
	d := newSprite(16, 16, 2)
	ctx := context.Background()

	if err := s.SaveDocumentChanges(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}
	b := onlyBackup(t, s)
	genDir := b.generationDir(b.Generation())
	before, _ := os.ReadFile(filepath.Join(genDir, codec.PayloadName(0, 1)))

	d.Modify(nil) // version bump, same content
	if err := s.SaveDocumentChanges(ctx, d); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if err := s.SaveDocumentChanges(ctx, d); err != nil {
		t.Fatalf("third save: %v", err)
	}

	b = onlyBackup(t, s)
	if b.Generation() != 1 {
		t.Fatalf("Generation() = %d, want 1 for unchanged content", b.Generation())
	}
	after, _ := os.ReadFile(filepath.Join(genDir, codec.PayloadName(0, 1)))
	if !bytes.Equal(before, after) {
		t.Fatal("payload bytes changed without a mutation")
	}

	// Encoding the same content into another directory gives identical bytes.
	other := t.TempDir()
	if err := codec.New().WriteDocument(other, d); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	again, _ := os.ReadFile(filepath.Join(other, codec.PayloadName(0, 1)))
	if !bytes.Equal(before, again) {
		t.Fatal("encoding is not deterministic")
	}
}

func TestSave_RenameIsBackedUp(t *testing.T) {
	s := newTestSession(t)
	d := newSprite(8, 8, 1)
	ctx := context.Background()

	if err := s.SaveDocumentChanges(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}
	d.SetFilename("run.ase")
	if err := s.SaveDocumentChanges(ctx, d); err != nil {
		t.Fatalf("save after rename: %v", err)
	}

	b := onlyBackup(t, s)
	if b.Generation() != 2 {
		t.Fatalf("Generation() = %d, want 2 after a rename", b.Generation())
	}
	got, err := s.RestoreBackup(b)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if got.Filename() != "run.ase" {
		t.Fatalf("Filename() = %q, want %q", got.Filename(), "run.ase")
	}
}

func TestSave_PrunesOldGenerations(t *testing.T) {
	s := newTestSession(t, WithKeepGenerations(2))
	d := newSprite(4, 4, 1)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		paint(d, 0, byte(10+i))
		if err := s.SaveDocumentChanges(ctx, d); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	gens := onlyBackup(t, s).Generations()
	if len(gens) != 2 || gens[0] != 4 || gens[1] != 3 {
		t.Fatalf("Generations() = %v, want [4 3]", gens)
	}
}

func TestRestore_FallsBackToOlderGeneration(t *testing.T) {
	s := newTestSession(t)
	d := newSprite(4, 4, 1)
	ctx := context.Background()

	paint(d, 0, 5)
	s.SaveDocumentChanges(ctx, d)
	paint(d, 0, 6)
	s.SaveDocumentChanges(ctx, d)

	b := onlyBackup(t, s)
	hdr := filepath.Join(b.generationDir(2), codec.HeaderFile)
	if err := os.WriteFile(hdr, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := s.RestoreBackup(b)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if v := celValue(t, got, 0); v != 5 {
		t.Fatalf("restored value = %d, want 5 from generation 1", v)
	}
}

func TestRestore_RawFallbackAndForcedRaw(t *testing.T) {
	s := newTestSession(t, WithKeepGenerations(1))
	d := newSprite(6, 3, 3)
	if err := s.SaveDocumentChanges(context.Background(), d); err != nil {
		t.Fatalf("save: %v", err)
	}
	b := onlyBackup(t, s)
	os.Remove(filepath.Join(b.generationDir(1), codec.HeaderFile))

	b = onlyBackup(t, s)
	if _, err := b.Info(); !errors.Is(err, domain.ErrFormat) {
		t.Fatalf("Info() error = %v, want ErrFormat", err)
	}
	if b.Description() != "RGB Sprite 6x3, 3 frames: walk.ase" {
		t.Fatalf("Description() = %q, want the logged description", b.Description())
	}

	got, err := s.RestoreBackup(b)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	for f := 0; f < 3; f++ {
		if v := celValue(t, got, f); v != byte(f+1) {
			t.Fatalf("frame %d = %d, want %d", f, v, f+1)
		}
	}

	layers, err := s.RestoreRawImages(b, codec.Layers)
	if err != nil {
		t.Fatalf("RestoreRawImages: %v", err)
	}
	layers.Read(func(sp *doc.Sprite) {
		if len(sp.Layers) != 3 || sp.Frames() != 1 {
			t.Fatalf("layers = %d frames = %d", len(sp.Layers), sp.Frames())
		}
	})
}

func TestRestore_VersionMismatchUsesRawImages(t *testing.T) {
	s := newTestSession(t, WithKeepGenerations(1))
	if err := s.SaveDocumentChanges(context.Background(), newSprite(64, 64, 3)); err != nil {
		t.Fatalf("save: %v", err)
	}
	b := onlyBackup(t, s)
	hdr := filepath.Join(b.generationDir(1), codec.HeaderFile)
	data, err := os.ReadFile(hdr)
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint16(data[4:6], codec.FormatVersion+1)
	if err := os.WriteFile(hdr, data, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := s.RestoreBackup(b)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	got.Read(func(sp *doc.Sprite) {
		if sp.Width != 64 || sp.Height != 64 || sp.Frames() != 3 {
			t.Fatalf("restored %dx%d with %d frames, want 64x64 with 3", sp.Width, sp.Height, sp.Frames())
		}
	})
	for f := 0; f < 3; f++ {
		if v := celValue(t, got, f); v != byte(f+1) {
			t.Fatalf("frame %d = %d, want %d", f, v, f+1)
		}
	}
}

func TestRestore_RawFallbackSkipsUnreadableGeneration(t *testing.T) {
	s := newTestSession(t)
	d := newSprite(4, 4, 1)
	ctx := context.Background()

	paint(d, 0, 5)
	s.SaveDocumentChanges(ctx, d)
	paint(d, 0, 6)
	s.SaveDocumentChanges(ctx, d)

	b := onlyBackup(t, s)
	// Newest: the header cannot be read at all.
	newest := filepath.Join(b.generationDir(2), codec.HeaderFile)
	if err := os.Remove(newest); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(newest, 0o700); err != nil {
		t.Fatal(err)
	}
	// Older: the header is invalid but the payloads are intact.
	if err := os.WriteFile(filepath.Join(b.generationDir(1), codec.HeaderFile), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := s.RestoreBackup(b)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if v := celValue(t, got, 0); v != 5 {
		t.Fatalf("restored value = %d, want 5 rebuilt from generation 1", v)
	}
}

func TestRestore_UnreadableHeadersAreReported(t *testing.T) {
	s := newTestSession(t, WithKeepGenerations(1))
	if err := s.SaveDocumentChanges(context.Background(), newSprite(4, 4, 1)); err != nil {
		t.Fatalf("save: %v", err)
	}
	b := onlyBackup(t, s)
	hdr := filepath.Join(b.generationDir(1), codec.HeaderFile)
	if err := os.Remove(hdr); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(hdr, 0o700); err != nil {
		t.Fatal(err)
	}

	if _, err := s.RestoreBackup(b); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("RestoreBackup error = %v, want ErrIO", err)
	}
}

func TestRemoveDocument(t *testing.T) {
	s := newTestSession(t)
	d := newSprite(4, 4, 1)

	if err := s.SaveDocumentChanges(context.Background(), d); err != nil {
		t.Fatalf("save: %v", err)
	}
	b := onlyBackup(t, s)

	if err := s.RemoveDocument(d); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if err := s.RemoveDocument(d); err != nil {
		t.Fatalf("second RemoveDocument: %v", err)
	}
	if !s.IsEmpty() {
		t.Fatal("IsEmpty() = false after removing the only document")
	}
	if _, err := s.RestoreBackup(b); !errors.Is(err, domain.ErrBackupNotFound) {
		t.Fatalf("RestoreBackup after remove error = %v, want ErrBackupNotFound", err)
	}

	res, _ := s.ActivityLog()
	if len(res.Entries) != 2 || res.Entries[1].OpType != activitylog.OpTypeRemove {
		t.Fatalf("log entries = %d, want save + remove", len(res.Entries))
	}
	if len(activitylog.Live(res.Entries)) != 0 {
		t.Fatal("removed document still live in the log")
	}

	// Saving again after a removal starts a fresh backup.
	paint(d, 0, 3)
	if err := s.SaveDocumentChanges(context.Background(), d); err != nil {
		t.Fatalf("save after remove: %v", err)
	}
	if g := onlyBackup(t, s).Generation(); g != 1 {
		t.Fatalf("Generation() = %d, want 1", g)
	}
}

func TestPID_FallsBackToDirectoryName(t *testing.T) {
	s := newTestSession(t)
	marker := filepath.Join(s.Path(), PIDFile)

	if err := os.WriteFile(marker, []byte("not a pid\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := New(s.Path(), WithProber(liveness.ProberFunc(func(int) (bool, error) { return true, nil })))
	defer h.Close()
	if pid, err := h.PID(); err != nil || pid != 4242 {
		t.Fatalf("PID() with a garbled marker = %d, %v, want 4242", pid, err)
	}
	if h.IsRunning() {
		t.Fatal("IsRunning() = true with a garbled marker")
	}

	os.Remove(marker)
	if pid, err := h.PID(); err != nil || pid != 4242 {
		t.Fatalf("PID() without a marker = %d, %v, want 4242", pid, err)
	}

	unnamed := New(filepath.Join(t.TempDir(), "scratch"))
	defer unnamed.Close()
	if _, err := unnamed.PID(); err == nil {
		t.Fatal("PID() should fail without a marker or a parsable name")
	}
}

func TestIsRunning(t *testing.T) {
	tests := []struct {
		name   string
		prober liveness.Prober
		want   bool
	}{
		{"alive", liveness.ProberFunc(func(int) (bool, error) { return true, nil }), true},
		{"dead", deadProber(), false},
		{"probe error", liveness.ProberFunc(func(int) (bool, error) { return true, errors.New("denied") }), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t)
			h := New(s.Path(), WithProber(tt.prober))
			if got := h.IsRunning(); got != tt.want {
				t.Fatalf("IsRunning() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("missing marker", func(t *testing.T) {
		s := newTestSession(t)
		os.Remove(filepath.Join(s.Path(), PIDFile))
		h := New(s.Path(), WithProber(liveness.ProberFunc(func(int) (bool, error) { return true, nil })))
		if h.IsRunning() {
			t.Fatal("IsRunning() = true without a marker")
		}
		if _, err := h.Probe(); err == nil {
			t.Fatal("Probe() should explain the missing marker")
		}
	})
}

func TestIsEmpty(t *testing.T) {
	s := newTestSession(t)
	if !s.IsEmpty() {
		t.Fatal("new session should be empty")
	}

	// A document directory holding only an unpublished write is still empty.
	partial := filepath.Join(s.Path(), "doc-99", tempGenerationName(1))
	os.MkdirAll(partial, 0o750)
	if !s.IsEmpty() {
		t.Fatal("session with only a partial write should be empty")
	}

	s.SaveDocumentChanges(context.Background(), newSprite(2, 2, 1))
	if s.IsEmpty() {
		t.Fatal("session with a backup should not be empty")
	}
}

func TestValidate(t *testing.T) {
	s := newTestSession(t)
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	os.Remove(filepath.Join(s.Path(), PIDFile))
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() with readable log = %v, want nil", err)
	}

	os.WriteFile(filepath.Join(s.Path(), activitylog.FileName), []byte("xx"), 0o600)
	if err := s.Validate(); !errors.Is(err, domain.ErrCorruptSession) {
		t.Fatalf("Validate() = %v, want ErrCorruptSession", err)
	}
}

func TestDeleteBackup_FromAnotherHandle(t *testing.T) {
	s := newTestSession(t)
	a, b := newSprite(2, 2, 1), newSprite(2, 2, 1)
	s.SaveDocumentChanges(context.Background(), a)
	s.SaveDocumentChanges(context.Background(), b)
	s.Close()

	crashed := New(s.Path(), WithProber(deadProber()))
	backups, err := crashed.Backups()
	if err != nil || len(backups) != 2 {
		t.Fatalf("Backups() = %d, %v", len(backups), err)
	}
	if err := crashed.DeleteBackup(backups[0]); err != nil {
		t.Fatalf("DeleteBackup: %v", err)
	}

	left, _ := crashed.Backups()
	if len(left) != 1 || left[0].Key() != backups[1].Key() {
		t.Fatalf("remaining backups = %v", left)
	}
	res, _ := crashed.ActivityLog()
	if last := res.Entries[len(res.Entries)-1]; last.OpType != activitylog.OpTypeRemove || last.DocKey != backups[0].Key() {
		t.Fatalf("last log entry = %+v, want tombstone", last)
	}

	if err := crashed.SaveDocumentChanges(context.Background(), a); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("save into a session not created here error = %v, want ErrSessionClosed", err)
	}
}

func TestBackup_LookupByKey(t *testing.T) {
	s := newTestSession(t)
	d := newSprite(2, 2, 1)
	s.SaveDocumentChanges(context.Background(), d)

	b, err := s.Backup(KeyFor(d.ID()))
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if b.Generation() != 1 {
		t.Fatalf("Generation() = %d", b.Generation())
	}
	for _, key := range []string{"doc-0", "../x", "pid"} {
		if _, err := s.Backup(key); !errors.Is(err, domain.ErrBackupNotFound) {
			t.Errorf("Backup(%q) error = %v, want ErrBackupNotFound", key, err)
		}
	}
}

func TestRetainRelease(t *testing.T) {
	s := newTestSession(t)
	d := newSprite(2, 2, 1)

	s.Retain()
	if err := s.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := s.SaveDocumentChanges(context.Background(), d); err != nil {
		t.Fatalf("save while still referenced: %v", err)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("last Release: %v", err)
	}
	paint(d, 0, 9)
	if err := s.SaveDocumentChanges(context.Background(), d); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("save after last release error = %v, want ErrSessionClosed", err)
	}
	if _, err := s.RestoreBackup(onlyBackup(t, s)); err != nil {
		t.Fatalf("restore after release: %v", err)
	}
}

func TestRemoveFromDisk(t *testing.T) {
	s := newTestSession(t)
	s.SaveDocumentChanges(context.Background(), newSprite(2, 2, 1))

	if err := s.RemoveFromDisk(); err != nil {
		t.Fatalf("RemoveFromDisk: %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Fatalf("session directory still present: %v", err)
	}
	if _, err := s.Backups(); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("Backups() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSave_CanceledContext(t *testing.T) {
	s := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SaveDocumentChanges(ctx, newSprite(2, 2, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("save with canceled context error = %v", err)
	}
	if !s.IsEmpty() {
		t.Fatal("canceled save wrote a backup")
	}
}
