package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libresprite/recovery/internal/core/domain"
	"github.com/libresprite/recovery/internal/doc"
	"github.com/libresprite/recovery/internal/infra/liveness"
	"github.com/libresprite/recovery/internal/storage/activitylog"
	"github.com/libresprite/recovery/internal/storage/codec"
	"github.com/libresprite/recovery/internal/storage/fsutil"
	"github.com/libresprite/recovery/internal/telemetry/metric"
)

// Directory layout constants.
const (
	PIDFile = "pid"

	docDirPrefix = "doc-"
	genPrefix    = "gen-"
	tmpGenPrefix = ".tmp-gen-"

	dirPerm  = 0o750
	filePerm = 0o600
)

// DefaultKeepGenerations is the number of published generations kept per
// document, the newest included.
const DefaultKeepGenerations = 3

// testHookBeforePublish runs after a generation is fully written and before
// it is renamed into place. A non-nil error aborts the save.
var testHookBeforePublish func(tempDir string) error

// Session is one process's backup directory.
type Session struct {
	path      string
	name      string
	createdAt time.Time
	namePID   int

	prober           liveness.Prober
	codec            *codec.Codec
	logger           *slog.Logger
	metrics          *metric.Recorder
	keepGenerations  int
	compactThreshold int

	refs atomic.Int32

	mu     sync.Mutex
	log    *activitylog.Writer
	closed bool
	docs   map[string]*docState
}

type docState struct {
	mu      sync.Mutex
	loaded  bool
	saved   bool
	gen     uint64
	digest  uint64
	version uint64
}

// Option configures a Session.
type Option func(*Session)

// WithProber sets the liveness prober.
func WithProber(p liveness.Prober) Option {
	return func(s *Session) {
		if p != nil {
			s.prober = p
		}
	}
}

// WithCodec sets the document codec.
func WithCodec(c *codec.Codec) Option {
	return func(s *Session) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metric.Recorder) Option {
	return func(s *Session) { s.metrics = m }
}

// WithKeepGenerations sets how many published generations are kept per document.
func WithKeepGenerations(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.keepGenerations = n
		}
	}
}

// WithLogCompactThreshold sets the activity log compaction threshold.
func WithLogCompactThreshold(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.compactThreshold = n
		}
	}
}

// New returns a handle for the session directory at path. It performs no
// I/O; use Create to initialize a new directory. The handle starts with one
// reference.
func New(path string, opts ...Option) *Session {
	s := &Session{
		path:             filepath.Clean(path),
		name:             filepath.Base(path),
		prober:           liveness.New(),
		logger:           slog.Default(),
		keepGenerations:  DefaultKeepGenerations,
		compactThreshold: activitylog.DefaultCompactThreshold,
		docs:             make(map[string]*docState),
	}
	s.createdAt, s.namePID, _ = ParseName(s.name)
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = codec.New(codec.WithLogger(s.logger))
	}
	s.logger = s.logger.With("session", s.name)
	s.refs.Store(1)
	return s
}

// Path returns the session directory.
func (s *Session) Path() string { return s.path }

// Name returns the session directory name.
func (s *Session) Name() string { return s.name }

// CreatedAt returns the creation time encoded in the directory name.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) logPath() string { return filepath.Join(s.path, activitylog.FileName) }

// Create initializes the directory, the liveness marker and the activity
// log for pid, and opens the log for appending. Calling Create again with
// the same pid is a no-op; a different pid fails with ErrSessionConflict.
func (s *Session) Create(pid int) error {
	if pid <= 0 {
		return domain.ErrIO.WithDetailsf("invalid pid %d", pid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}

	existing, err := s.readPID()
	switch {
	case err == nil && existing != pid:
		return domain.ErrSessionConflict.WithDetailsf("%s belongs to pid %d", s.name, existing)
	case err == nil && s.log != nil:
		return nil
	case err != nil:
		if err := os.MkdirAll(s.path, dirPerm); err != nil {
			return domain.ErrIO.WithDetails("create session directory").WithCause(err)
		}
		marker := []byte(strconv.Itoa(pid) + "\n")
		if err := fsutil.WriteFileAtomic(filepath.Join(s.path, PIDFile), marker, filePerm); err != nil {
			return domain.ErrIO.WithDetails("write liveness marker").WithCause(err)
		}
	}

	if s.log == nil {
		w, err := activitylog.Open(activitylog.Config{Path: s.logPath(), CompactThreshold: s.compactThreshold})
		if err != nil {
			return domain.ErrIO.WithDetails("open activity log").WithCause(err)
		}
		s.log = w
	}

	s.logger.Debug("session created", "path", s.path, "pid", pid)
	return nil
}

// PID returns the pid stored in the liveness marker. When the marker is
// missing or unreadable it falls back to the pid in the directory name.
// Liveness is never judged from the name.
func (s *Session) PID() (int, error) {
	pid, err := s.readPID()
	if err != nil && s.namePID > 0 {
		return s.namePID, nil
	}
	return pid, err
}

func (s *Session) readPID() (int, error) {
	data, err := os.ReadFile(filepath.Join(s.path, PIDFile))
	if err != nil {
		return 0, fmt.Errorf("session: read liveness marker: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, domain.ErrFormat.WithDetailsf("liveness marker %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Probe reports whether the owning process is alive. The error explains
// why liveness could not be determined.
func (s *Session) Probe() (bool, error) {
	pid, err := s.readPID()
	if err != nil {
		return false, err
	}
	alive, err := s.prober.Alive(pid)
	if err != nil {
		s.metrics.IncProbeFailure()
		if !errors.Is(err, domain.ErrLivenessProbe) && !errors.Is(err, domain.ErrProbeUnsupported) {
			err = domain.ErrLivenessProbe.WithDetailsf("pid %d", pid).WithCause(err)
		}
		return false, err
	}
	return alive, nil
}

// IsRunning reports whether the owning process is still alive. A missing
// or unreadable marker, or a failed probe, counts as not running.
func (s *Session) IsRunning() bool {
	alive, err := s.Probe()
	if err != nil {
		s.logger.Warn("liveness unknown, treating session as crashed", "error", err)
		return false
	}
	return alive
}

// IsEmpty reports whether the session holds no selectable backup. A
// session whose directory cannot be listed is not considered empty.
func (s *Session) IsEmpty() bool {
	backups, err := s.Backups()
	if err != nil {
		s.logger.Warn("cannot list backups", "error", err)
		return false
	}
	return len(backups) == 0
}

// Validate returns ErrCorruptSession when neither the liveness marker nor
// the activity log can be read.
func (s *Session) Validate() error {
	_, pidErr := s.readPID()
	if pidErr == nil {
		return nil
	}
	_, logErr := activitylog.ReadFile(s.logPath())
	if logErr == nil {
		return nil
	}
	return domain.ErrCorruptSession.WithDetails(s.name).WithCause(errors.Join(pidErr, logErr))
}

// ActivityLog reads the session's activity log.
func (s *Session) ActivityLog() (*activitylog.ReadResult, error) {
	return activitylog.ReadFile(s.logPath())
}

// Backups lists the selectable backups, sorted by key. Documents with no
// published generation are skipped.
func (s *Session) Backups() ([]*Backup, error) {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSessionNotFound.WithDetails(s.name)
		}
		return nil, domain.ErrIO.WithDetails("list session").WithCause(err)
	}

	var descriptions map[string]*activitylog.Entry
	if res, err := activitylog.ReadFile(s.logPath()); err == nil {
		descriptions = activitylog.Live(res.Entries)
	}

	var out []*Backup
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), docDirPrefix) {
			continue
		}
		b, err := s.loadBackup(e.Name(), descriptions[e.Name()])
		if err != nil {
			s.logger.Warn("skipping unreadable backup", "key", e.Name(), "error", err)
			continue
		}
		if b != nil {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out, nil
}

// Backup returns the backup for key.
func (s *Session) Backup(key string) (*Backup, error) {
	b, err := s.loadBackup(key, nil)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.ErrBackupNotFound.WithDetails(key)
	}
	if res, err := activitylog.ReadFile(s.logPath()); err == nil {
		if e := activitylog.Live(res.Entries)[key]; e != nil && b.infoErr != nil {
			b.description = e.Description
		}
	}
	return b, nil
}

func (s *Session) loadBackup(key string, last *activitylog.Entry) (*Backup, error) {
	if !strings.HasPrefix(key, docDirPrefix) || filepath.Base(key) != key {
		return nil, domain.ErrBackupNotFound.WithDetailsf("invalid key %q", key)
	}
	dir := filepath.Join(s.path, key)
	gens, err := listGenerations(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrBackupNotFound.WithDetails(key)
		}
		return nil, err
	}
	if len(gens) == 0 {
		return nil, nil
	}

	b := &Backup{key: key, dir: dir, generations: gens}
	newest := b.generationDir(gens[0])
	b.info, b.infoErr = s.codec.ReadDocumentInfo(newest)
	switch {
	case b.infoErr == nil:
		b.description = b.info.Description()
	case last != nil && last.Description != "":
		b.description = last.Description
	default:
		b.description = fmt.Sprintf("Unreadable header: %s", key)
	}
	if st, err := os.Stat(newest); err == nil {
		b.modTime = st.ModTime()
	}
	b.size, _ = dirSize(newest)
	return b, nil
}

func (s *Session) state(key string) (*docState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSessionClosed
	}
	if s.log == nil {
		return nil, domain.ErrSessionClosed.WithDetails("session not created by this process")
	}
	st, ok := s.docs[key]
	if !ok {
		st = &docState{}
		s.docs[key] = st
	}
	return st, nil
}

// SaveDocumentChanges publishes a new backup generation of d. Saves of an
// unchanged document are skipped. d is only read.
func (s *Session) SaveDocumentChanges(ctx context.Context, d *doc.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := KeyFor(d.ID())
	st, err := s.state(key)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	start := time.Now()
	version := d.Version()
	if st.saved && st.version == version {
		s.metrics.ObserveSave(metric.ResultSkipped, 0, 0)
		return nil
	}

	enc, err := s.codec.Encode(d)
	if err != nil {
		s.metrics.ObserveSave(metric.ResultError, time.Since(start), 0)
		return err
	}
	if st.saved && enc.Digest == st.digest {
		st.version = version
		s.metrics.ObserveSave(metric.ResultSkipped, 0, 0)
		return nil
	}

	gen, err := s.publish(key, st, enc)
	if err != nil {
		s.metrics.ObserveSave(metric.ResultError, time.Since(start), 0)
		return err
	}
	st.gen, st.digest, st.version, st.saved = gen, enc.Digest, version, true

	s.appendLog(activitylog.NewSaveEntry(key, gen, enc.Info.Description(), enc.Digest))
	s.pruneGenerations(key, gen)

	s.metrics.ObserveSave(metric.ResultOK, time.Since(start), enc.Size())
	s.logger.Debug("backup published", "document", key, "generation", gen, "bytes", enc.Size(), "elapsed", time.Since(start))
	return nil
}

func (s *Session) publish(key string, st *docState, enc *codec.Encoded) (uint64, error) {
	keyDir := filepath.Join(s.path, key)
	if err := os.MkdirAll(keyDir, dirPerm); err != nil {
		return 0, domain.ErrIO.WithDetails("create backup directory").WithCause(err)
	}
	if !st.loaded {
		gens, err := listGenerations(keyDir)
		if err != nil {
			return 0, domain.ErrIO.WithDetails("list generations").WithCause(err)
		}
		if len(gens) > 0 {
			st.gen = gens[0]
		}
		st.loaded = true
	}

	gen := st.gen + 1
	tmp := filepath.Join(keyDir, tempGenerationName(gen))
	final := filepath.Join(keyDir, generationName(gen))

	// A leftover from an earlier failed attempt is never published.
	if err := os.RemoveAll(tmp); err != nil {
		return 0, domain.ErrIO.WithDetails("clear temp generation").WithCause(err)
	}
	if err := os.Mkdir(tmp, dirPerm); err != nil {
		return 0, domain.ErrIO.WithDetails("create temp generation").WithCause(err)
	}

	published := false
	defer func() {
		if !published {
			if err := os.RemoveAll(tmp); err != nil {
				s.logger.Warn("failed to remove temp generation", "path", tmp, "error", err)
			}
		}
	}()

	if err := s.codec.WriteEncoded(tmp, enc); err != nil {
		return 0, err
	}
	if testHookBeforePublish != nil {
		if err := testHookBeforePublish(tmp); err != nil {
			return 0, err
		}
	}
	if err := fsutil.PublishDir(tmp, final); err != nil {
		return 0, domain.ErrIO.WithDetailsf("publish %s/%s", key, generationName(gen)).WithCause(err)
	}
	published = true
	return gen, nil
}

func (s *Session) pruneGenerations(key string, newest uint64) {
	if newest <= uint64(s.keepGenerations) {
		return
	}
	keyDir := filepath.Join(s.path, key)
	gens, err := listGenerations(keyDir)
	if err != nil {
		s.logger.Warn("cannot list generations for pruning", "document", key, "error", err)
		return
	}
	for _, gen := range gens {
		if gen+uint64(s.keepGenerations) > newest {
			continue
		}
		if err := os.RemoveAll(filepath.Join(keyDir, generationName(gen))); err != nil {
			s.logger.Warn("failed to prune generation", "document", key, "generation", gen, "error", err)
		}
	}
}

// appendLog records e in the activity log. The log is secondary to the
// published directories, so failures are logged and not returned.
func (s *Session) appendLog(e *activitylog.Entry) {
	s.mu.Lock()
	w := s.log
	s.mu.Unlock()

	if w == nil {
		// Not the owner: record deletions in a crashed session's log if it has one.
		if _, err := os.Stat(s.logPath()); err != nil {
			return
		}
		var err error
		w, err = activitylog.Open(activitylog.Config{Path: s.logPath(), CompactThreshold: s.compactThreshold})
		if err != nil {
			s.logger.Warn("cannot open activity log", "error", err)
			return
		}
		defer w.Close()
	}

	if err := w.Append(e); err != nil {
		s.logger.Warn("activity log append failed", "op", e.OpType.String(), "document", e.DocKey, "error", err)
		return
	}
	if w.NeedsCompaction() {
		if err := w.Compact(); err != nil {
			s.logger.Warn("activity log compaction failed", "error", err)
		}
	}
}

// RemoveDocument deletes the backup of d and records a tombstone. It is a
// no-op when d has no backup.
func (s *Session) RemoveDocument(d *doc.Document) error {
	return s.removeKey(KeyFor(d.ID()))
}

func (s *Session) removeKey(key string) error {
	s.mu.Lock()
	st, ok := s.docs[key]
	if !ok {
		st = &docState{}
		if !s.closed && s.log != nil {
			s.docs[key] = st
		}
	}
	s.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	keyDir := filepath.Join(s.path, key)
	if _, err := os.Stat(keyDir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(keyDir); err != nil {
		s.metrics.ObserveRemove(metric.ResultError)
		return domain.ErrIO.WithDetails("remove backup " + key).WithCause(err)
	}
	st.loaded, st.saved = true, false
	st.gen, st.digest, st.version = 0, 0, 0

	s.appendLog(activitylog.NewRemoveEntry(key))
	s.metrics.ObserveRemove(metric.ResultOK)
	s.logger.Debug("backup removed", "document", key)
	return nil
}

// RestoreBackup rebuilds the document stored in b. Published generations
// are tried newest first. When none decodes, every generation whose header
// was invalid or of another format version is rebuilt from its raw images,
// newest first. Generations that failed with an I/O error are not.
func (s *Session) RestoreBackup(b *Backup) (*doc.Document, error) {
	gens, err := listGenerations(b.dir)
	if err != nil || len(gens) == 0 {
		s.metrics.ObserveRestore("structured", metric.ResultError)
		return nil, domain.ErrBackupNotFound.WithDetails(b.key)
	}

	var (
		errs    []error
		rawGens []uint64
	)
	for _, gen := range gens {
		d, err := s.codec.ReadStructured(filepath.Join(b.dir, generationName(gen)))
		if err == nil {
			if gen != gens[0] {
				s.logger.Warn("restored from an older generation", "document", b.key, "generation", gen)
			}
			s.metrics.ObserveRestore("structured", metric.ResultOK)
			return d, nil
		}
		if errors.Is(err, domain.ErrVersionMismatch) {
			s.logger.Warn("backup written by another format version", "document", b.key, "generation", gen, "error", err)
		}
		if codec.RawFallbackAllowed(err) {
			rawGens = append(rawGens, gen)
		}
		errs = append(errs, err)
	}

	joined := errors.Join(errs...)
	if len(rawGens) == 0 {
		s.metrics.ObserveRestore("structured", metric.ResultError)
		return nil, errs[0]
	}

	s.logger.Warn("structured restore failed, using raw images", "document", b.key, "error", joined)
	for _, gen := range rawGens {
		d, err := s.codec.ReadDocumentWithRawImages(filepath.Join(b.dir, generationName(gen)), codec.Frames)
		if err == nil {
			s.metrics.ObserveRestore(codec.Frames.String(), metric.ResultOK)
			return d, nil
		}
		errs = append(errs, err)
	}
	s.metrics.ObserveRestore(codec.Frames.String(), metric.ResultError)
	return nil, domain.ErrFormat.WithDetails("backup " + b.key).WithCause(errors.Join(errs...))
}

// RestoreRawImages rebuilds the newest generation of b from its payloads
// alone, ignoring the header.
func (s *Session) RestoreRawImages(b *Backup, as codec.RawImagesAs) (*doc.Document, error) {
	gens, err := listGenerations(b.dir)
	if err != nil || len(gens) == 0 {
		s.metrics.ObserveRestore(as.String(), metric.ResultError)
		return nil, domain.ErrBackupNotFound.WithDetails(b.key)
	}
	d, err := s.codec.ReadDocumentWithRawImages(filepath.Join(b.dir, generationName(gens[0])), as)
	if err != nil {
		s.metrics.ObserveRestore(as.String(), metric.ResultError)
		return nil, err
	}
	s.metrics.ObserveRestore(as.String(), metric.ResultOK)
	return d, nil
}

// DeleteBackup removes one backup and keeps the session.
func (s *Session) DeleteBackup(b *Backup) error {
	return s.removeKey(b.key)
}

// DiskUsage returns the bytes used by the session directory.
func (s *Session) DiskUsage() (int64, error) {
	return dirSize(s.path)
}

// RemoveFromDisk closes the session and deletes its directory tree.
func (s *Session) RemoveFromDisk() error {
	if err := s.Close(); err != nil {
		s.logger.Warn("close before removal failed", "error", err)
	}
	if err := os.RemoveAll(s.path); err != nil {
		return domain.ErrIO.WithDetails("remove session " + s.name).WithCause(err)
	}
	s.logger.Debug("session removed from disk", "path", s.path)
	return nil
}

// Retain adds a reference and returns s.
func (s *Session) Retain() *Session {
	s.refs.Add(1)
	return s
}

// Release drops a reference; the last release closes the session.
func (s *Session) Release() error {
	if s.refs.Add(-1) == 0 {
		return s.Close()
	}
	return nil
}

// Close closes the activity log. Saves fail with ErrSessionClosed
// afterwards; reads and restores keep working.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.log != nil {
		err := s.log.Close()
		s.log = nil
		return err
	}
	return nil
}
