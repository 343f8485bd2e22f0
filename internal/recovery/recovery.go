package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/libresprite/recovery/internal/core/domain"
	"github.com/libresprite/recovery/internal/doc"
	"github.com/libresprite/recovery/internal/storage/codec"
	"github.com/libresprite/recovery/internal/storage/session"
	"github.com/libresprite/recovery/internal/telemetry/metric"
)

// EditingContext is the host application as seen by crash recovery.
type EditingContext interface {
	DocumentSource
	// BackupRoot is the directory holding all sessions.
	BackupRoot() string
}

// Host adapts a document context and a backup root to EditingContext.
type Host struct {
	*doc.Context
	Root string
}

// BackupRoot implements EditingContext.
func (h Host) BackupRoot() string { return h.Root }

// DataRecovery owns the crashed sessions found at startup and the session
// of the current process.
type DataRecovery struct {
	cfg     Config
	root    string
	logger  *slog.Logger
	metrics *metric.Recorder

	sessions []*session.Session
	current  *session.Session
	observer *BackupObserver

	closeOnce sync.Once
	closeErr  error
}

// New scans the backup root, prunes empty sessions, creates the session of
// the current process and starts backing up the documents of ec.
func New(ctx context.Context, ec EditingContext, cfg Config) (*DataRecovery, error) {
	applyDefaults(&cfg)
	root := ec.BackupRoot()
	if root == "" {
		return nil, errors.New("recovery: empty backup root")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, domain.ErrIO.WithDetails("create backup root").WithCause(err)
	}

	logger := cfg.Logger.With("component", "recovery")
	sessOpts := []session.Option{
		session.WithLogger(cfg.Logger),
		session.WithMetrics(cfg.Metrics),
		session.WithProber(cfg.Prober),
		session.WithCodec(codec.New(codec.WithImageCodec(cfg.ImageCodec), codec.WithLogger(cfg.Logger))),
		session.WithKeepGenerations(cfg.KeepGenerations),
		session.WithLogCompactThreshold(cfg.LogCompactThreshold),
	}

	name := session.Name(cfg.Now(), cfg.PID)
	report, err := Scan(ctx, root, ScanOptions{
		Prune:          true,
		RetentionDays:  cfg.RetentionDays,
		Exclude:        name,
		SelfPID:        cfg.PID,
		LockTimeout:    cfg.LockTimeout,
		Prober:         cfg.Prober,
		Logger:         cfg.Logger,
		Metrics:        cfg.Metrics,
		Now:            cfg.Now,
		SessionOptions: sessOpts,
	})
	if err != nil {
		return nil, err
	}

	r := &DataRecovery{
		cfg:     cfg,
		root:    root,
		logger:  logger,
		metrics: cfg.Metrics,
	}
	for _, e := range report.Entries {
		if e.State == StateCrashed && !e.Pruned {
			r.sessions = append(r.sessions, e.Session)
			continue
		}
		_ = e.Session.Close()
	}

	current := session.New(filepath.Join(root, name), sessOpts...)
	if err := current.Create(cfg.PID); err != nil {
		r.releaseSessions()
		return nil, fmt.Errorf("recovery: create current session: %w", err)
	}
	r.current = current

	r.observer = NewBackupObserver(current, ec, ObserverOptions{
		Debounce:           cfg.Debounce,
		MaxDelay:           cfg.MaxDelay,
		MaxWritesPerSecond: cfg.MaxWritesPerSecond,
		WriteBurst:         cfg.WriteBurst,
		Logger:             cfg.Logger,
		Metrics:            cfg.Metrics,
		Now:                cfg.Now,
	})
	r.observer.Start()

	logger.Info("crash recovery ready",
		"root", root,
		"session", name,
		"recoverable", len(r.sessions),
	)
	return r, nil
}

// Sessions returns the recoverable crashed sessions, newest first.
func (r *DataRecovery) Sessions() []*session.Session {
	return append([]*session.Session(nil), r.sessions...)
}

// HasRecoverableSessions reports whether any crashed session holds a backup.
func (r *DataRecovery) HasRecoverableSessions() bool { return len(r.sessions) > 0 }

// Current returns the session of this process.
func (r *DataRecovery) Current() *session.Session { return r.current }

// Observer returns the backup observer of the current session.
func (r *DataRecovery) Observer() *BackupObserver { return r.observer }

// Root returns the backup root.
func (r *DataRecovery) Root() string { return r.root }

// Forget drops a crashed session from the recoverable list once it has been
// fully restored or deleted. Its directory is removed when empty.
func (r *DataRecovery) Forget(s *session.Session) error {
	for i, cur := range r.sessions {
		if cur != s {
			continue
		}
		r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
		if s.IsEmpty() {
			return s.RemoveFromDisk()
		}
		return s.Release()
	}
	return domain.ErrSessionNotFound.WithDetails(s.Name())
}

// Close stops the observer within the shutdown grace period and releases
// every session. The current session is removed from disk unless
// KeepSessionOnClose is set or the observer failed to stop.
func (r *DataRecovery) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		var errs []error

		stopCtx, cancel := context.WithTimeout(ctx, r.cfg.ShutdownGrace)
		if err := r.observer.Stop(stopCtx); err != nil {
			// Keep the session so the interrupted write stays recoverable.
			errs = append(errs, fmt.Errorf("recovery: stop observer: %w", err))
		}
		cancel()

		if r.cfg.KeepSessionOnClose || len(errs) > 0 {
			errs = append(errs, r.current.Release())
		} else {
			errs = append(errs, r.current.RemoveFromDisk())
		}
		r.releaseSessions()

		r.closeErr = errors.Join(errs...)
		r.logger.Info("crash recovery closed", "error", r.closeErr)
	})
	return r.closeErr
}

func (r *DataRecovery) releaseSessions() {
	for _, s := range r.sessions {
		_ = s.Release()
	}
	r.sessions = nil
}
