package recovery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/libresprite/recovery/internal/core/domain"
	"github.com/libresprite/recovery/internal/infra/liveness"
	"github.com/libresprite/recovery/internal/storage/session"
	"github.com/libresprite/recovery/internal/telemetry/metric"
)

// LockFile guards pruning of the backup root against concurrent instances.
const LockFile = ".recovery.lock"

const lockRetryDelay = 50 * time.Millisecond

// State classifies a session directory found under the backup root.
type State string

// Session states.
const (
	StateCrashed State = "crashed"
	StateRunning State = "running"
	StateEmpty   State = "empty"
	StateExpired State = "expired"
	StateCorrupt State = "corrupt"
)

// Entry is one classified session directory.
type Entry struct {
	Session *session.Session
	State   State
	PID     int
	// Pruned is set when the directory was removed during the scan.
	Pruned bool
	// Err is the reason for StateCorrupt, or the probe failure that made
	// a session count as crashed.
	Err error
}

// Report is the result of a scan. Entries are sorted newest first.
type Report struct {
	Entries []Entry
}

// Recoverable returns the crashed sessions that hold at least one backup,
// newest first.
func (r *Report) Recoverable() []*session.Session {
	var out []*session.Session
	for _, e := range r.Entries {
		if e.State == StateCrashed && !e.Pruned {
			out = append(out, e.Session)
		}
	}
	return out
}

// Close releases every session handle held by the report.
func (r *Report) Close() {
	for _, e := range r.Entries {
		_ = e.Session.Close()
	}
}

// ScanOptions configures Scan.
type ScanOptions struct {
	// Prune removes empty and expired crashed sessions.
	Prune bool
	// RetentionDays marks crashed sessions older than this as expired.
	RetentionDays int
	// Exclude names a session directory to skip, usually the current one.
	Exclude string
	// SelfPID is the calling process. A session it appears to own was left
	// by an earlier process whose pid was reused, so it is never running.
	SelfPID int

	LockTimeout time.Duration
	Prober      liveness.Prober
	Logger      *slog.Logger
	Metrics     *metric.Recorder
	Now         func() time.Time

	SessionOptions []session.Option
}

// Scan classifies every session directory under root. Directories whose
// name does not match the session pattern are ignored. Without Prune the
// scan never modifies the root.
func Scan(ctx context.Context, root string, opts ScanOptions) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	dirents, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Report{}, nil
		}
		return nil, domain.ErrIO.WithDetails("list backup root").WithCause(err)
	}

	prune := opts.Prune
	if prune {
		unlock, err := lockRoot(ctx, root, opts.LockTimeout)
		if err != nil {
			logger.Warn("backup root is locked, skipping pruning", "root", root, "error", err)
			prune = false
		} else {
			defer unlock()
		}
	}

	sessOpts := append([]session.Option{
		session.WithLogger(logger),
		session.WithMetrics(opts.Metrics),
		session.WithProber(opts.Prober),
	}, opts.SessionOptions...)

	var cutoff time.Time
	if opts.RetentionDays > 0 {
		cutoff = now().AddDate(0, 0, -opts.RetentionDays)
	}

	report := &Report{}
	for _, de := range dirents {
		if err := ctx.Err(); err != nil {
			report.Close()
			return nil, err
		}
		if !de.IsDir() || de.Name() == opts.Exclude {
			continue
		}
		if _, _, ok := session.ParseName(de.Name()); !ok {
			continue
		}

		s := session.New(filepath.Join(root, de.Name()), sessOpts...)
		e := classify(s, cutoff, opts.SelfPID)
		if prune && (e.State == StateEmpty || e.State == StateExpired) {
			if err := s.RemoveFromDisk(); err != nil {
				logger.Warn("cannot prune session", "session", s.Name(), "error", err)
			} else {
				e.Pruned = true
				opts.Metrics.AddPruned(1)
				logger.Info("pruned session", "session", s.Name(), "state", e.State)
			}
		}
		if e.State == StateCorrupt {
			logger.Warn("ignoring corrupt session", "session", s.Name(), "error", e.Err)
		}
		report.Entries = append(report.Entries, e)
	}

	sort.SliceStable(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i].Session, report.Entries[j].Session
		if !a.CreatedAt().Equal(b.CreatedAt()) {
			return a.CreatedAt().After(b.CreatedAt())
		}
		return a.Name() > b.Name()
	})

	counts := map[State]int{}
	for _, e := range report.Entries {
		if !e.Pruned {
			counts[e.State]++
		}
	}
	for _, st := range []State{StateCrashed, StateRunning, StateEmpty, StateExpired, StateCorrupt} {
		opts.Metrics.SetSessions(string(st), counts[st])
	}
	return report, nil
}

func classify(s *session.Session, cutoff time.Time, self int) Entry {
	e := Entry{Session: s}
	if err := s.Validate(); err != nil {
		e.State, e.Err = StateCorrupt, err
		return e
	}
	e.PID, _ = s.PID()

	alive, err := s.Probe()
	switch {
	case self > 0 && e.PID == self:
	case err != nil:
		// Unknown liveness counts as crashed.
		e.Err = err
	case alive:
		e.State = StateRunning
		return e
	}

	switch {
	case !cutoff.IsZero() && s.CreatedAt().Before(cutoff):
		e.State = StateExpired
	case s.IsEmpty():
		e.State = StateEmpty
	default:
		e.State = StateCrashed
	}
	return e
}

func lockRoot(ctx context.Context, root string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lock := flock.New(filepath.Join(root, LockFile))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, errors.New("lock not acquired")
	}
	return func() { _ = lock.Unlock() }, nil
}
