package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/libresprite/recovery/internal/core/domain"
	"github.com/libresprite/recovery/internal/doc"
	"github.com/libresprite/recovery/internal/storage/session"
	"github.com/libresprite/recovery/internal/telemetry/metric"
)

// ErrObserverStopped is returned by Flush after Stop.
var ErrObserverStopped = errors.New("recovery: backup observer stopped")

// DocumentSource is the set of open documents an observer follows.
type DocumentSource interface {
	Documents() []*doc.Document
	AddObserver(o doc.DocumentsObserver)
	RemoveObserver(o doc.DocumentsObserver)
}

// ObserverOptions configures a BackupObserver.
type ObserverOptions struct {
	Debounce           time.Duration
	MaxDelay           time.Duration
	MaxWritesPerSecond float64
	WriteBurst         int
	Logger             *slog.Logger
	Metrics            *metric.Recorder
	Now                func() time.Time
}

type opKind int

const (
	opSave opKind = iota + 1
	opRemove
)

type pendingOp struct {
	kind  opKind
	doc   *doc.Document
	first time.Time
	due   time.Time
}

// BackupObserver schedules backup writes for the documents of a source.
// Notifications only record work; a single worker goroutine performs the
// writes so the editing path never blocks on disk I/O.
type BackupObserver struct {
	session *session.Session
	source  DocumentSource
	logger  *slog.Logger
	metrics *metric.Recorder
	now     func() time.Time

	debounce time.Duration
	maxDelay time.Duration
	limiter  *rate.Limiter

	mu      sync.Mutex
	pending map[doc.ObjectID]*pendingOp
	tracked map[doc.ObjectID]*doc.Document
	started bool
	stopped bool
	lastErr error

	wake    chan struct{}
	flushCh chan chan error
	stopCh  chan struct{}
	doneCh  chan struct{}

	runCtx    context.Context
	cancelRun context.CancelFunc
	stopOnce  sync.Once
}

// NewBackupObserver returns an observer writing into s. Call Start to
// subscribe and launch the worker.
func NewBackupObserver(s *session.Session, src DocumentSource, opts ObserverOptions) *BackupObserver {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MaxDelay < opts.Debounce {
		opts.MaxDelay = opts.Debounce
	}
	if opts.WriteBurst <= 0 {
		opts.WriteBurst = DefaultWriteBurst
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	limit := rate.Inf
	if opts.MaxWritesPerSecond > 0 {
		limit = rate.Limit(opts.MaxWritesPerSecond)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &BackupObserver{
		session:   s,
		source:    src,
		logger:    opts.Logger.With("component", "backup-observer"),
		metrics:   opts.Metrics,
		now:       opts.Now,
		debounce:  opts.Debounce,
		maxDelay:  opts.MaxDelay,
		limiter:   rate.NewLimiter(limit, opts.WriteBurst),
		pending:   make(map[doc.ObjectID]*pendingOp),
		tracked:   make(map[doc.ObjectID]*doc.Document),
		wake:      make(chan struct{}, 1),
		flushCh:   make(chan chan error),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		runCtx:    runCtx,
		cancelRun: cancel,
	}
}

// Start subscribes to the source and every open document, then starts the
// worker. It is a no-op after the first call.
func (o *BackupObserver) Start() {
	o.mu.Lock()
	if o.started || o.stopped {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	o.source.AddObserver(o)
	for _, d := range o.source.Documents() {
		o.track(d)
	}
	go o.run()
}

// Stop unsubscribes from all documents, drops work that has not started
// and waits for an in-flight write to finish or ctx to expire.
func (o *BackupObserver) Stop(ctx context.Context) error {
	o.stopOnce.Do(func() {
		o.source.RemoveObserver(o)

		o.mu.Lock()
		o.stopped = true
		started := o.started
		docs := make([]*doc.Document, 0, len(o.tracked))
		for _, d := range o.tracked {
			docs = append(docs, d)
		}
		o.tracked = make(map[doc.ObjectID]*doc.Document)
		dropped := len(o.pending)
		o.pending = make(map[doc.ObjectID]*pendingOp)
		o.mu.Unlock()

		for _, d := range docs {
			d.History().RemoveObserver(o)
		}
		if dropped > 0 {
			o.logger.Debug("dropping pending backups", "count", dropped)
		}
		o.metrics.SetPending(0)
		o.cancelRun()
		close(o.stopCh)
		if !started {
			close(o.doneCh)
		}
	})

	select {
	case <-o.doneCh:
		return nil
	case <-ctx.Done():
		o.logger.Warn("backup still in flight at shutdown", "error", ctx.Err())
		return ctx.Err()
	}
}

// Flush performs every pending write now and waits for it to finish.
func (o *BackupObserver) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case o.flushCh <- reply:
	case <-o.stopCh:
		return ErrObserverStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of scheduled writes.
func (o *BackupObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// LastError returns the most recent write failure.
func (o *BackupObserver) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// OnAddDocument starts following d's history.
func (o *BackupObserver) OnAddDocument(d *doc.Document) { o.track(d) }

// OnRemoveDocument stops following d and schedules removal of its backup.
func (o *BackupObserver) OnRemoveDocument(d *doc.Document) {
	d.History().RemoveObserver(o)

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	delete(o.tracked, d.ID())
	now := o.now()
	o.pending[d.ID()] = &pendingOp{kind: opRemove, doc: d, first: now, due: now}
	n := len(o.pending)
	o.mu.Unlock()

	o.metrics.SetPending(n)
	o.notify()
}

// OnAddUndoState schedules a backup of d.
func (o *BackupObserver) OnAddUndoState(d *doc.Document) { o.scheduleSave(d) }

// OnAfterUndo schedules a backup of d.
func (o *BackupObserver) OnAfterUndo(d *doc.Document) { o.scheduleSave(d) }

// OnAfterRedo schedules a backup of d.
func (o *BackupObserver) OnAfterRedo(d *doc.Document) { o.scheduleSave(d) }

// OnClearRedo schedules a backup of d.
func (o *BackupObserver) OnClearRedo(d *doc.Document) { o.scheduleSave(d) }

func (o *BackupObserver) track(d *doc.Document) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	_, ok := o.tracked[d.ID()]
	o.tracked[d.ID()] = d
	o.mu.Unlock()

	if !ok {
		d.History().AddObserver(o)
	}
}

func (o *BackupObserver) scheduleSave(d *doc.Document) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	if _, ok := o.tracked[d.ID()]; !ok {
		o.mu.Unlock()
		return
	}
	now := o.now()
	op, ok := o.pending[d.ID()]
	if !ok || op.kind != opSave {
		op = &pendingOp{kind: opSave, doc: d, first: now}
		o.pending[d.ID()] = op
	}
	// Trailing debounce, bounded by maxDelay from the first edit.
	op.due = now.Add(o.debounce)
	if limit := op.first.Add(o.maxDelay); op.due.After(limit) {
		op.due = limit
	}
	n := len(o.pending)
	o.mu.Unlock()

	o.metrics.SetPending(n)
	o.notify()
}

func (o *BackupObserver) notify() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *BackupObserver) run() {
	defer close(o.doneCh)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		var timerC <-chan time.Time
		if next, ok := o.nextDue(); ok {
			timer.Reset(max(next.Sub(o.now()), 0))
			timerC = timer.C
		}

		select {
		case <-o.stopCh:
			return
		case <-o.wake:
		case <-timerC:
		case reply := <-o.flushCh:
			reply <- o.process(o.take(time.Time{}))
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		o.process(o.take(o.now()))
	}
}

func (o *BackupObserver) nextDue() (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var next time.Time
	for _, op := range o.pending {
		if next.IsZero() || op.due.Before(next) {
			next = op.due
		}
	}
	return next, !next.IsZero()
}

// take removes and returns the operations due at now, oldest first. A zero
// now takes everything.
func (o *BackupObserver) take(now time.Time) []*pendingOp {
	o.mu.Lock()
	var ops []*pendingOp
	for id, op := range o.pending {
		if now.IsZero() || !op.due.After(now) {
			ops = append(ops, op)
			delete(o.pending, id)
		}
	}
	n := len(o.pending)
	o.mu.Unlock()

	if len(ops) > 0 {
		o.metrics.SetPending(n)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].due.Before(ops[j].due) })
	return ops
}

func (o *BackupObserver) process(ops []*pendingOp) error {
	var errs []error
	for _, op := range ops {
		if err := o.apply(op); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *BackupObserver) apply(op *pendingOp) error {
	var err error
	switch op.kind {
	case opRemove:
		err = o.session.RemoveDocument(op.doc)
	case opSave:
		if err = o.limiter.Wait(o.runCtx); err != nil {
			// Stopped while throttled.
			return nil
		}
		// A started write is never canceled; Stop bounds the wait instead.
		err = o.session.SaveDocumentChanges(context.Background(), op.doc)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrSessionClosed) {
		o.logger.Debug("session closed, backup skipped", "document", session.KeyFor(op.doc.ID()))
	} else {
		o.logger.Error("backup failed", "document", session.KeyFor(op.doc.ID()), "error", err)
	}
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
	return err
}
