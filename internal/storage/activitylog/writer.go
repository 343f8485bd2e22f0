package activitylog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/libresprite/recovery/internal/storage/fsutil"
)

// File format constants.
const (
	FileName        = "activity.log"
	MagicBytes      = "SPRLOG\x00\x01"
	MagicBytesSize  = 8
	DefaultFilePerm = 0o600
)

// DefaultCompactThreshold is the record count above which the log is
// rewritten with live records only.
const DefaultCompactThreshold = 1000

// Config configures a log writer.
type Config struct {
	// Path is the log file path.
	Path string

	// CompactThreshold triggers compaction once the record count exceeds it
	// and at least half of the records are dead.
	CompactThreshold int
}

// DefaultConfig returns the default writer configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:             path,
		CompactThreshold: DefaultCompactThreshold,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.CompactThreshold <= 0 {
		cfg.CompactThreshold = DefaultCompactThreshold
	}
}

// Writer appends entries to a log file. Each append is fsynced before it
// returns. Writer is safe for concurrent use.
type Writer struct {
	cfg Config

	mu      sync.Mutex
	file    *os.File
	records int
	live    map[string]*Entry
	closed  bool
}

// Open opens the log at cfg.Path for appending, creating it when missing.
// A torn tail left by a crash is truncated away.
func Open(cfg Config) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("activitylog: path is required")
	}
	applyDefaults(&cfg)

	w := &Writer{cfg: cfg, live: make(map[string]*Entry)}

	res, err := ReadFile(cfg.Path)
	switch {
	case err == nil:
		if res.Torn {
			if err := os.Truncate(cfg.Path, res.ValidSize); err != nil {
				return nil, fmt.Errorf("activitylog: truncate torn tail: %w", err)
			}
		}
		w.records = len(res.Entries)
		w.live = Live(res.Entries)
	case errors.Is(err, os.ErrNotExist):
		if err := fsutil.WriteFileAtomic(cfg.Path, []byte(MagicBytes), DefaultFilePerm); err != nil {
			return nil, fmt.Errorf("activitylog: create: %w", err)
		}
	default:
		return nil, err
	}

	if err := w.openFileLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) openFileLocked() error {
	f, err := os.OpenFile(w.cfg.Path, os.O_WRONLY|os.O_APPEND, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("activitylog: open: %w", err)
	}
	w.file = f
	return nil
}

// Append writes e and fsyncs the file.
func (w *Writer) Append(e *Entry) error {
	frame, err := encodeEntryFrame(e)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, err := w.file.Write(frame); err != nil {
		return fmt.Errorf("activitylog: write: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("activitylog: sync: %w", err)
	}

	w.records++
	switch e.OpType {
	case OpTypeSave:
		w.live[e.DocKey] = e
	case OpTypeRemove:
		delete(w.live, e.DocKey)
	}
	return nil
}

// Records returns the number of records in the file.
func (w *Writer) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Live returns the latest save per document that has not been removed.
func (w *Writer) Live() map[string]*Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]*Entry, len(w.live))
	for k, v := range w.live {
		out[k] = v
	}
	return out
}

// NeedsCompaction reports whether Compact would shrink the log noticeably.
func (w *Writer) NeedsCompaction() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records > w.cfg.CompactThreshold && w.records >= 2*len(w.live)
}

// Compact atomically rewrites the log with live records only, in their
// original order.
func (w *Writer) Compact() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	keep := make([]*Entry, 0, len(w.live))
	for _, e := range w.live {
		keep = append(keep, e)
	}
	sort.Slice(keep, func(i, j int) bool {
		if keep[i].Timestamp != keep[j].Timestamp {
			return keep[i].Timestamp < keep[j].Timestamp
		}
		return keep[i].ID < keep[j].ID
	})

	buf := []byte(MagicBytes)
	for _, e := range keep {
		frame, err := encodeEntryFrame(e)
		if err != nil {
			return err
		}
		buf = append(buf, frame...)
	}

	// The file must be closed before it can be replaced on Windows.
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("activitylog: close before compaction: %w", err)
	}
	writeErr := fsutil.WriteFileAtomic(w.cfg.Path, buf, DefaultFilePerm)
	if err := w.openFileLocked(); err != nil {
		w.closed = true
		return errors.Join(writeErr, err)
	}
	if writeErr != nil {
		return fmt.Errorf("activitylog: compact: %w", writeErr)
	}

	w.records = len(keep)
	return nil
}

// Close closes the file. Further appends fail with ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("activitylog: close: %w", err)
	}
	return nil
}
