package activitylog

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// headerSize is the size of a frame header: length (4) + crc (4).
	headerSize = 8

	// minFrameSize is crc (4) + type (1).
	minFrameSize = 5

	// maxFrameSize bounds a single record; anything larger is corruption.
	maxFrameSize = 1 << 20
)

// Errors for log operations.
var (
	ErrCorruptedEntry   = errors.New("activitylog: corrupted entry")
	ErrChecksumMismatch = errors.New("activitylog: checksum mismatch")
	ErrInvalidEntryType = errors.New("activitylog: invalid entry type")
	ErrInvalidMagic     = errors.New("activitylog: invalid magic bytes")
	ErrClosed           = errors.New("activitylog: writer is closed")
)

// OpType is the kind of activity recorded.
type OpType uint8

const (
	OpTypeUnspecified OpType = iota
	// OpTypeSave records a published backup generation.
	OpTypeSave
	// OpTypeRemove is a tombstone for a document whose backup was deleted.
	OpTypeRemove
)

// String returns the lowercase op name.
func (o OpType) String() string {
	switch o {
	case OpTypeSave:
		return "save"
	case OpTypeRemove:
		return "remove"
	default:
		return "unspecified"
	}
}

// Entry is one activity record.
//
// Timestamp uses Unix milliseconds.
type Entry struct {
	ID          string
	OpType      OpType
	Timestamp   int64
	DocKey      string
	Generation  uint64
	Description string
	Digest      uint64
}

// Time returns the entry timestamp.
func (e *Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// NewSaveEntry records that generation gen of docKey was published.
func NewSaveEntry(docKey string, gen uint64, description string, digest uint64) *Entry {
	now := time.Now()
	return &Entry{
		ID:          newID(now),
		OpType:      OpTypeSave,
		Timestamp:   now.UnixMilli(),
		DocKey:      docKey,
		Generation:  gen,
		Description: description,
		Digest:      digest,
	}
}

// NewRemoveEntry records that the backup of docKey was deleted.
func NewRemoveEntry(docKey string) *Entry {
	now := time.Now()
	return &Entry{
		ID:        newID(now),
		OpType:    OpTypeRemove,
		Timestamp: now.UnixMilli(),
		DocKey:    docKey,
	}
}
