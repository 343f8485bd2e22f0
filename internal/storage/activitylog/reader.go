package activitylog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadResult is the outcome of reading a log file.
type ReadResult struct {
	Entries []*Entry
	// ValidSize is the byte length of the intact prefix (magic included).
	ValidSize int64
	// Torn is set when trailing bytes after ValidSize could not be decoded.
	Torn bool
}

// ReadFile reads every intact entry of the log at path. A torn or corrupted
// tail is not an error; a missing file or a bad magic is.
func ReadFile(path string) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("activitylog: open: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("activitylog: stat: %w", err)
	}
	res, err := read(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	res.Torn = res.ValidSize < stat.Size()
	return res, nil
}

func read(r io.Reader) (*ReadResult, error) {
	magic := make([]byte, MagicBytesSize)
	if _, err := io.ReadFull(r, magic); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrInvalidMagic
		}
		return nil, fmt.Errorf("activitylog: read magic: %w", err)
	}
	if string(magic) != MagicBytes {
		return nil, ErrInvalidMagic
	}

	res := &ReadResult{ValidSize: MagicBytesSize}
	for {
		e, n, err := readOneEntry(r)
		if err != nil {
			if errors.Is(err, io.EOF) ||
				errors.Is(err, io.ErrUnexpectedEOF) ||
				errors.Is(err, ErrCorruptedEntry) ||
				errors.Is(err, ErrChecksumMismatch) ||
				errors.Is(err, ErrInvalidEntryType) {
				return res, nil
			}
			return nil, err
		}
		res.Entries = append(res.Entries, e)
		res.ValidSize += n
	}
}

func readOneEntry(r io.Reader) (*Entry, int64, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, 0, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < minFrameSize || length > maxFrameSize {
		return nil, 0, ErrCorruptedEntry
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, 0, err
	}
	e, err := decodeEntryFrame(frame)
	if err != nil {
		return nil, 0, err
	}
	return e, int64(4 + length), nil
}
