package session

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/libresprite/recovery/internal/storage/codec"
)

// Backup is one document's snapshot inside a session.
type Backup struct {
	key         string
	dir         string
	generations []uint64 // newest first
	info        codec.DocumentInfo
	infoErr     error
	description string
	modTime     time.Time
	size        int64
}

// Key returns the document key (e.g. "doc-7").
func (b *Backup) Key() string { return b.key }

// Dir returns the directory holding all generations of this backup.
func (b *Backup) Dir() string { return b.dir }

// Description returns a human-readable summary for recovery listings.
func (b *Backup) Description() string { return b.description }

// Generation returns the newest published generation.
func (b *Backup) Generation() uint64 { return b.generations[0] }

// Generations returns the published generations, newest first.
func (b *Backup) Generations() []uint64 {
	return append([]uint64(nil), b.generations...)
}

// Info returns the header of the newest generation, or the error that made
// it unreadable.
func (b *Backup) Info() (codec.DocumentInfo, error) { return b.info, b.infoErr }

// ModTime returns when the newest generation was published.
func (b *Backup) ModTime() time.Time { return b.modTime }

// Size returns the size in bytes of the newest generation.
func (b *Backup) Size() int64 { return b.size }

func (b *Backup) generationDir(gen uint64) string {
	return filepath.Join(b.dir, generationName(gen))
}

// listGenerations returns the published generations in dir, newest first.
func listGenerations(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var gens []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if gen, ok := parseGeneration(e.Name()); ok {
			gens = append(gens, gen)
		}
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] > gens[j] })
	return gens, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
