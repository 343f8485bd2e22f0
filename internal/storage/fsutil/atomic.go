package fsutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// testHookBeforeRename runs after the temp file is durable and before it is
// renamed into place. A non-nil error aborts the write.
var testHookBeforeRename func(tempPath string) error

// RenameError reports a failed publish together with the leftover temp path.
type RenameError struct {
	Err      error
	TempPath string
}

func (e *RenameError) Error() string { return "fsutil: rename " + e.TempPath + ": " + e.Err.Error() }
func (e *RenameError) Unwrap() error { return e.Err }

// WriteFileAtomic writes data to a temp file next to filename, fsyncs it and
// renames it over filename, then fsyncs the parent directory. Readers see
// either the old content or the new content, never a mix.
func WriteFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("fsutil: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(filename)+"-*")
	if err != nil {
		return fmt.Errorf("fsutil: create temp file: %w", err)
	}
	tempPath := tmp.Name()

	published := false
	defer func() {
		if published {
			return
		}
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove temporary file", "path", tempPath, "error", err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("fsutil: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsutil: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fsutil: close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, perm); err != nil {
		return fmt.Errorf("fsutil: chmod temp file: %w", err)
	}

	if testHookBeforeRename != nil {
		if err := testHookBeforeRename(tempPath); err != nil {
			return err
		}
	}

	if err := replace(tempPath, filename); err != nil {
		return &RenameError{Err: err, TempPath: tempPath}
	}
	published = true

	return SyncDir(dir)
}

// WriteFileSync creates (or truncates) filename, writes data and fsyncs it.
// It is meant for files inside a directory that is published as a whole.
func WriteFileSync(filename string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("fsutil: open %s: %w", filepath.Base(filename), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("fsutil: write %s: %w", filepath.Base(filename), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsutil: sync %s: %w", filepath.Base(filename), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("fsutil: close %s: %w", filepath.Base(filename), err)
	}
	return nil
}

// PublishDir renames a fully written directory to its final name and fsyncs
// the parent. The target must not exist.
func PublishDir(tempDir, finalDir string) error {
	if _, err := os.Stat(finalDir); err == nil {
		return fmt.Errorf("fsutil: publish %s: %w", filepath.Base(finalDir), os.ErrExist)
	}
	if err := SyncDir(tempDir); err != nil {
		return err
	}
	if err := os.Rename(tempDir, finalDir); err != nil {
		return &RenameError{Err: err, TempPath: tempDir}
	}
	return SyncDir(filepath.Dir(finalDir))
}
