//go:build windows

package fsutil

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// SyncDir is a no-op on Windows: directories cannot be opened for fsync and
// MoveFileEx with MOVEFILE_WRITE_THROUGH already flushes the rename.
func SyncDir(string) error {
	return nil
}

func replace(oldpath, newpath string) error {
	from, err := windows.UTF16PtrFromString(oldpath)
	if err != nil {
		return fmt.Errorf("convert %q to UTF16: %w", oldpath, err)
	}
	to, err := windows.UTF16PtrFromString(newpath)
	if err != nil {
		return fmt.Errorf("convert %q to UTF16: %w", newpath, err)
	}
	flags := uint32(windows.MOVEFILE_REPLACE_EXISTING | windows.MOVEFILE_WRITE_THROUGH)
	if err := windows.MoveFileEx(from, to, flags); err != nil {
		return fmt.Errorf("MoveFileEx: %w", err)
	}
	return nil
}
