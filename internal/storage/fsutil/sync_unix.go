//go:build !windows

package fsutil

import (
	"fmt"
	"os"
)

// SyncDir fsyncs a directory so that renames and creations inside it survive
// a power loss.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("fsutil: open directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("fsutil: sync directory: %w", err)
	}
	return nil
}

func replace(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}
