// Package fsutil holds the durable-write primitives of the backup store:
// temp-then-rename file writes, directory publishing and directory fsync.
package fsutil
