// Package recovery coordinates crash recovery at process start and keeps
// the current process's session up to date while documents are edited.
//
// At startup DataRecovery scans the backup root, classifies every session
// directory, offers the crashed ones newest first and creates the session of
// the current process. A BackupObserver then turns document history
// notifications into debounced, rate-limited backup writes performed on a
// single worker goroutine, off the editing path.
//
// Scan is the read-only variant of the startup triage used by tooling.
package recovery
