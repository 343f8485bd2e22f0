// Package main provides the entry point for recoveryctl.
//
// recoveryctl inspects the crash recovery backup root outside the editor:
//
//   - Session management (list, show, delete, prune)
//   - Backup restore to PNG frames and single backup deletion
//   - Watching the root and serving Prometheus metrics
//
// Usage:
//
//	recoveryctl sessions list
//	recoveryctl -o json sessions show 20261017-093000-4242
//	recoveryctl backup restore --out ./rescued 20261017-093000-4242 doc-01J...
//	recoveryctl watch --metrics-addr :9464
package main
