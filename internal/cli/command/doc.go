// Package command defines the recoveryctl commands.
//
//   - root.go: application, global flags and configuration setup
//   - sessions.go: list, show, delete and prune sessions
//   - backup.go: restore and delete single backups
//   - watch.go: follow the backup root and serve metrics
//   - config.go: show and test configuration
//   - version.go: build information
//
// Commands follow a consistent pattern of loading configuration, calling
// the storage packages directly and formatting output.
package command
