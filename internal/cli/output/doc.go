// Package output formats recoveryctl output.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: table rendering with wide mode support
//   - json.go, yaml.go: machine-readable output
//   - progress.go: progress line for multi-step operations
//   - export.go: PNG export of restored documents
package output
