// Package logger provides structured logging for the recovery tooling.
//
// It wraps log/slog:
//
//   - logger.go: configuration, levels and the process-wide default
//   - context.go: context propagation of the logger, session and document
//   - redact.go: home directory masking in path values
//
// Components that take a *slog.Logger receive Logger.Slog().
package logger
