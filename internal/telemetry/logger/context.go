package logger

import "context"

type contextKey string

const (
	loggerKey   contextKey = "recovery.logger"
	sessionKey  contextKey = "recovery.session"
	documentKey contextKey = "recovery.document"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Returns the default logger if none is set.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithSession records the session name being worked on.
func WithSession(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, sessionKey, name)
}

// SessionFromContext returns the session name, or "".
func SessionFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionKey).(string); ok {
		return s
	}
	return ""
}

// WithDocument records the document key being worked on.
func WithDocument(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, documentKey, key)
}

// DocumentFromContext returns the document key, or "".
func DocumentFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(documentKey).(string); ok {
		return s
	}
	return ""
}

// L is a shorthand for FromContext that also adds the session and document
// recorded in the context.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if s := SessionFromContext(ctx); s != "" {
		l = l.With("session", s)
	}
	if d := DocumentFromContext(ctx); d != "" {
		l = l.With("document", d)
	}
	return l
}
