package logger

import (
	"log/slog"
	"path/filepath"
	"strings"
)

// redactHome replaces a leading home directory in string values with "~".
// Groups are handled recursively.
func redactHome(a slog.Attr, home string) slog.Attr {
	if home == "" {
		return a
	}
	switch a.Value.Kind() {
	case slog.KindString:
		if v := a.Value.String(); hasPathPrefix(v, home) {
			return slog.String(a.Key, RedactPath(v, home))
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactHome(attr, home)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// RedactPath replaces home at the start of path with "~".
func RedactPath(path, home string) string {
	if !hasPathPrefix(path, home) {
		return path
	}
	return "~" + path[len(strings.TrimRight(home, string(filepath.Separator))):]
}

func hasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, string(filepath.Separator))
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == filepath.Separator
}
