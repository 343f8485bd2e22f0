package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRedactPath(t *testing.T) {
	home := filepath.FromSlash("/home/ana")
	tests := []struct {
		path string
		want string
	}{
		{filepath.FromSlash("/home/ana/.config/sprite/sessions"), filepath.FromSlash("~/.config/sprite/sessions")},
		{home, "~"},
		{filepath.FromSlash("/home/anabel/x"), filepath.FromSlash("/home/anabel/x")},
		{filepath.FromSlash("/tmp/x"), filepath.FromSlash("/tmp/x")},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.path, home); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
	if got := RedactPath("/x", ""); got != "/x" {
		t.Errorf("empty home changed the path: %q", got)
	}
}

func TestRedactHome_Group(t *testing.T) {
	home := filepath.FromSlash("/home/ana")
	a := slog.Group("paths",
		slog.String("root", filepath.Join(home, "sessions")),
		slog.Int("n", 1),
	)
	got := redactHome(a, home)
	attrs := got.Value.Group()
	if attrs[0].Value.String() != filepath.FromSlash("~/sessions") {
		t.Errorf("root = %q", attrs[0].Value.String())
	}
	if attrs[1].Value.Int64() != 1 {
		t.Errorf("n = %v", attrs[1].Value)
	}
}

func TestNew_RedactsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}

	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "text", Output: &buf, RedactHome: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("scan", "root", filepath.Join(home, "sessions"))

	if strings.Contains(buf.String(), home+string(filepath.Separator)) {
		t.Errorf("home directory leaked: %s", buf.String())
	}
}
