package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestWithLogger_FromContext(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithLogger(context.Background(), l)
	FromContext(ctx).Info("test message")

	if buf.Len() == 0 {
		t.Error("logger from context should produce output")
	}
}

func TestFromContext_Default(t *testing.T) {
	if FromContext(context.Background()) != Default() {
		t.Error("FromContext without logger should return Default()")
	}
}

func TestL_AddsSessionAndDocument(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithLogger(context.Background(), l)
	ctx = WithSession(ctx, "20261017-093000-4242")
	ctx = WithDocument(ctx, "doc-7")
	L(ctx).Info("restored")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["session"] != "20261017-093000-4242" {
		t.Errorf("session = %v", entry["session"])
	}
	if entry["document"] != "doc-7" {
		t.Errorf("document = %v", entry["document"])
	}
}

func TestL_WithoutValues(t *testing.T) {
	ctx := context.Background()
	if SessionFromContext(ctx) != "" || DocumentFromContext(ctx) != "" {
		t.Error("empty context should carry no session or document")
	}
	if L(ctx) == nil {
		t.Error("L() returned nil")
	}
}
