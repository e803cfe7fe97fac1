package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInitWriter_JSONWithService(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	l := InitWriter(&buf, "ohlcbridge", slog.LevelWarn)
	l.Info("dropped")
	l.Warn("kept", slog.String("component", "agg"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line above level, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["service"] != "ohlcbridge" || rec["component"] != "agg" || rec["msg"] != "kept" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSession_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := Session(ctx); id != "" {
		t.Errorf("expected empty session, got %q", id)
	}

	ctx = WithSession(ctx, "127.0.0.1:5555-1")
	if id := Session(ctx); id != "127.0.0.1:5555-1" {
		t.Errorf("expected '127.0.0.1:5555-1', got %q", id)
	}
}

func TestNewSessionID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	id := NewSessionID("10.0.0.1:4000", ts)

	if !strings.HasPrefix(id, "10.0.0.1:4000-") {
		t.Errorf("expected id to start with remote address, got %s", id)
	}
	if !strings.Contains(id, "123456789") {
		t.Errorf("expected id to contain nanoseconds, got %s", id)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	FromContext(context.Background(), base).Info("a")
	if strings.Contains(buf.String(), "session") {
		t.Errorf("unexpected session attr: %s", buf.String())
	}

	buf.Reset()
	FromContext(WithSession(context.Background(), "s1"), base).Info("b")
	if !strings.Contains(buf.String(), `"session":"s1"`) {
		t.Errorf("expected session attr, got %s", buf.String())
	}
}
