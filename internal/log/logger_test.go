package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	return out
}

func TestSetupWriter(t *testing.T) {
	logger = nil
	once = *new(sync.Once)

	var buf bytes.Buffer
	SetupWriter(&buf, "warn")
	if logger == nil {
		t.Fatal("logger should not be nil")
	}

	Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at WARN level, got %q", buf.String())
	}
	Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn should be written at WARN level")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithComponent(t *testing.T) {
	buf := captureLogger(t)

	WithComponent("engine").Info("hello")

	out := decodeLine(t, buf)
	if out["component"] != "engine" {
		t.Errorf("expected component 'engine', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithJob(t *testing.T) {
	buf := captureLogger(t)

	WithJob("job-123").Info("job msg")

	out := decodeLine(t, buf)
	if out["job_id"] != "job-123" {
		t.Errorf("expected job_id 'job-123', got %v", out["job_id"])
	}
}

func TestWithChat(t *testing.T) {
	buf := captureLogger(t)

	WithChat(1818672915).Info("chat msg")

	out := decodeLine(t, buf)
	// JSON numbers decode as float64.
	if out["chat_id"] != float64(1818672915) {
		t.Errorf("expected chat_id 1818672915, got %v", out["chat_id"])
	}
}
