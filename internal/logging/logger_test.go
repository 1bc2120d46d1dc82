package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file and parent directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "conductor.log")

		logger, err := NewLogger(Options{File: path, Level: LevelDebug})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("hello")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Errorf("log file was not created at %s: %v", path, err)
		}
	})

	t.Run("writes to stderr when file is empty", func(t *testing.T) {
		logger, err := NewLogger(Options{Level: LevelInfo})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.closer != nil {
			t.Error("expected no closer for stderr logger")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close on stderr logger returned %v", err)
		}
	})

	t.Run("defaults to INFO for invalid level", func(t *testing.T) {
		logger := NewWriterLogger(&bytes.Buffer{}, "invalid")
		if got := logger.Level(); got != LevelInfo {
			t.Errorf("Level() = %q, want INFO", got)
		}
	})
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if lines[0]["level"] != "WARN" || lines[1]["level"] != "ERROR" {
		t.Errorf("unexpected levels: %v, %v", lines[0]["level"], lines[1]["level"])
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelError)
	child := logger.WithComponent("scheduler")

	child.Info("dropped")
	logger.SetLevel(LevelDebug)
	child.Debug("kept")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	if lines[0]["msg"] != "kept" {
		t.Errorf("msg = %v, want kept", lines[0]["msg"])
	}
	if got := child.Level(); got != LevelDebug {
		t.Errorf("child Level() = %q, want DEBUG", got)
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelDebug)

	logger.WithComponent("coordinator").
		WithTask("t-1").
		WithWorker("w-1").
		WithExecution("exec-1").
		Info("task dispatched", "attempt", 1)

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	want := map[string]any{
		"component":    "coordinator",
		"task_id":      "t-1",
		"worker_id":    "w-1",
		"execution_id": "exec-1",
		"attempt":      float64(1),
	}
	for k, v := range want {
		if lines[0][k] != v {
			t.Errorf("%s = %v, want %v", k, lines[0][k], v)
		}
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelDebug)

	if logger.With() != logger {
		t.Error("With() with no args should return the same logger")
	}

	// Non-string keys are skipped
	logger.With("tenant_id", "org1", 42, "ignored").Info("msg")

	lines := decodeLines(t, buf.Bytes())
	if lines[0]["tenant_id"] != "org1" {
		t.Errorf("tenant_id = %v, want org1", lines[0]["tenant_id"])
	}
	if _, ok := lines[0]["42"]; ok {
		t.Error("non-string key should not be logged")
	}
}

func TestChildDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWriterLogger(&buf, LevelDebug).WithComponent("bus")
	_ = parent.WithTask("t-9")

	parent.Info("parent only")

	lines := decodeLines(t, buf.Bytes())
	if _, ok := lines[0]["task_id"]; ok {
		t.Error("parent logger should not carry child attributes")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("discarded", "key", "value")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidLevels(t *testing.T) {
	levels := ValidLevels()
	if len(levels) != 4 {
		t.Fatalf("expected 4 levels, got %d", len(levels))
	}
	if levels[0] != LevelDebug || levels[3] != LevelError {
		t.Errorf("unexpected level order: %v", levels)
	}
}

func TestClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.log")
	logger, err := NewLogger(Options{File: path})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.log")
	logger, err := NewLogger(Options{File: path, Level: LevelDebug})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	const goroutines = 10
	const perGoroutine = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l := logger.WithWorker("w").With("goroutine", n)
			for j := 0; j < perGoroutine; j++ {
				l.Info("concurrent", "j", j)
			}
		}(i)
	}
	wg.Wait()
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := decodeLines(t, content)
	if len(lines) != goroutines*perGoroutine {
		t.Errorf("expected %d lines, got %d", goroutines*perGoroutine, len(lines))
	}
}
