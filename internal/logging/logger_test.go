package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readLines(t *testing.T, dir string) []map[string]any {
	t.Helper()

	content, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("writes log file in run directory", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("hello")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		if _, err := os.Stat(filepath.Join(dir, LogFileName)); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.out != nil {
			t.Error("expected no file output when dir is empty")
		}
	})
}

func TestLogLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	entries := readLines(t, dir)
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(entries))
	}
	if entries[0]["level"] != "WARN" || entries[1]["level"] != "ERROR" {
		t.Errorf("unexpected levels: %v, %v", entries[0]["level"], entries[1]["level"])
	}
}

func TestContextPropagation(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	child := logger.WithRun("run-1").WithMarker("K00001").WithStage("align")
	child.Info("stage finished", "duration_ms", 12)

	// The parent must not inherit child attributes.
	logger.Info("parent")
	logger.Close()

	entries := readLines(t, dir)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	for key, want := range map[string]string{"run_id": "run-1", "marker": "K00001", "stage": "align"} {
		if first[key] != want {
			t.Errorf("%s = %v, want %q", key, first[key], want)
		}
	}
	if first["duration_ms"] != float64(12) {
		t.Errorf("duration_ms = %v, want 12", first["duration_ms"])
	}
	if _, ok := entries[1]["marker"]; ok {
		t.Error("parent logger should not carry child attributes")
	}
}

func TestWith(t *testing.T) {
	logger := NopLogger()

	if logger.With() != logger {
		t.Error("With() with no args should return the same logger")
	}

	child := logger.With("genome", "ecoli", 42, "ignored-non-string-key", "dangling")
	if len(child.attrs) != 1 {
		t.Errorf("expected 1 attribute, got %d", len(child.attrs))
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.WithGenome("g").Info("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close on NopLogger returned %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	logger, err := NewLogger(t.TempDir(), LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info("x")
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l := logger.WithMarker("m")
			for j := 0; j < 25; j++ {
				l.Info("tick", "worker", n, "i", j)
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	if got := len(readLines(t, dir)); got != 200 {
		t.Errorf("expected 200 entries, got %d", got)
	}
}
