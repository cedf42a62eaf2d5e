package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func parseLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LevelInfo)
	l.Info("plan complete", "tasks", 3)

	entries := parseLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0]["msg"] != "plan complete" {
		t.Errorf("msg = %v, want %q", entries[0]["msg"], "plan complete")
	}
	if entries[0]["tasks"] != float64(3) {
		t.Errorf("tasks = %v, want 3", entries[0]["tasks"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LevelWarn)

	l.Debug("debug msg")
	l.Info("info msg")
	l.Warn("warn msg")
	l.Error("error msg")

	entries := parseLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (warn+error)", len(entries))
	}
	if entries[0]["level"] != "WARN" || entries[1]["level"] != "ERROR" {
		t.Errorf("levels = %v, %v; want WARN, ERROR", entries[0]["level"], entries[1]["level"])
	}
}

func TestLogger_AttributePropagation(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LevelDebug).WithComponent("planner").WithTask("frame-12")

	l.Info("executing")

	entries := parseLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0]["component"] != "planner" {
		t.Errorf("component = %v, want planner", entries[0]["component"])
	}
	if entries[0]["task_id"] != "frame-12" {
		t.Errorf("task_id = %v, want frame-12", entries[0]["task_id"])
	}
}

func TestLogger_ChildDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&buf, LevelDebug)
	_ = parent.WithWorker("w-1")

	parent.Info("no worker attr")

	entries := parseLines(t, &buf)
	if _, ok := entries[0]["worker_id"]; ok {
		t.Error("parent logger gained child attribute")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	// Must not panic and must accept all levels.
	l := NopLogger()
	l.Debug("a")
	l.Info("b")
	l.Warn("c")
	l.Error("d")
}
