package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogEventWritesSchemaFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info")

	LogEvent(context.Background(), l, "gen-abc", "pipeline", "repair_applied", map[string]int{"ea_task_percent": 40})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "repair_applied" {
		t.Fatalf("expected event as msg, got %v", entry["msg"])
	}
	if entry["correlation_id"] != "gen-abc" || entry["component"] != "pipeline" {
		t.Fatalf("missing correlation fields: %v", entry)
	}
	payload, ok := entry["payload"].(map[string]interface{})
	if !ok || payload["ea_task_percent"] != float64(40) {
		t.Fatalf("unexpected payload: %v", entry["payload"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")

	l.Info("dropped")
	l.Warn("kept")

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatal("ParseLevel mapping is wrong")
	}
}

func TestOpenWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "timefreedom.jsonl")

	l, closeFn, err := Open(path, "info")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	Component(l, "server").Info("listening", slog.Int("port", 8080))
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"component":"server"`) {
		t.Fatalf("expected component in log output, got %s", content)
	}
}
