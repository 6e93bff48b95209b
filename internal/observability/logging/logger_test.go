package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONIncludesServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "api", "warn", "")

	logger.Info("serp_cache_hit")
	logger.Warn("batch_failed", "batch", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["service"] != "api" || entry["msg"] != "batch_failed" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "worker", "debug", "text").Debug("clustering_started")
	if !strings.Contains(buf.String(), "msg=clustering_started") || !strings.Contains(buf.String(), "service=worker") {
		t.Fatalf("unexpected text output: %q", buf.String())
	}
}
