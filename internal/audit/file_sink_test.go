package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raeburnlaw/caseguard/internal/config"
)

func newTestFileSink(t *testing.T, maxSize int64) (*FileSink, string) {
	t.Helper()
	dir := t.TempDir()
	sink, err := NewFileSink(config.AuditFileConfig{
		Enabled: true,
		Dir:     dir,
		MaxSize: maxSize,
	}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create file sink: %v", err)
	}
	return sink, dir
}

func countJSONLines(t *testing.T, path string) int {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer file.Close()

	lines := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Errorf("Line %d of %s is not valid JSON: %v", lines+1, path, err)
		}
		lines++
	}
	return lines
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	sink, dir := newTestFileSink(t, 1<<20)
	defer sink.Close()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		event := &Event{
			Timestamp:     now,
			EventType:     EventDataRead,
			Severity:      SeverityInfo,
			Result:        ResultSuccess,
			UserID:        fmt.Sprintf("user-%d", i),
			CorrelationID: fmt.Sprintf("corr-%d", i),
		}
		if err := sink.Write(context.Background(), event); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	path := filepath.Join(dir, "audit-2026-03-14.jsonl")
	if lines := countJSONLines(t, path); lines != 3 {
		t.Errorf("Expected 3 JSON lines, got %d", lines)
	}
}

func TestFileSinkSplitsByDay(t *testing.T) {
	sink, dir := newTestFileSink(t, 1<<20)
	defer sink.Close()

	days := []time.Time{
		time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC),
		time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC),
	}
	for _, ts := range days {
		event := &Event{Timestamp: ts, EventType: EventDataRead, CorrelationID: "c"}
		if err := sink.Write(context.Background(), event); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	for _, name := range []string{"audit-2026-03-14.jsonl", "audit-2026-03-15.jsonl"} {
		if lines := countJSONLines(t, filepath.Join(dir, name)); lines != 1 {
			t.Errorf("Expected 1 line in %s, got %d", name, lines)
		}
	}
}

func TestFileSinkRotatesOverSizeCap(t *testing.T) {
	sink, dir := newTestFileSink(t, 400)
	defer sink.Close()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	const total = 10
	for i := 0; i < total; i++ {
		event := &Event{
			Timestamp:     now,
			EventType:     EventDataExport,
			Severity:      SeverityInfo,
			Result:        ResultSuccess,
			UserID:        fmt.Sprintf("user-%d", i),
			Resource:      "cases",
			Action:        "export",
			CorrelationID: fmt.Sprintf("corr-%d", i),
		}
		if err := sink.Write(context.Background(), event); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read audit dir: %v", err)
	}

	active, rotated := 0, 0
	totalLines := 0
	for _, entry := range entries {
		name := entry.Name()
		totalLines += countJSONLines(t, filepath.Join(dir, name))
		switch {
		case name == "audit-2026-03-14.jsonl":
			active++
		case strings.HasPrefix(name, "audit-2026-03-14-") && strings.HasSuffix(name, ".jsonl"):
			rotated++
		default:
			t.Errorf("Unexpected file in audit dir: %s", name)
		}
	}

	if active != 1 {
		t.Errorf("Expected exactly one active file, got %d", active)
	}
	if rotated == 0 {
		t.Error("Expected at least one rotated file")
	}
	if totalLines != total {
		t.Errorf("Expected %d events across all files, got %d", total, totalLines)
	}
}
