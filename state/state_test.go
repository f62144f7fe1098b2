package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMemoryTracker(t *testing.T) {
	m := NewMemoryTracker()
	if m.AlreadyProcessed("abc") {
		t.Fatal("AlreadyProcessed() = true on empty tracker")
	}
	if err := m.MarkProcessed(Record{Hash: "abc", MessageID: "<1@example.com>", Attachments: 2}); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if err := m.MarkProcessed(Record{MessageID: "<2@example.com>"}); err != nil {
		t.Fatalf("MarkProcessed() with empty hash error = %v", err)
	}
	if !m.AlreadyProcessed("abc") {
		t.Error("AlreadyProcessed(abc) = false, want true")
	}
	if m.AlreadyProcessed("") {
		t.Error("AlreadyProcessed(\"\") = true, want false")
	}
	if got := m.Snapshot(); got != (Snapshot{Processed: 1, Rewritten: 1}) {
		t.Errorf("Snapshot() = %+v, want 1 processed, 1 rewritten", got)
	}
}

func TestFileTracker_PersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileTracker(dir, true)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	recs := []Record{
		{Hash: "h1", MessageID: "id-1", Attachments: 1},
		{Hash: "h2", MessageID: "id-2"},
		{Hash: "h1", MessageID: "id-1", Attachments: 1},
	}
	for _, rec := range recs {
		if err := first.MarkProcessed(rec); err != nil {
			t.Fatalf("MarkProcessed(%s) error = %v", rec.Hash, err)
		}
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "processed.jsonl"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("state file has %d lines, want 2:\n%s", lines, data)
	}

	second, err := NewFileTracker(dir, false)
	if err != nil {
		t.Fatalf("NewFileTracker() second run error = %v", err)
	}
	defer second.Close()
	if !second.AlreadyProcessed("h1") || !second.AlreadyProcessed("h2") {
		t.Error("hashes from the first run were not loaded")
	}
	if got := second.Snapshot(); got != (Snapshot{Processed: 2, Rewritten: 1}) {
		t.Errorf("Snapshot() = %+v, want 2 processed, 1 rewritten", got)
	}
}

func TestFileTracker_DryRunDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewFileTracker(dir, false)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	if err := tracker.MarkProcessed(Record{Hash: "h1", MessageID: "id"}); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if err := tracker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "processed.jsonl")); !os.IsNotExist(err) {
		t.Errorf("state file exists after dry run, stat err = %v", err)
	}
}

func TestFileTracker_CorruptLine(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "processed.jsonl"), []byte("{\"hash\":\"a\"}\nnot json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileTracker(dir, false); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("NewFileTracker() error = %v, want parse error on line 2", err)
	}
}

func TestNewFileTracker_EmptyDir(t *testing.T) {
	if _, err := NewFileTracker("  ", false); err == nil {
		t.Error("NewFileTracker() with blank dir succeeded")
	}
}
