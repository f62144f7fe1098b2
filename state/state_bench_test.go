package state

import (
	"fmt"
	"testing"
)

func benchRecord(i int) Record {
	return Record{
		Hash:        fmt.Sprintf("hash-%d", i),
		MessageID:   fmt.Sprintf("part%d.holiday@news.example.com", i),
		Attachments: i % 3,
	}
}

func BenchmarkFileTracker_MarkProcessed(b *testing.B) {
	tracker, err := NewFileTracker(b.TempDir(), true)
	if err != nil {
		b.Fatal(err)
	}
	defer tracker.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := tracker.MarkProcessed(benchRecord(i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFileTracker_AlreadyProcessed(b *testing.B) {
	tracker, err := NewFileTracker(b.TempDir(), true)
	if err != nil {
		b.Fatal(err)
	}
	defer tracker.Close()

	for i := 0; i < 1000; i++ {
		if err := tracker.MarkProcessed(benchRecord(i)); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tracker.AlreadyProcessed(fmt.Sprintf("hash-%d", i%2000))
	}
}

// Reloading is what a resumed run pays before the first message.
func BenchmarkFileTracker_Load(b *testing.B) {
	dir := b.TempDir()
	tracker, err := NewFileTracker(dir, true)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 10000; i++ {
		if err := tracker.MarkProcessed(benchRecord(i)); err != nil {
			b.Fatal(err)
		}
	}
	if err := tracker.Close(); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		t, err := NewFileTracker(dir, false)
		if err != nil {
			b.Fatal(err)
		}
		if got := t.Snapshot().Processed; got != 10000 {
			b.Fatalf("processed = %d", got)
		}
		t.Close()
	}
}

func BenchmarkMemoryTracker_MarkProcessed(b *testing.B) {
	tracker := NewMemoryTracker()
	for i := 0; i < b.N; i++ {
		if err := tracker.MarkProcessed(benchRecord(i)); err != nil {
			b.Fatal(err)
		}
	}
}
