package stats

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestCollector(t *testing.T) {
	events := make(chan Event, 16)
	boom := errors.New("boom")
	for _, evt := range []Event{
		{Stage: StageMbox, Type: EventTypeScanned},
		{Stage: StageMbox, Type: EventTypeScanned},
		{Stage: StageMbox, Type: EventTypeDuplicate},
		{Stage: StageDecode, Type: EventTypeAttachment, Detail: "uu"},
		{Stage: StageDecode, Type: EventTypeAttachment, Detail: "yenc"},
		{Stage: StageDecode, Type: EventTypeAttachment, Detail: "yenc"},
		{Stage: StageDecode, Type: EventTypeRewritten},
		{Stage: StageOutput, Type: EventTypeWritten, Detail: "a.jpg"},
		{Stage: StageIMAP, Type: EventTypeError, Err: boom},
	} {
		events <- evt
	}
	close(events)

	c := NewCollector()
	c.Run(context.Background(), events)

	got := c.Snapshot()
	want := Summary{
		Scanned:         2,
		Duplicates:      1,
		Attachments:     3,
		UUAttachments:   1,
		YEncAttachments: 2,
		Rewritten:       1,
		Written:         1,
		Errors:          1,
		LastError:       boom,
	}
	if got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}
}

func TestCollector_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCollector()
	c.Run(ctx, make(chan Event))
	if got := c.Snapshot(); got.Scanned != 0 {
		t.Fatalf("unexpected summary %+v", got)
	}
}

func TestTop(t *testing.T) {
	m := map[string]int{"b.jpg": 2, "a.jpg": 2, "c.zip": 5, "d.txt": 1}

	tests := []struct {
		limit int
		want  []string
	}{
		{limit: 2, want: []string{"c.zip", "a.jpg"}},
		{limit: 10, want: []string{"c.zip", "a.jpg", "b.jpg", "d.txt"}},
		{limit: 0, want: nil},
		{limit: -1, want: []string{"c.zip", "a.jpg", "b.jpg", "d.txt"}},
	}
	for _, tt := range tests {
		got := Top(m, tt.limit)
		if len(got) != len(tt.want) {
			t.Fatalf("Top(limit=%d) returned %d entries, want %d", tt.limit, len(got), len(tt.want))
		}
		for i, k := range tt.want {
			if got[i].Key != k {
				t.Errorf("Top(limit=%d)[%d] = %q, want %q", tt.limit, i, got[i].Key, k)
			}
		}
	}
}

func TestWriteTop(t *testing.T) {
	var buf bytes.Buffer
	WriteTop(&buf, map[string]int{"x": 3, "y": 1}, 5)
	if got, want := buf.String(), "1. x (3)\n2. y (1)\n"; got != want {
		t.Fatalf("WriteTop = %q, want %q", got, want)
	}
}

func TestSummary_LogAttrs(t *testing.T) {
	attrs := Summary{Rewritten: 1, LastError: errors.New("bad")}.LogAttrs()
	if len(attrs)%2 != 0 {
		t.Fatalf("odd number of attrs: %v", attrs)
	}
	last := attrs[len(attrs)-2:]
	if last[0] != "lastError" || last[1] != "bad" {
		t.Errorf("last attr = %v", last)
	}
}
