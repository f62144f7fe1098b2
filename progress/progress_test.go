package progress

import (
	"strings"
	"testing"
	"time"

	"github.com/dhcgn/mbox-inline-decode/stats"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"short", "a@b", "3 attachments | a@b"},
		{"long", strings.Repeat("x", 50), "3 attachments | " + strings.Repeat("x", 37) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := title(3, tt.id); got != tt.want {
				t.Errorf("title() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummaryRows(t *testing.T) {
	s := stats.Summary{Scanned: 10, Rewritten: 2, Plain: 8, UUAttachments: 1, YEncAttachments: 3, Written: 4}
	rows := summaryRows(s, 1500*time.Millisecond)

	got := make(map[string]string)
	for _, r := range rows[1:] {
		got[r[0]] = r[1]
	}
	want := map[string]string{
		"Duration":            "1.5s",
		"Scanned":             "10",
		"Rewritten":           "2",
		"Without attachments": "8",
		"Attachments (uu)":    "1",
		"Attachments (yEnc)":  "3",
		"Files written":       "4",
	}
	if len(got) != len(want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("row %q = %q, want %q", k, got[k], v)
		}
	}
}

func TestBar_DisabledIgnoresEvents(t *testing.T) {
	b := New(10, 0, "debug")
	b.Update(stats.Event{Type: stats.EventTypeAttachment})
	b.Stop()
	if b.attachments != 0 {
		t.Errorf("disabled bar counted %d attachments", b.attachments)
	}
}
