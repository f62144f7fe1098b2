package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageMbox   Stage = "mbox"
	StageDecode Stage = "decode"
	StageOutput Stage = "outdir"
	StageIMAP   Stage = "imap"
)

type EventType string

const (
	EventTypeScanned      EventType = "scanned"
	EventTypeEnqueued     EventType = "enqueued"
	EventTypeRewritten    EventType = "rewritten"
	EventTypePlain        EventType = "plain"
	EventTypeAttachment   EventType = "attachment"
	EventTypeWritten      EventType = "written"
	EventTypeDryRunWrite  EventType = "dry_run_written"
	EventTypeUploaded     EventType = "uploaded"
	EventTypeDryRunUpload EventType = "dry_run_uploaded"
	EventTypeSkipped      EventType = "skipped"
	EventTypeDuplicate    EventType = "duplicate"
	EventTypeError        EventType = "error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	Err       error
	// Detail carries the encoding for attachment events and the file name
	// for written events.
	Detail string
}

type Summary struct {
	Scanned         int
	Enqueued        int
	Rewritten       int
	Plain           int
	Attachments     int
	UUAttachments   int
	YEncAttachments int
	Written         int
	DryRunWritten   int
	Uploaded        int
	DryRunUploaded  int
	Skipped         int
	Duplicates      int
	Errors          int
	LastError       error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"enqueued", s.Enqueued,
		"rewritten", s.Rewritten,
		"plain", s.Plain,
		"attachments", s.Attachments,
		"written", s.Written,
		"dryRunWritten", s.DryRunWritten,
		"uploaded", s.Uploaded,
		"dryRunUploaded", s.DryRunUploaded,
		"skipped", s.Skipped,
		"duplicates", s.Duplicates,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeEnqueued:
		c.summary.Enqueued++
	case EventTypeRewritten:
		c.summary.Rewritten++
	case EventTypePlain:
		c.summary.Plain++
	case EventTypeAttachment:
		c.summary.Attachments++
		switch evt.Detail {
		case "uu":
			c.summary.UUAttachments++
		case "yenc":
			c.summary.YEncAttachments++
		}
	case EventTypeWritten:
		c.summary.Written++
	case EventTypeDryRunWrite:
		c.summary.DryRunWritten++
	case EventTypeUploaded:
		c.summary.Uploaded++
	case EventTypeDryRunUpload:
		c.summary.DryRunUploaded++
	case EventTypeSkipped:
		c.summary.Skipped++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// Top returns the limit most frequent keys of m, most frequent first. Ties
// are ordered by key.
func Top(m map[string]int, limit int) []Count {
	counts := make([]Count, 0, len(m))
	for k, v := range m {
		counts = append(counts, Count{Key: k, Value: v})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Value != counts[j].Value {
			return counts[i].Value > counts[j].Value
		}
		return counts[i].Key < counts[j].Key
	})
	if limit >= 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

type Count struct {
	Key   string
	Value int
}

// WriteTop writes the limit most frequent items of m as a numbered list.
func WriteTop(w io.Writer, m map[string]int, limit int) {
	for i, c := range Top(m, limit) {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, c.Key, c.Value)
	}
}
