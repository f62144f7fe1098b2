package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mbox-inline-decode/stats"
)

const maxTitleID = 40

// Bar manages a progress bar for tracking message decoding.
type Bar struct {
	pb          *pterm.ProgressbarPrinter
	total       int
	alreadyDone int
	attachments int
	mu          sync.Mutex
	enabled     bool
}

// New creates a new progress bar if logLevel is "info".
func New(total int, alreadyDone int, logLevel string) *Bar {
	enabled := logLevel == "info"

	bar := &Bar{
		total:       total,
		alreadyDone: alreadyDone,
		enabled:     enabled,
	}

	if enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Decoding messages").
			Start()

		bar.pb = pb

		pterm.Info.Printf("Total messages in mbox: %d\n", total)
		pterm.Info.Printf("Already processed: %d\n", alreadyDone)
		pterm.Println()
	}

	return bar
}

// Update advances the progress bar based on the event type.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.pb.Increment()
		if evt.MessageID != "" {
			b.pb.UpdateTitle(title(b.attachments, evt.MessageID))
		}
	case stats.EventTypeAttachment:
		b.attachments++
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("%s: %v\n", evt.Stage, evt.Err)
		}
	}
}

func title(attachments int, messageID string) string {
	if len(messageID) > maxTitleID {
		messageID = messageID[:maxTitleID-3] + "..."
	}
	return fmt.Sprintf("%d attachments | %s", attachments, messageID)
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	b.pb.Stop()
	pterm.Success.Println("Decoding complete!")
}

// Subscriber is a stats subscriber that updates the progress bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// ProgressReporter drives the progress bar and prints a summary table
// once the run is over.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewProgressReporter subscribes the bar and a collector to stream. It
// does nothing when the bar is disabled.
func NewProgressReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	}

	return reporter
}

func (pr *ProgressReporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)
	return nil
}

// Finish stops the bar and prints the summary table.
func (pr *ProgressReporter) Finish() {
	if pr.bar == nil || !pr.bar.enabled {
		return
	}
	pr.bar.Stop()

	summary := pr.collector.Snapshot()
	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	if err := pterm.DefaultTable.WithHasHeader().WithData(summaryRows(summary, time.Since(pr.started))).Render(); err != nil && pr.logger != nil {
		pr.logger.Warn("render summary", "err", err)
	}
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
}

func summaryRows(s stats.Summary, duration time.Duration) [][]string {
	rows := [][]string{
		{"Counter", "Value"},
		{"Duration", duration.Round(time.Millisecond).String()},
		{"Scanned", strconv.Itoa(s.Scanned)},
		{"Rewritten", strconv.Itoa(s.Rewritten)},
		{"Without attachments", strconv.Itoa(s.Plain)},
		{"Attachments (uu)", strconv.Itoa(s.UUAttachments)},
		{"Attachments (yEnc)", strconv.Itoa(s.YEncAttachments)},
	}
	optional := []struct {
		name  string
		value int
	}{
		{"Files written", s.Written},
		{"Dry-run files", s.DryRunWritten},
		{"Uploaded", s.Uploaded},
		{"Dry-run uploaded", s.DryRunUploaded},
		{"Skipped by sinks", s.Skipped},
		{"Duplicates", s.Duplicates},
		{"Errors", s.Errors},
	}
	for _, o := range optional {
		if o.value > 0 {
			rows = append(rows, []string{o.name, strconv.Itoa(o.value)})
		}
	}
	return rows
}
