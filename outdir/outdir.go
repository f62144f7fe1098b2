// Package outdir writes decoded inline attachments to a directory tree,
// one sub-directory per message.
package outdir

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dhcgn/mbox-inline-decode/model"
	"github.com/dhcgn/mbox-inline-decode/runner"
	"github.com/dhcgn/mbox-inline-decode/stats"
)

// MessageFile is the name rewritten messages are stored under.
const MessageFile = "message.eml"

type Options struct {
	Dir           string
	WriteMessages bool
	DryRun        bool
}

type Writer struct {
	opts     Options
	runner   *runner.Runner
	logger   *slog.Logger
	messages <-chan model.Message
}

func NewWriter(opts Options, r *runner.Runner, logger *slog.Logger) (*Writer, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	messages, err := r.Subscribe(string(stats.StageOutput))
	if err != nil {
		return nil, err
	}

	w := &Writer{opts: opts, runner: r, logger: logger, messages: messages}
	r.AddStage(string(stats.StageOutput), w.run)
	return w, nil
}

func (w *Writer) run(ctx context.Context) error {
	if !w.opts.DryRun {
		if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-w.messages:
			if !ok {
				return nil
			}
			if err := w.handle(msg); err != nil {
				w.runner.EmitEvent(stats.Event{Stage: stats.StageOutput, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
				return err
			}
			if err := w.runner.Ack(msg); err != nil {
				return err
			}
		}
	}
}

func (w *Writer) handle(msg model.Message) error {
	if !msg.IsRewritten() {
		w.runner.EmitEvent(stats.Event{Stage: stats.StageOutput, Type: stats.EventTypeSkipped, MessageID: msg.ID})
		return nil
	}

	if w.opts.DryRun {
		for _, a := range msg.Attachments {
			w.logger.Info("Dry-run: would write attachment", "messageID", msg.ID, "file", a.Filename, "bytes", len(a.Data))
			w.runner.EmitEvent(stats.Event{Stage: stats.StageOutput, Type: stats.EventTypeDryRunWrite, MessageID: msg.ID, Detail: a.Filename})
		}
		return nil
	}

	paths, err := Save(w.opts.Dir, msg, w.opts.WriteMessages, w.logger)
	if err != nil {
		return err
	}
	for _, p := range paths {
		w.runner.EmitEvent(stats.Event{Stage: stats.StageOutput, Type: stats.EventTypeWritten, MessageID: msg.ID, Detail: p})
	}
	return nil
}

// Save writes the attachments of msg into dir/<message id>/ and, when
// writeMessage is set, the rewritten message as message.eml. Existing files
// are never overwritten. It returns the written paths.
func Save(dir string, msg model.Message, writeMessage bool, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	msgDir := filepath.Join(dir, SanitizeName(msg.ID))
	if err := os.MkdirAll(msgDir, 0o755); err != nil {
		return nil, fmt.Errorf("create message directory: %w", err)
	}

	var paths []string
	for _, a := range msg.Attachments {
		sniffed := mimetype.Detect(a.Data)
		name := a.Filename
		if name == "" {
			name = fallbackName + sniffed.Extension()
		}
		checkType(logger, msg.ID, a, sniffed)

		path, err := createUnique(msgDir, SanitizeName(name), a.Data)
		if err != nil {
			return paths, err
		}
		logger.Debug("Wrote attachment", "messageID", msg.ID, "path", path, "bytes", len(a.Data), "encoding", a.Encoding)
		paths = append(paths, path)
	}

	if writeMessage {
		path, err := createUnique(msgDir, MessageFile, msg.Output())
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// checkType logs when the sniffed content disagrees with the type derived
// from the file name. Octet-stream claims are never questioned.
func checkType(logger *slog.Logger, messageID string, a model.Attachment, sniffed *mimetype.MIME) {
	if a.ContentType == "" || a.ContentType == "application/octet-stream" {
		return
	}
	for m := sniffed; m != nil; m = m.Parent() {
		if m.Is(a.ContentType) {
			return
		}
	}
	logger.Debug("Attachment content differs from its name",
		"messageID", messageID, "file", a.Filename, "claimed", a.ContentType, "sniffed", sniffed.String())
}
