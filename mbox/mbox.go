package mbox

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/dhcgn/mbox-inline-decode/filter"
	"github.com/dhcgn/mbox-inline-decode/model"
	"github.com/dhcgn/mbox-inline-decode/runner"
)

// derivedIDDomain is the right-hand side of IDs made up for messages
// without a Message-ID header.
const derivedIDDomain = "mbox-inline-decode.invalid"

type Options struct {
	Path           string
	IncludeHeader  []string
	IncludeBody    []string
	ExcludeHeader  []string
	ExcludeBody    []string
	CandidatesOnly bool
}

func (o Options) filterOptions() filter.Options {
	return filter.Options{
		IncludeHeader:  o.IncludeHeader,
		IncludeBody:    o.IncludeBody,
		ExcludeHeader:  o.ExcludeHeader,
		ExcludeBody:    o.ExcludeBody,
		CandidatesOnly: o.CandidatesOnly,
	}
}

type Reader interface {
	Stream(ctx context.Context, out chan<- model.Envelope) error
	FilterStats() filter.Stats
}

func NewReader(opts Options, logger *slog.Logger) (Reader, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}

	f, err := filter.New(opts.filterOptions())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &fileReader{path: path, logger: logger, filter: f}, nil
}

type fileReader struct {
	path   string
	logger *slog.Logger
	filter *filter.Filter
}

func (f *fileReader) FilterStats() filter.Stats {
	return f.filter.Stats()
}

func (f *fileReader) Stream(ctx context.Context, out chan<- model.Envelope) error {
	file, err := open(f.path)
	if err != nil {
		return err
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		header, body := filter.SplitRawMessage(raw)
		if !f.filter.Allows(header, body) {
			continue
		}

		msg, err := parseMail(raw)
		if err != nil {
			if err := f.emitError(ctx, out, fmt.Errorf("message %d parse: %w", idx, err)); err != nil {
				return err
			}
			continue
		}

		if err := f.emitEnvelope(ctx, out, model.Envelope{Message: msg}); err != nil {
			return err
		}
	}
}

func (f *fileReader) emitError(ctx context.Context, out chan<- model.Envelope, err error) error {
	f.logger.Warn("Skipping unparsable message", "path", f.path, "err", err)
	return f.emitEnvelope(ctx, out, model.Envelope{Err: err})
}

func (f *fileReader) emitEnvelope(ctx context.Context, out chan<- model.Envelope, env model.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- env:
		return nil
	}
}

// parseMail fills in the identity of a raw message. A message without a
// usable Message-ID gets one derived from its hash.
func parseMail(raw []byte) (model.Message, error) {
	h, err := readHeader(raw)
	if err != nil {
		return model.Message{}, err
	}

	sum := sha256.Sum256(raw)
	hash := base64.StdEncoding.EncodeToString(sum[:])

	id, err := h.MessageID()
	if err != nil || id == "" {
		id = strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
	}
	if id == "" {
		id = fmt.Sprintf("%x@%s", sum[:8], derivedIDDomain)
	}

	var receivedAt time.Time
	if t, err := h.Date(); err == nil {
		receivedAt = t
	}

	return model.Message{
		ID:         id,
		Hash:       hash,
		ReceivedAt: receivedAt,
		Size:       int64(len(raw)),
		Raw:        raw,
	}, nil
}

func readHeader(raw []byte) (mail.Header, error) {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return mail.Header{}, fmt.Errorf("read header: %w", err)
	}
	return mail.Header{Header: message.Header{Header: th}}, nil
}

type Producer struct {
	reader Reader
	runner *runner.Runner
}

func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	reader, err := NewReader(opts, logger)
	if err != nil {
		return nil, err
	}
	producer := &Producer{reader: reader, runner: r}
	r.AddStage("mbox", producer.run)
	return producer, nil
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseMailbox()
	return p.reader.Stream(ctx, p.runner.MailboxWriter())
}

// FilterStats reports how the header and body filters matched so far.
func (p *Producer) FilterStats() filter.Stats {
	return p.reader.FilterStats()
}

// MboxMessage is a single message as seen by Read.
type MboxMessage struct {
	Header mail.Header
	Body   []byte
	Raw    []byte
}

// testData replaces the file contents when set.
var testData []byte

func open(path string) (io.ReadCloser, error) {
	if testData != nil {
		return io.NopCloser(bytes.NewReader(testData)), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	return file, nil
}

// Read opens an mbox file and calls callback for each message. Messages
// whose header cannot be parsed are skipped.
func Read(path string, callback func(m *MboxMessage) error) error {
	file, err := open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			continue
		}
		h, err := readHeader(raw)
		if err != nil {
			continue
		}
		_, body := filter.SplitRawMessage(raw)

		if err := callback(&MboxMessage{Header: h, Body: body, Raw: raw}); err != nil {
			return err
		}
	}
}

// CountMessages counts the total number of messages in an mbox file.
func CountMessages(path string) (int, error) {
	file, err := open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}

		// Unreadable messages still count.
		_, _ = io.Copy(io.Discard, msgReader)
		count++
	}
}
