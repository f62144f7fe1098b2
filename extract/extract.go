// Package extract finds yEnc and uuencoded attachments embedded in plain
// text bodies and splits the body into typed, decoded parts.
package extract

import (
	"bytes"
	"io"
	"log/slog"
)

// Part is one finished section of a scanned body. Plain parts carry the
// text verbatim; UU and yEnc parts carry the decoded attachment.
type Part struct {
	Kind        Kind
	Filename    string
	ContentType ContentType
	Data        []byte

	// Spans are the ranges of the body that were handed to the decoder,
	// in order. Ranges skipped as noise are not included.
	Spans      []Span
	ValidLines int
	YEnc       YEncInfo
}

// Options configures a scan. The zero value is ready to use.
type Options struct {
	Logger *slog.Logger
}

// Split scans the size bytes of src and returns its parts in document
// order. Bodies that look unusual never fail; only read errors on src are
// returned, in which case no parts are.
func Split(src io.ReaderAt, size int64, opts Options) ([]*Part, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := newScanner(src, size, logger)
	if err := s.scan(); err != nil {
		return nil, err
	}

	sections := s.reg.registered()
	parts := make([]*Part, 0, len(sections))
	for _, sec := range sections {
		parts = append(parts, sec.part())
	}
	return parts, nil
}

// SplitBytes is Split over an in-memory body.
func SplitBytes(body []byte, opts Options) ([]*Part, error) {
	return Split(bytes.NewReader(body), int64(len(body)), opts)
}

// IsPlainOnly reports whether parts is a single plain part covering all
// size bytes of the body, which means there was nothing to extract.
func IsPlainOnly(parts []*Part, size int64) bool {
	if len(parts) == 0 {
		return true
	}
	if len(parts) != 1 || parts[0].Kind != KindPlain {
		return false
	}
	sp := parts[0].Spans
	return len(sp) == 1 && sp[0].Start == 0 && sp[0].End == size
}

func (s *section) part() *Part {
	p := &Part{
		Kind:        s.kind,
		Filename:    s.filename,
		ContentType: TextPlain,
		Data:        s.data(),
		Spans:       append([]Span(nil), s.spans...),
		ValidLines:  s.validLines,
		YEnc:        s.yenc,
	}
	if s.filename != "" {
		p.ContentType = TypeForFilename(s.filename)
	}
	return p
}
