package extract

import (
	"io"
)

// Kind is the classification of a section of a text body.
type Kind int

const (
	KindPlain Kind = iota
	KindUU
	KindYEnc
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindUU:
		return "uu"
	case KindYEnc:
		return "yenc"
	default:
		return "unknown"
	}
}

// Span is a half-open byte range [Start, End) of the scanned body.
type Span struct {
	Start int64
	End   int64
}

func (s Span) Len() int64 {
	return s.End - s.Start
}

// YEncInfo holds the metadata found on yEnc marker lines. Checksums are
// recorded as found and never verified.
type YEncInfo struct {
	LineLength  int
	Size        int64
	Part        int
	Begin       int64
	End         int64
	TrailerSize int64
	CRC32       uint32
	PartCRC32   uint32
}

type section struct {
	kind       Kind
	filename   string
	validLines int
	yenc       YEncInfo
	spans      []Span
	pipe       *pipeline
}

// mark is a snapshot of a section taken when a block continues it, so the
// continuation can be undone.
type mark struct {
	decoded    int
	spans      int
	validLines int
	yenc       YEncInfo
}

// flush hands one captured range to the section's decode pipeline. Empty
// ranges are ignored. The pipeline is created on first use.
func (s *section) flush(src io.ReaderAt, sp Span) error {
	if sp.Len() <= 0 {
		return nil
	}
	if s.pipe == nil {
		s.pipe = newPipeline(s.kind)
	}
	if err := s.pipe.write(src, sp); err != nil {
		return err
	}
	if n := len(s.spans); n > 0 && s.spans[n-1].End == sp.Start {
		s.spans[n-1].End = sp.End
		return nil
	}
	s.spans = append(s.spans, sp)
	return nil
}

func (s *section) snapshot() mark {
	m := mark{spans: len(s.spans), validLines: s.validLines, yenc: s.yenc}
	if s.pipe != nil {
		m.decoded = s.pipe.len()
	}
	return m
}

func (s *section) rollback(m mark) {
	s.spans = s.spans[:m.spans]
	s.validLines = m.validLines
	s.yenc = m.yenc
	if s.pipe != nil {
		s.pipe.truncate(m.decoded)
	}
}

func (s *section) data() []byte {
	if s.pipe == nil {
		return []byte{}
	}
	return s.pipe.bytes()
}
