package extract

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// minValidLines is the number of data lines an unterminated block needs
// before it is trusted as an attachment rather than prose.
const minValidLines = 10

type state int

const (
	statePlain state = iota
	stateUUBody
	stateYEncBody
)

type lineClass int

const (
	lineText lineClass = iota
	lineUUBegin
	lineUUEnd
	lineUUData
	lineUUNoise
	lineYEncBegin
	lineYEncPart
	lineYEncEnd
	lineYEncData
)

// classified is the result of looking at one physical line. It is never kept
// past the line it describes.
type classified struct {
	class lineClass
	uu    uuBegin
	begin yencBegin
	part  yencPart
	end   yencEnd
}

// capture is the start of the range being collected for the open section.
// It is inactive while a UU body is paused.
type capture struct {
	active bool
	start  int64
}

type scanner struct {
	src  io.ReaderAt
	size int64
	log  *slog.Logger
	reg  *registry

	state        state
	cap          capture
	cur          int
	awaitingPart bool

	// run is where the open non-plain block started. before is the plain
	// section closed by that block's begin line, or -1.
	run       int64
	before    int
	continued bool
	mark      mark
}

func newScanner(src io.ReaderAt, size int64, logger *slog.Logger) *scanner {
	return &scanner{
		src:    src,
		size:   size,
		log:    logger,
		reg:    newRegistry(),
		cur:    -1,
		before: -1,
	}
}

func (s *scanner) scan() error {
	r := bufio.NewReader(io.NewSectionReader(s.src, 0, s.size))
	var scratch []byte
	var pos int64

	for {
		raw, err := readLine(r, &scratch)
		if len(raw) > 0 {
			length := len(raw)
			if raw[length-1] == '\n' {
				length--
			}
			if stepErr := s.step(s.classify(trimCR(raw[:length])), pos, length); stepErr != nil {
				return stepErr
			}
			pos += int64(len(raw))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read body at offset %d: %w", pos, err)
		}
	}
	return s.finish()
}

// readLine returns the next line including its newline. Lines longer than
// the reader's buffer are collected in scratch.
func readLine(r *bufio.Reader, scratch *[]byte) ([]byte, error) {
	*scratch = (*scratch)[:0]
	for {
		frag, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			*scratch = append(*scratch, frag...)
			continue
		}
		if len(*scratch) > 0 {
			*scratch = append(*scratch, frag...)
			return *scratch, err
		}
		return frag, err
	}
}

func trimCR(line []byte) []byte {
	return bytes.TrimSuffix(line, []byte{'\r'})
}

func (s *scanner) classify(text []byte) classified {
	switch s.state {
	case statePlain:
		if b, ok := parseUUBegin(text); ok {
			return classified{class: lineUUBegin, uu: b}
		}
		if b, ok := parseYEncBegin(text); ok {
			return classified{class: lineYEncBegin, begin: b}
		}
		return classified{class: lineText}

	case stateUUBody:
		switch {
		case isUUEnd(text):
			return classified{class: lineUUEnd}
		case isUULine(text):
			return classified{class: lineUUData}
		default:
			return classified{class: lineUUNoise}
		}

	case stateYEncBody:
		if e, ok := parseYEncEnd(text, false); ok {
			return classified{class: lineYEncEnd, end: e}
		}
		if s.awaitingPart {
			if p, ok := parseYEncPart(text); ok {
				return classified{class: lineYEncPart, part: p}
			}
		}
		return classified{class: lineYEncData}
	}
	return classified{class: lineText}
}

// step applies the transition for one line starting at offset start whose
// length, without the newline, is length.
func (s *scanner) step(c classified, start int64, length int) error {
	lineEnd := start + int64(length)

	switch c.class {
	case lineText:
		if s.cur < 0 {
			s.cur = s.reg.add(&section{kind: KindPlain})
			s.cap = capture{active: true, start: start}
		}

	case lineUUBegin:
		if err := s.openBlock(KindUU, c.uu.name, start); err != nil {
			return err
		}
		s.state = stateUUBody
		s.log.Debug("uu block", "name", c.uu.name, "mode", fmt.Sprintf("%o", c.uu.mode), "offset", start, "continued", s.continued)

	case lineYEncBegin:
		if err := s.openBlock(KindYEnc, c.begin.name, start); err != nil {
			return err
		}
		sec := s.reg.at(s.cur)
		if s.continued && sec.pipe != nil {
			sec.pipe.restart()
		}
		sec.yenc.LineLength = c.begin.lineLength
		sec.yenc.Size = c.begin.size
		sec.yenc.Part = c.begin.part
		s.awaitingPart = c.begin.part != 0
		s.state = stateYEncBody
		s.log.Debug("yenc block", "name", c.begin.name, "part", c.begin.part, "size", c.begin.size, "offset", start, "continued", s.continued)

	case lineUUData:
		if !s.cap.active {
			s.cap = capture{active: true, start: start}
		}
		s.reg.at(s.cur).validLines++

	case lineUUNoise:
		if s.cap.active {
			if err := s.reg.at(s.cur).flush(s.src, Span{Start: s.cap.start, End: start}); err != nil {
				return err
			}
			s.cap = capture{}
		}

	case lineUUEnd:
		if !s.cap.active {
			s.cap = capture{active: true, start: start}
		}
		if err := s.closeBlock(lineEnd); err != nil {
			return err
		}
		s.state = statePlain

	case lineYEncPart:
		sec := s.reg.at(s.cur)
		sec.yenc.Begin = c.part.begin
		sec.yenc.End = c.part.end
		sec.validLines++
		s.awaitingPart = false

	case lineYEncData:
		s.reg.at(s.cur).validLines++

	case lineYEncEnd:
		sec := s.reg.at(s.cur)
		sec.yenc.TrailerSize = c.end.size
		sec.yenc.CRC32 = c.end.crc32
		sec.yenc.PartCRC32 = c.end.pcrc32
		if c.end.part != 0 && sec.yenc.Part == 0 {
			sec.yenc.Part = c.end.part
		}
		if err := s.closeBlock(lineEnd); err != nil {
			return err
		}
		s.awaitingPart = false
		s.state = statePlain
	}
	return nil
}

// openBlock ends any open plain section at start and opens the block for
// name, continuing an earlier block with the same name if there is one.
func (s *scanner) openBlock(kind Kind, name string, start int64) error {
	s.before = -1
	if s.cur >= 0 {
		s.before = s.cur
		if err := s.closeBlock(start); err != nil {
			return err
		}
	}

	if i, ok := s.reg.lookup(name); ok {
		s.cur = i
		s.continued = true
		s.mark = s.reg.at(i).snapshot()
	} else {
		s.cur = s.reg.add(&section{kind: kind, filename: name})
		s.continued = false
	}
	s.run = start
	s.cap = capture{active: true, start: start}
	return nil
}

// closeBlock flushes the open section up to end and registers it.
func (s *scanner) closeBlock(end int64) error {
	sec := s.reg.at(s.cur)
	if s.cap.active {
		if err := sec.flush(s.src, Span{Start: s.cap.start, End: end}); err != nil {
			return err
		}
	}
	s.reg.register(s.cur)
	s.cur = -1
	s.cap = capture{}
	return nil
}

func (s *scanner) finish() error {
	if s.cur < 0 {
		return nil
	}
	sec := s.reg.at(s.cur)
	if sec.kind == KindPlain || sec.validLines >= minValidLines {
		return s.closeBlock(s.size)
	}

	s.log.Debug("unterminated block treated as text",
		"kind", sec.kind, "name", sec.filename, "valid_lines", sec.validLines, "offset", s.run)
	if s.continued {
		sec.rollback(s.mark)
	}
	s.cur = -1
	s.cap = capture{}
	return s.appendText(Span{Start: s.run, End: s.size})
}

// appendText adds sp as plain text, joining the plain section that ended
// right before it when there is one.
func (s *scanner) appendText(sp Span) error {
	if s.before >= 0 {
		prev := s.reg.at(s.before)
		if n := len(prev.spans); n > 0 && prev.spans[n-1].End == sp.Start {
			return prev.flush(s.src, sp)
		}
	}
	i := s.reg.add(&section{kind: KindPlain})
	if err := s.reg.at(i).flush(s.src, sp); err != nil {
		return err
	}
	s.reg.register(i)
	return nil
}
