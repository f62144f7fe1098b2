package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/transform"

	"github.com/dhcgn/mbox-inline-decode/codec"
)

// pipeline decodes the captured ranges of one section into a single output
// buffer. The transformer keeps its state between writes, so ranges split by
// pauses or continuation blocks decode as one stream.
type pipeline struct {
	t   transform.Transformer
	out bytes.Buffer
	dst []byte
}

func newPipeline(k Kind) *pipeline {
	var t transform.Transformer = transform.Nop
	switch k {
	case KindUU:
		t = codec.New(codec.UU)
	case KindYEnc:
		t = codec.New(codec.YEnc)
	}
	return &pipeline{t: t}
}

func (p *pipeline) write(src io.ReaderAt, sp Span) error {
	raw := make([]byte, sp.Len())
	if _, err := io.ReadFull(io.NewSectionReader(src, sp.Start, sp.Len()), raw); err != nil {
		return fmt.Errorf("read bytes %d-%d: %w", sp.Start, sp.End, err)
	}

	if cap(p.dst) < len(raw)+64 {
		p.dst = make([]byte, len(raw)+64)
	}
	dst := p.dst[:cap(p.dst)]

	for len(raw) > 0 {
		nDst, nSrc, err := p.t.Transform(dst, raw, true)
		p.out.Write(dst[:nDst])
		raw = raw[nSrc:]
		switch {
		case err == nil:
		case errors.Is(err, transform.ErrShortDst) && (nDst > 0 || nSrc > 0):
		case errors.Is(err, transform.ErrShortDst):
			dst = make([]byte, 2*len(dst))
			p.dst = dst
		default:
			return fmt.Errorf("decode bytes %d-%d: %w", sp.Start, sp.End, err)
		}
	}
	return nil
}

// restart puts the decoder back in its initial state without discarding
// output decoded so far.
func (p *pipeline) restart() {
	p.t.Reset()
}

func (p *pipeline) len() int {
	return p.out.Len()
}

func (p *pipeline) truncate(n int) {
	p.out.Truncate(n)
}

func (p *pipeline) bytes() []byte {
	return bytes.Clone(p.out.Bytes())
}
