// Package codec decodes the line-oriented binary-to-text encodings found
// inline in Usenet message bodies.
//
// Decoders are golang.org/x/text/transform.Transformer values. They consume
// whole lines only; when atEOF is set a trailing unterminated line is
// treated as complete. Decoder state survives between Transform calls until
// Reset is called, so one decoder can be fed a payload in several
// discontiguous pieces.
package codec

import (
	"bytes"

	"golang.org/x/text/transform"
)

// Kind identifies an inline encoding.
type Kind int

const (
	UU Kind = iota + 1
	YEnc
)

func (k Kind) String() string {
	switch k {
	case UU:
		return "uu"
	case YEnc:
		return "yenc"
	default:
		return "unknown"
	}
}

// New returns a fresh decoder for k, or nil when k is not a known encoding.
func New(k Kind) transform.Transformer {
	switch k {
	case UU:
		return NewUUDecoder()
	case YEnc:
		return NewYEncDecoder()
	default:
		return nil
	}
}

// nextLine returns the first line of src without its terminator and the
// number of bytes it occupies in src.
func nextLine(src []byte, atEOF bool) (line []byte, n int, ok bool) {
	if i := bytes.IndexByte(src, '\n'); i >= 0 {
		line, n = src[:i], i+1
	} else if atEOF && len(src) > 0 {
		line, n = src, len(src)
	} else {
		return nil, 0, false
	}
	return bytes.TrimSuffix(line, []byte{'\r'}), n, true
}

func hasPrefixFold(line []byte, prefix string) bool {
	return len(line) >= len(prefix) && bytes.EqualFold(line[:len(prefix)], []byte(prefix))
}
