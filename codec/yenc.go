package codec

import (
	"golang.org/x/text/transform"
)

const (
	yencShift       = 42
	yencEscapeShift = 64
)

type yencState int

const (
	yencSeekBegin yencState = iota
	yencInBody
	yencDone
)

// YEncDecoder decodes yEnc payload lines. It waits for an "=ybegin" line,
// skips "=ypart" lines, and stops at "=yend" until Reset. Checksums are not
// verified.
type YEncDecoder struct {
	state yencState
	buf   []byte
}

var _ transform.Transformer = (*YEncDecoder)(nil)

func NewYEncDecoder() *YEncDecoder {
	return &YEncDecoder{}
}

func (d *YEncDecoder) Reset() {
	d.state = yencSeekBegin
}

func (d *YEncDecoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		line, n, ok := nextLine(src[nSrc:], atEOF)
		if !ok {
			return nDst, nSrc, transform.ErrShortSrc
		}

		next := d.state
		d.buf = d.buf[:0]
		switch {
		case hasPrefixFold(line, "=ybegin"):
			if next == yencSeekBegin {
				next = yencInBody
			}
		case hasPrefixFold(line, "=yend"):
			if next == yencInBody {
				next = yencDone
			}
		case hasPrefixFold(line, "=ypart"):
		case next == yencInBody:
			d.buf = decodeYEncLine(d.buf, line)
		}

		if len(d.buf) > len(dst)-nDst {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], d.buf)
		nSrc += n
		d.state = next
	}
	return nDst, nSrc, nil
}

// decodeYEncLine appends the decoded bytes of one payload line to out. A
// dangling escape character at the end of the line is dropped.
func decodeYEncLine(out, line []byte) []byte {
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '=' {
			i++
			if i >= len(line) {
				break
			}
			c = line[i] - yencEscapeShift
		}
		out = append(out, c-yencShift)
	}
	return out
}
