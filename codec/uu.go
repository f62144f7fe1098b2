package codec

import (
	"golang.org/x/text/transform"
)

// UUDecoder decodes uuencoded text. Lines before a "begin" line and after an
// "end" line are ignored; a later "begin" line starts decoding again.
type UUDecoder struct {
	inBody bool
	buf    []byte
}

var _ transform.Transformer = (*UUDecoder)(nil)

func NewUUDecoder() *UUDecoder {
	return &UUDecoder{}
}

func (d *UUDecoder) Reset() {
	d.inBody = false
}

func (d *UUDecoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		line, n, ok := nextLine(src[nSrc:], atEOF)
		if !ok {
			return nDst, nSrc, transform.ErrShortSrc
		}

		inBody := d.inBody
		d.buf = d.buf[:0]
		switch {
		case !inBody:
			inBody = len(line) > 6 && hasPrefixFold(line, "begin ")
		case hasPrefixFold(line, "end"):
			inBody = false
		default:
			d.buf = decodeUULine(d.buf, line)
		}

		if len(d.buf) > len(dst)-nDst {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], d.buf)
		nSrc += n
		d.inBody = inBody
	}
	return nDst, nSrc, nil
}

// decodeUULine appends the octets carried by one data line to out. Missing
// trailing characters decode as zero bits.
func decodeUULine(out, line []byte) []byte {
	if len(line) == 0 {
		return out
	}
	remaining := int(uuValue(line[0]))
	data := line[1:]
	for i := 0; remaining > 0; i += 4 {
		var q [4]byte
		for j := range q {
			if i+j < len(data) {
				q[j] = uuValue(data[i+j])
			}
		}
		group := [3]byte{
			q[0]<<2 | q[1]>>4,
			q[1]<<4 | q[2]>>2,
			q[2]<<6 | q[3],
		}
		take := min(remaining, len(group))
		out = append(out, group[:take]...)
		remaining -= take
	}
	return out
}

func uuValue(c byte) byte {
	return (c - 0x20) & 0x3f
}
