package extract

import (
	"bytes"
	"strconv"
)

const (
	yencBeginMarker = "=ybegin"
	yencPartMarker  = "=ypart"
	yencEndMarker   = "=yend"

	yencTagPart   = " part="
	yencTagLine   = " line="
	yencTagSize   = " size="
	yencTagName   = " name="
	yencTagBegin  = " begin="
	yencTagEnd    = " end="
	yencTagPCRC32 = " pcrc32="
	yencTagCRC32  = " crc32="
)

type yencBegin struct {
	name       string
	lineLength int
	size       int64
	part       int
}

type yencPart struct {
	begin int64
	end   int64
}

type yencEnd struct {
	size   int64
	part   int
	crc32  uint32
	pcrc32 uint32
}

type uuBegin struct {
	mode uint32
	name string
}

// tagValue returns everything after tag in line, or nil when the tag is
// missing or nothing follows it.
func tagValue(line []byte, tag string) []byte {
	i := bytes.Index(line, []byte(tag))
	if i < 0 {
		return nil
	}
	v := line[i+len(tag):]
	if len(v) == 0 {
		return nil
	}
	return v
}

// tagUint parses a tag value the way strtoul does. Leading white space and
// a "+" sign are skipped. Base 0 reads a "0x" prefix as hex, a leading "0"
// as octal and anything else as decimal; base 16 allows an optional "0x".
// Parsing stops at the first byte that is not a digit. Missing tags and
// values without digits yield 0.
func tagUint(line []byte, tag string, base int) uint64 {
	v := bytes.TrimLeft(tagValue(line, tag), " \t\n\v\f\r")
	if len(v) > 0 && v[0] == '+' {
		v = v[1:]
	}
	hexPrefix := len(v) > 2 && v[0] == '0' && (v[1] == 'x' || v[1] == 'X') && isDigit(v[2], 16)
	switch {
	case base == 0 && hexPrefix:
		base, v = 16, v[2:]
	case base == 0 && len(v) > 1 && v[0] == '0':
		base = 8
	case base == 0:
		base = 10
	case base == 16 && hexPrefix:
		v = v[2:]
	}

	n := 0
	for n < len(v) && isDigit(v[n], base) {
		n++
	}
	if n == 0 {
		return 0
	}
	x, err := strconv.ParseUint(string(v[:n]), base, 64)
	if err != nil {
		return 0
	}
	return x
}

func isDigit(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return int(c-'0') < base
	case base == 16 && c >= 'a' && c <= 'f':
		return true
	case base == 16 && c >= 'A' && c <= 'F':
		return true
	}
	return false
}

// parseYEncBegin recognizes "=ybegin" lines. line=, size= and name= are
// required; part= defaults to 0.
func parseYEncBegin(line []byte) (yencBegin, bool) {
	if !bytes.HasPrefix(line, []byte(yencBeginMarker)) {
		return yencBegin{}, false
	}
	lineLength := tagUint(line, yencTagLine, 0)
	if lineLength == 0 {
		return yencBegin{}, false
	}
	size := tagUint(line, yencTagSize, 0)
	if size == 0 {
		return yencBegin{}, false
	}
	name := bytes.TrimSpace(tagValue(line, yencTagName))
	if len(name) == 0 {
		return yencBegin{}, false
	}
	return yencBegin{
		name:       string(name),
		lineLength: int(lineLength),
		size:       int64(size),
		part:       int(tagUint(line, yencTagPart, 0)),
	}, true
}

// parseYEncPart recognizes "=ypart" lines; begin= and end= are required.
func parseYEncPart(line []byte) (yencPart, bool) {
	if !bytes.HasPrefix(line, []byte(yencPartMarker)) {
		return yencPart{}, false
	}
	begin := tagUint(line, yencTagBegin, 0)
	if begin == 0 {
		return yencPart{}, false
	}
	end := tagUint(line, yencTagEnd, 0)
	if end == 0 {
		return yencPart{}, false
	}
	return yencPart{begin: int64(begin), end: int64(end)}, true
}

// parseYEncEnd recognizes "=yend" lines; size= is required. pcrc32= is only
// demanded when requirePartCRC is set, which the scanner never does.
func parseYEncEnd(line []byte, requirePartCRC bool) (yencEnd, bool) {
	if !bytes.HasPrefix(line, []byte(yencEndMarker)) {
		return yencEnd{}, false
	}
	size := tagUint(line, yencTagSize, 0)
	if size == 0 {
		return yencEnd{}, false
	}
	pcrc := tagUint(line, yencTagPCRC32, 16)
	if requirePartCRC && pcrc == 0 {
		return yencEnd{}, false
	}
	return yencEnd{
		size:   int64(size),
		part:   int(tagUint(line, yencTagPart, 0)),
		crc32:  uint32(tagUint(line, yencTagCRC32, 16)),
		pcrc32: uint32(pcrc),
	}, true
}

// parseUUBegin recognizes "begin <mode> <filename>" lines. The mode needs at
// least three octal digits.
func parseUUBegin(line []byte) (uuBegin, bool) {
	if len(line) <= 6 {
		return uuBegin{}, false
	}
	if !bytes.HasPrefix(line, []byte("begin ")) && !bytes.HasPrefix(line, []byte("BEGIN ")) {
		return uuBegin{}, false
	}

	rest := bytes.TrimLeft(line[6:], " \t")
	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '7' {
		n++
	}
	if n < 3 {
		return uuBegin{}, false
	}
	mode, err := strconv.ParseUint(string(rest[:n]), 8, 32)
	if err != nil || mode == 0 {
		return uuBegin{}, false
	}

	name := bytes.TrimSpace(rest[n:])
	if len(name) == 0 {
		return uuBegin{}, false
	}
	return uuBegin{mode: uint32(mode), name: string(name)}, true
}

// isUUEnd matches lines starting with "end" in any case, unless the line
// mentions "cut" (as in "end of cut here" markers in prose).
func isUUEnd(line []byte) bool {
	if len(line) < 3 || !bytes.EqualFold(line[:3], []byte("end")) {
		return false
	}
	return !bytes.Contains(bytes.ToLower(line), []byte("cut"))
}
