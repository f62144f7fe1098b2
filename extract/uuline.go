package extract

const (
	uuMaxOctets    = 45
	uuNoiseAllowed = 9
)

// isUULine reports whether line is structurally a uuencoded data line: its
// length character must agree with the number of characters that follow,
// allowing a little trailing noise, and every payload character must fall in
// the uuencode alphabet.
func isUULine(line []byte) bool {
	if len(line) == 0 {
		return false
	}
	if len(line) == 1 && line[0] == '`' {
		return true
	}
	if line[0] < 0x20 {
		return false
	}

	octets := int(line[0]) - 0x20
	if octets > uuMaxOctets {
		return false
	}

	chars := (octets / 3) * 4
	switch octets % 3 {
	case 1:
		chars += 2
	case 2:
		chars += 3
	}
	if chars+1 > len(line) {
		return false
	}
	if chars+1+uuNoiseAllowed < len(line) {
		return false
	}

	for _, c := range line[1 : chars+1] {
		if c < 0x20 || c > 0x60 {
			return false
		}
	}
	return true
}
