package extract

import (
	"strings"
	"testing"
)

func TestParseYEncBegin(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		want yencBegin
	}{
		{"=ybegin line=128 size=5 name=hi.txt", true, yencBegin{name: "hi.txt", lineLength: 128, size: 5}},
		{"=ybegin part=3 line=128 size=500 name= my file.bin  ", true, yencBegin{name: "my file.bin", lineLength: 128, size: 500, part: 3}},
		{"=ybegin line=128 size=5", false, yencBegin{}},
		{"=ybegin line=128 size=5 name=   ", false, yencBegin{}},
		{"=ybegin line=0 size=5 name=a", false, yencBegin{}},
		{"=ybegin line=128 size=0 name=a", false, yencBegin{}},
		{"=ybegin line=128 name=a", false, yencBegin{}},
		{"=ybegin line=abc size=5 name=a", false, yencBegin{}},
		{"ybegin line=128 size=5 name=a", false, yencBegin{}},
		{"=ybegin line= 128 size=0x10 name=a", true, yencBegin{name: "a", lineLength: 128, size: 16}},
		{"=ybegin line=128 size=010 part=+2 name=a", true, yencBegin{name: "a", lineLength: 128, size: 8, part: 2}},
		{"=ybegin line=128 size=0x name=a", false, yencBegin{}},
		{"=ybegin line=128 size=09 name=a", false, yencBegin{}},
	}
	for _, tt := range tests {
		got, ok := parseYEncBegin([]byte(tt.line))
		if ok != tt.ok {
			t.Errorf("parseYEncBegin(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("parseYEncBegin(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestTagUint(t *testing.T) {
	tests := []struct {
		line string
		base int
		want uint64
	}{
		{"=y size=128", 0, 128},
		{"=y size=\t 128 name=a", 0, 128},
		{"=y size=+7", 0, 7},
		{"=y size=0x1F", 0, 31},
		{"=y size=017", 0, 15},
		{"=y size=0", 0, 0},
		{"=y size=12abc", 0, 12},
		{"=y size=-5", 0, 0},
		{"=y size=", 0, 0},
		{"=y crc32=0xDEADbeef", 16, 0xdeadbeef},
		{"=y crc32= ff", 16, 0xff},
		{"=y other=5", 0, 0},
	}
	for _, tt := range tests {
		tag := yencTagSize
		if tt.base == 16 {
			tag = yencTagCRC32
		}
		if got := tagUint([]byte(tt.line), tag, tt.base); got != tt.want {
			t.Errorf("tagUint(%q, %d) = %d, want %d", tt.line, tt.base, got, tt.want)
		}
	}
}

func TestParseYEncPart(t *testing.T) {
	if p, ok := parseYEncPart([]byte("=ypart begin=1 end=384000")); !ok || p.begin != 1 || p.end != 384000 {
		t.Errorf("parseYEncPart() = %+v, %v", p, ok)
	}
	for _, line := range []string{"=ypart begin=1", "=ypart end=5", "=ypart begin=0 end=5", "=ybegin begin=1 end=5"} {
		if _, ok := parseYEncPart([]byte(line)); ok {
			t.Errorf("parseYEncPart(%q) accepted", line)
		}
	}
}

func TestParseYEncEnd(t *testing.T) {
	e, ok := parseYEncEnd([]byte("=yend size=384000 part=1 pcrc32=ABCDEF01 crc32=0x00ff"), false)
	if !ok {
		t.Fatal("parseYEncEnd() rejected a valid trailer")
	}
	if e.size != 384000 || e.part != 1 || e.pcrc32 != 0xabcdef01 || e.crc32 != 0xff {
		t.Errorf("parseYEncEnd() = %+v", e)
	}

	if _, ok := parseYEncEnd([]byte("=yend crc32=abcd"), false); ok {
		t.Error("trailer without size accepted")
	}
	if _, ok := parseYEncEnd([]byte("=yend size=10 part=2"), false); !ok {
		t.Error("multipart trailer without pcrc32 rejected in permissive mode")
	}
	if _, ok := parseYEncEnd([]byte("=yend size=10 part=2"), true); ok {
		t.Error("multipart trailer without pcrc32 accepted in strict mode")
	}
}

func TestParseUUBegin(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		mode uint32
		name string
	}{
		{"begin 644 file.txt", true, 0o644, "file.txt"},
		{"BEGIN 0755 my file.bin ", true, 0o755, "my file.bin"},
		{"begin  600\tx", true, 0o600, "x"},
		{"begin 64 file.txt", false, 0, ""},
		{"begin 644", false, 0, ""},
		{"begin 644   ", false, 0, ""},
		{"begin 000 file", false, 0, ""},
		{"begin 689 file", false, 0, ""},
		{"Begin 644 file", false, 0, ""},
		{"begin the story", false, 0, ""},
		{"begin ", false, 0, ""},
	}
	for _, tt := range tests {
		got, ok := parseUUBegin([]byte(tt.line))
		if ok != tt.ok {
			t.Errorf("parseUUBegin(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && (got.mode != tt.mode || got.name != tt.name) {
			t.Errorf("parseUUBegin(%q) = %+v", tt.line, got)
		}
	}
}

func TestIsUUEnd(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"end", true},
		{"END", true},
		{"End of file", true},
		{"end -- cut here", false},
		{"end of CUT", false},
		{"en", false},
		{" end", false},
		{"the end", false},
	}
	for _, tt := range tests {
		if got := isUUEnd([]byte(tt.line)); got != tt.want {
			t.Errorf("isUUEnd(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestIsUULine(t *testing.T) {
	full := "M" + strings.Repeat("0", 60)
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"terminator", "`", true},
		{"full line", full, true},
		{"full line with checksum noise", full + "123456789", true},
		{"too much noise", full + "1234567890", false},
		{"too short", "M" + strings.Repeat("0", 59), false},
		{"octet count above 45", "N" + strings.Repeat("0", 64), false},
		{"char out of range", "#abcd", false},
		{"short line", "#0V%T", true},
		{"empty", "", false},
		{"control char", "\t000", false},
		{"space only", " ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUULine([]byte(tt.line)); got != tt.want {
				t.Errorf("isUULine(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}
