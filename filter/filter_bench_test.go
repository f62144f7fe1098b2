package filter

import (
	"bytes"
	"testing"
)

var (
	benchHeader = []byte("From: poster@example.com\nNewsgroups: alt.binaries.pictures\nSubject: holiday.jpg (1/3)\n")
	benchPlain  = bytes.Repeat([]byte("Just a long discussion line without any attachment markers.\n"), 200)
	benchYEnc   = append(bytes.Repeat([]byte("Some chatter before the binary.\n"), 20),
		[]byte("=ybegin part=1 line=128 size=4000 name=holiday.jpg\n")...)
)

func benchmarkAllows(b *testing.B, opts Options, body []byte) {
	b.Helper()
	f, err := New(opts)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Allows(benchHeader, body)
	}
}

func BenchmarkFilter_Allows_NoFilters(b *testing.B) {
	benchmarkAllows(b, Options{}, benchPlain)
}

func BenchmarkFilter_Allows_ExcludeNewsgroup(b *testing.B) {
	benchmarkAllows(b, Options{ExcludeHeader: []string{`Newsgroups:.*\.d\b`}}, benchPlain)
}

// Plain bodies are the worst case for the candidate screen since every line
// is inspected.
func BenchmarkFilter_Allows_CandidatesOnlyPlain(b *testing.B) {
	benchmarkAllows(b, Options{CandidatesOnly: true}, benchPlain)
}

func BenchmarkFilter_Allows_CandidatesOnlyYEnc(b *testing.B) {
	benchmarkAllows(b, Options{CandidatesOnly: true}, benchYEnc)
}

func BenchmarkHasInlineMarkers(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HasInlineMarkers(benchPlain)
	}
}

func BenchmarkSplitRawMessage(b *testing.B) {
	raw := append(append([]byte{}, benchHeader...), '\r', '\n')
	raw = append(raw, benchYEnc...)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SplitRawMessage(raw)
	}
}
