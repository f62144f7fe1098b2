package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string

	// CandidatesOnly drops messages whose raw body carries no uuencode or
	// yEnc begin line. Bodies hidden behind a base64 or quoted-printable
	// transfer encoding are not looked into and are dropped as well.
	CandidatesOnly bool
}

// Group identifies one of the four pattern lists.
type Group string

const (
	GroupIncludeHeader Group = "include-header"
	GroupIncludeBody   Group = "include-body"
	GroupExcludeHeader Group = "exclude-header"
	GroupExcludeBody   Group = "exclude-body"
)

// Hit is the number of messages a single pattern matched.
type Hit struct {
	Group   Group
	Pattern string
	Count   int
}

// Stats summarises what the filter did so far.
type Stats struct {
	Allowed       int
	Rejected      int
	NotCandidates int
	Hits          []Hit
}

type rule struct {
	group   Group
	pattern string
	re      *regexp.Regexp
}

// Filter holds compiled regex patterns for filtering messages. It is safe
// for concurrent use.
type Filter struct {
	includeMode    bool
	excludeMode    bool
	candidatesOnly bool
	includeHeader  []rule
	includeBody    []rule
	excludeHeader  []rule
	excludeBody    []rule
	needHeaderText bool
	needBodyText   bool

	mu            sync.Mutex
	hits          map[*regexp.Regexp]int
	allowed       int
	rejected      int
	notCandidates int
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(GroupIncludeHeader, opts.IncludeHeader)
	if err != nil {
		return nil, err
	}
	includeBody, err := compilePatterns(GroupIncludeBody, opts.IncludeBody)
	if err != nil {
		return nil, err
	}
	excludeHeader, err := compilePatterns(GroupExcludeHeader, opts.ExcludeHeader)
	if err != nil {
		return nil, err
	}
	excludeBody, err := compilePatterns(GroupExcludeBody, opts.ExcludeBody)
	if err != nil {
		return nil, err
	}

	includeActive := len(includeHeader) > 0 || len(includeBody) > 0
	excludeActive := len(excludeHeader) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:    includeActive,
		excludeMode:    excludeActive,
		candidatesOnly: opts.CandidatesOnly,
		includeHeader:  includeHeader,
		includeBody:    includeBody,
		excludeHeader:  excludeHeader,
		excludeBody:    excludeBody,
		needHeaderText: len(includeHeader) > 0 || len(excludeHeader) > 0,
		needBodyText:   len(includeBody) > 0 || len(excludeBody) > 0,
		hits:           make(map[*regexp.Regexp]int),
	}, nil
}

// Allows returns true if the message passes the filter criteria.
func (f *Filter) Allows(header, body []byte) bool {
	ok := f.allows(header, body)
	f.mu.Lock()
	if ok {
		f.allowed++
	} else {
		f.rejected++
	}
	f.mu.Unlock()
	return ok
}

func (f *Filter) allows(header, body []byte) bool {
	if f.candidatesOnly && !HasInlineMarkers(body) {
		f.mu.Lock()
		f.notCandidates++
		f.mu.Unlock()
		return false
	}

	var headerText, bodyText string
	if f.needHeaderText {
		headerText = string(header)
	}
	if f.needBodyText {
		bodyText = string(body)
	}

	if f.includeMode {
		return f.matchAny(f.includeHeader, headerText) || f.matchAny(f.includeBody, bodyText)
	}

	if f.excludeMode {
		if f.matchAny(f.excludeHeader, headerText) || f.matchAny(f.excludeBody, bodyText) {
			return false
		}
	}

	return true
}

// Stats returns a snapshot of the filter counters. Hits are listed in
// the order the patterns were given, include patterns first.
func (f *Filter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Stats{Allowed: f.allowed, Rejected: f.rejected, NotCandidates: f.notCandidates}
	for _, rules := range [][]rule{f.includeHeader, f.includeBody, f.excludeHeader, f.excludeBody} {
		for _, r := range rules {
			s.Hits = append(s.Hits, Hit{Group: r.group, Pattern: r.pattern, Count: f.hits[r.re]})
		}
	}
	return s
}

var (
	uuBeginMarker   = []byte("begin ")
	yencBeginMarker = []byte("=ybegin ")
)

// HasInlineMarkers reports whether body has a line starting with a
// uuencode or yEnc begin marker. It is a cheap screen and says nothing
// about whether the block that follows is valid.
func HasInlineMarkers(body []byte) bool {
	for len(body) > 0 {
		line := body
		if i := bytes.IndexByte(body, '\n'); i >= 0 {
			line, body = body[:i], body[i+1:]
		} else {
			body = nil
		}
		if bytes.HasPrefix(line, yencBeginMarker) || hasPrefixFold(line, uuBeginMarker) {
			return true
		}
	}
	return false
}

func hasPrefixFold(line, prefix []byte) bool {
	return len(line) >= len(prefix) && bytes.EqualFold(line[:len(prefix)], prefix)
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

func compilePatterns(group Group, patterns []string) ([]rule, error) {
	compiled := make([]rule, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern %q: %w", group, pattern, err)
		}
		compiled = append(compiled, rule{group: group, pattern: pattern, re: re})
	}
	return compiled, nil
}

// matchAny reports the first matching rule and counts its hit.
func (f *Filter) matchAny(rules []rule, text string) bool {
	for _, r := range rules {
		if r.re.MatchString(text) {
			f.mu.Lock()
			f.hits[r.re]++
			f.mu.Unlock()
			return true
		}
	}
	return false
}
