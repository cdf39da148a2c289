package parser

import (
	"regexp"
	"unicode/utf8"
)

// Matcher is a compiled pattern scanned with explicit offsets. It keeps no
// cursor between calls, so one Matcher can serve any number of scans.
type Matcher struct {
	re *regexp.Regexp

	// lineAnchored patterns start with a multi-line '^'. When a search
	// resumes mid-line, regexp would treat the slice start as a line start,
	// so such hits are rejected.
	lineAnchored bool
}

func newMatcher(expr string, lineAnchored bool) *Matcher {
	return &Matcher{re: regexp.MustCompile(expr), lineAnchored: lineAnchored}
}

// Match is one hit with absolute offsets into the scanned text.
type Match struct {
	Start int
	End   int

	text string
	loc  []int
}

// Text returns the whole matched text.
func (m Match) Text() string {
	return m.text[m.Start:m.End]
}

// Has reports whether group i took part in the match.
func (m Match) Has(i int) bool {
	return 2*i+1 < len(m.loc) && m.loc[2*i] >= 0
}

// Group returns submatch i, or "" when it did not participate.
func (m Match) Group(i int) string {
	if !m.Has(i) {
		return ""
	}
	return m.text[m.loc[2*i]:m.loc[2*i+1]]
}

// GroupStart returns the absolute start of submatch i, or -1.
func (m Match) GroupStart(i int) int {
	if !m.Has(i) {
		return -1
	}
	return m.loc[2*i]
}

// GroupEnd returns the absolute end of submatch i, or -1.
func (m Match) GroupEnd(i int) int {
	if !m.Has(i) {
		return -1
	}
	return m.loc[2*i+1]
}

// Next returns the first match starting at or after from, and the offset the
// following search should resume at.
func (m *Matcher) Next(text string, from int) (Match, int, bool) {
	for from <= len(text) {
		loc := m.re.FindStringSubmatchIndex(text[from:])
		if loc == nil {
			return Match{}, len(text) + 1, false
		}
		if m.lineAnchored && loc[0] == 0 && from > 0 && text[from-1] != '\n' {
			from += runeLen(text, from)
			continue
		}
		abs := make([]int, len(loc))
		for i, v := range loc {
			if v < 0 {
				abs[i] = v
				continue
			}
			abs[i] = v + from
		}
		match := Match{Start: abs[0], End: abs[1], text: text, loc: abs}
		next := match.End
		if match.End == match.Start {
			next += runeLen(text, next)
		}
		return match, next, true
	}
	return Match{}, from, false
}

// All returns every non-overlapping match in text, left to right.
func (m *Matcher) All(text string) []Match {
	var out []Match
	for from := 0; from <= len(text); {
		match, next, ok := m.Next(text, from)
		if !ok {
			break
		}
		out = append(out, match)
		from = next
	}
	return out
}

// MatchString reports whether s contains any match.
func (m *Matcher) MatchString(s string) bool {
	return m.re.MatchString(s)
}

func runeLen(text string, at int) int {
	if at >= len(text) {
		return 1
	}
	_, size := utf8.DecodeRuneInString(text[at:])
	return size
}
