package parser

import (
	"sort"
	"strconv"
	"strings"

	"github.com/starford/cardsync/internal/models"
)

// Candidate is a located span of text recognized as a potential card,
// before its fields are built.
type Candidate struct {
	Style models.Style `json:"style"`
	Raw   string       `json:"raw"`
	Start int          `json:"start"`
	End   int          `json:"end"`
	Line  int          `json:"line"`

	// HeadingLevel is 1-6 when the card line is itself a heading.
	HeadingLevel int      `json:"heading_level,omitempty"`
	HeadingPath  []string `json:"heading_path,omitempty"`

	// ExistingID is the id recovered from a trailing identity marker, or
	// models.UnboundID.
	ExistingID int64    `json:"existing_id"`
	Tags       []string `json:"tags"`

	Question  string                 `json:"question,omitempty"`
	Answer    string                 `json:"answer,omitempty"`
	Text      string                 `json:"text,omitempty"`
	Deletions []models.ClozeDeletion `json:"deletions,omitempty"`
	Prompt    string                 `json:"prompt,omitempty"`
}

type heading struct {
	level int
	title string
	start int
}

type claims [][2]int

func (c claims) overlaps(start, end int) bool {
	for _, r := range c {
		if start < r[1] && end > r[0] {
			return true
		}
	}
	return false
}

// Extract scans text for card candidates. Each style is matched over the
// whole text in a fixed order (basic-with-tag, cloze, spaced, inline,
// inline-reversed); a candidate overlapping an earlier claim is dropped, as
// is one lying fully inside code, math or the frontmatter block. The result
// is ordered by end offset. Unmatched or malformed regions yield nothing.
func (r *Registry) Extract(text string) []Candidate {
	if text == "" {
		return nil
	}
	loc := r.Locate(text)
	bodyStart := frontmatterEnd(text)
	headings := r.headingsOf(text, loc)

	inline := r.scanInline(text)
	var inlineBasic, inlineReversed []Candidate
	for _, c := range inline {
		if c.Style == models.StyleReversed {
			inlineReversed = append(inlineReversed, c)
		} else {
			inlineBasic = append(inlineBasic, c)
		}
	}

	passes := [][]Candidate{
		r.scanWithTag(text, loc),
		r.scanCloze(text, loc),
		r.scanSpaced(text),
		inlineBasic,
		inlineReversed,
	}

	var claimed claims
	var out []Candidate
	for _, pass := range passes {
		for _, c := range pass {
			if c.Start < bodyStart || loc.InProtected(c.Start, c.End) || claimed.overlaps(c.Start, c.End) {
				continue
			}
			claimed = append(claimed, [2]int{c.Start, c.End})
			c.Line = strings.Count(text[:c.Start], "\n") + 1
			c.HeadingPath = contextPath(headings, c.Start, c.HeadingLevel)
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].End < out[j].End })
	return out
}

func (r *Registry) scanWithTag(text string, loc Located) []Candidate {
	var out []Candidate
	for _, m := range r.withTag.All(text) {
		body := m.Group(3)
		if r.hasClozeMarker(body, m.GroupStart(3), loc) {
			continue
		}

		level := headingLevel(m.Group(2))
		if level > 0 && !strings.HasPrefix(body, " ") {
			// "#word" is a tag, not a heading.
			body = strings.TrimLeft(m.Group(2), " ") + body
			level = 0
		}

		reversed := strings.HasSuffix(strings.ToLower(m.Group(4)), "reverse")
		answer, end, id := r.answerBlock(text, m.End, m.Has(1))

		style := models.StyleBasic
		if reversed {
			style = models.StyleReversed
		}
		out = append(out, Candidate{
			Style:        style,
			Raw:          text[m.Start:end],
			Start:        m.Start,
			End:          end,
			HeadingLevel: level,
			ExistingID:   id,
			Tags:         r.parseTagList(m.Group(5)),
			Question:     strings.TrimSpace(body),
			Answer:       answer,
		})
	}
	return out
}

// answerBlock collects the non-blank lines following a tagged question. It
// stops at a blank line, at the next tagged question, or at an identity
// marker, which binds the card.
func (r *Registry) answerBlock(text string, from int, callout bool) (string, int, int64) {
	end, id := from, models.UnboundID
	var lines []string
	for pos := from; pos < len(text) && text[pos] == '\n'; {
		lineStart := pos + 1
		lineEnd := len(text)
		if i := strings.IndexByte(text[lineStart:], '\n'); i >= 0 {
			lineEnd = lineStart + i
		}
		line := text[lineStart:lineEnd]

		if sub := r.markerLine.FindStringSubmatch(line); sub != nil {
			id = parseID(sub[1])
			end = lineEnd
			break
		}
		if callout {
			line = r.calloutLine.ReplaceAllString(line, "")
		}
		if strings.TrimSpace(line) == "" || r.withTag.MatchString(line) {
			break
		}
		lines = append(lines, line)
		end = lineEnd
		pos = lineEnd
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), end, id
}

func (r *Registry) scanCloze(text string, loc Located) []Candidate {
	var out []Candidate
	for _, m := range r.cloze.All(text) {
		converted, deletions, ok := r.convertClozes(m.Group(2), m.GroupStart(2), loc)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Style:        models.StyleCloze,
			Raw:          m.Text(),
			Start:        m.Start,
			End:          m.End,
			HeadingLevel: headingLevel(m.Group(1)),
			ExistingID:   optionalID(m, 5),
			Tags:         r.parseTagList(m.Group(4)),
			Text:         strings.TrimSpace(converted),
			Deletions:    deletions,
		})
	}
	return out
}

func (r *Registry) scanSpaced(text string) []Candidate {
	var out []Candidate
	for _, m := range r.spaced.All(text) {
		end := m.End
		if !m.Has(5) && strings.HasSuffix(m.Text(), "\n") {
			end--
		}
		out = append(out, Candidate{
			Style:        models.StyleSpaced,
			Raw:          text[m.Start:end],
			Start:        m.Start,
			End:          end,
			HeadingLevel: headingLevel(m.Group(1)),
			ExistingID:   optionalID(m, 5),
			Tags:         r.parseTagList(m.Group(4)),
			Prompt:       strings.TrimSpace(m.Group(2)),
		})
	}
	return out
}

// scanInline returns inline candidates of both directions. The direction
// follows the separator that matched.
func (r *Registry) scanInline(text string) []Candidate {
	var out []Candidate
	for _, m := range r.inline.All(text) {
		style := models.StyleBasic
		if m.Group(3) == r.settings.InlineSeparatorReverse {
			style = models.StyleReversed
		}
		out = append(out, Candidate{
			Style:        style,
			Raw:          m.Text(),
			Start:        m.Start,
			End:          m.End,
			HeadingLevel: headingLevel(m.Group(1)),
			ExistingID:   optionalID(m, 6),
			Tags:         r.parseTagList(m.Group(5)),
			Question:     strings.TrimSpace(m.Group(2)),
			Answer:       strings.TrimSpace(m.Group(4)),
		})
	}
	return out
}

// hasClozeMarker reports whether s, found at offset base of the note,
// carries a cloze marker outside code and math.
func (r *Registry) hasClozeMarker(s string, base int, loc Located) bool {
	for _, m := range r.clozeMarker.All(s) {
		if !loc.InProtected(base+m.Start, base+m.End) {
			return true
		}
	}
	return false
}

func (r *Registry) headingsOf(text string, loc Located) []heading {
	var out []heading
	for _, m := range r.headings.All(text) {
		if loc.InProtected(m.Start, m.End) {
			continue
		}
		out = append(out, heading{
			level: len(m.Group(1)),
			title: strings.TrimSpace(m.Group(2)),
			start: m.Start,
		})
	}
	return out
}

// contextPath returns the titles of the headings enclosing offset. A card
// that is itself a heading of the given level only gets its ancestors.
func contextPath(headings []heading, offset, level int) []string {
	var stack []heading
	for _, h := range headings {
		if h.start >= offset {
			break
		}
		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)
	}
	if level > 0 {
		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) == 0 {
		return nil
	}
	out := make([]string, len(stack))
	for i, h := range stack {
		out[i] = h.title
	}
	return out
}

func headingLevel(marks string) int {
	n := strings.Count(strings.TrimSpace(marks), "#")
	if n > 6 {
		return 0
	}
	return n
}

func optionalID(m Match, group int) int64 {
	if !m.Has(group) {
		return models.UnboundID
	}
	return parseID(m.Group(group))
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return models.UnboundID
	}
	return id
}

// frontmatterEnd returns the offset just past a leading YAML frontmatter
// block, or 0 when the text has none.
func frontmatterEnd(text string) int {
	const delim = "---"
	if !strings.HasPrefix(text, delim) {
		return 0
	}
	idx := strings.Index(text[len(delim):], "\n"+delim)
	if idx < 0 {
		return 0
	}
	end := len(delim) + idx + 1 + len(delim)
	if nl := strings.IndexByte(text[end:], '\n'); nl >= 0 {
		return end + nl + 1
	}
	return len(text)
}
