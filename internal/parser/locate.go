package parser

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// SpanKind classifies a located region.
type SpanKind int

const (
	SpanCodeFence SpanKind = iota
	SpanCodeHTML
	SpanCodeInline
	SpanMathBlock
	SpanMathInline
	SpanImage
	SpanAudio
	SpanEmbed
	SpanWikilink
)

// Span is a located region of text.
type Span struct {
	Kind  SpanKind
	Start int
	End   int
	Raw   string

	// Lang and Body are set for code and math spans. Body is also the
	// display text of wikilinks and embeds, whose link target is Target.
	Lang   string
	Body   string
	Target string
}

// Contains reports whether [start, end) lies fully inside the span.
func (s Span) Contains(start, end int) bool {
	return start >= s.Start && end <= s.End
}

// Embed is an image or audio reference. Height is 0 when only a width was
// declared, meaning the height follows the aspect ratio.
type Embed struct {
	Span
	Filename string
	Width    int
	Height   int
}

// Located is the result of Locate.
type Located struct {
	Images []Embed
	Audio  []Embed
	Embeds []Span
	Links  []Span
	Code   []Span
	Math   []Span
}

// InProtected reports whether [start, end) lies inside a code or math span.
func (l Located) InProtected(start, end int) bool {
	for _, s := range l.Code {
		if s.Contains(start, end) {
			return true
		}
	}
	for _, s := range l.Math {
		if s.Contains(start, end) {
			return true
		}
	}
	return false
}

// spans returns every located region sorted by start, with regions that
// overlap an earlier (or longer, at equal start) one removed.
func (l Located) spans() []Span {
	all := make([]Span, 0, len(l.Images)+len(l.Audio)+len(l.Embeds)+len(l.Links)+len(l.Code)+len(l.Math))
	all = append(all, l.Code...)
	all = append(all, l.Math...)
	for _, e := range l.Images {
		all = append(all, e.Span)
	}
	for _, e := range l.Audio {
		all = append(all, e.Span)
	}
	all = append(all, l.Embeds...)
	all = append(all, l.Links...)

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End > all[j].End
	})

	out := all[:0]
	end := -1
	for _, s := range all {
		if s.Start < end {
			continue
		}
		out = append(out, s)
		end = s.End
	}
	return out
}

// Locate finds media embeds, links, code and math regions in text. It is a
// pure scan.
func (r *Registry) Locate(text string) Located {
	var l Located

	for _, m := range r.codeFence.All(text) {
		l.Code = append(l.Code, Span{Kind: SpanCodeFence, Start: m.Start, End: m.End, Raw: m.Text(),
			Lang: strings.TrimSpace(m.Group(1)), Body: m.Group(2)})
	}
	for _, m := range r.codeHTML.All(text) {
		l.Code = append(l.Code, Span{Kind: SpanCodeHTML, Start: m.Start, End: m.End, Raw: m.Text(), Body: m.Group(1)})
	}
	for _, m := range r.codeInline.All(text) {
		l.Code = append(l.Code, Span{Kind: SpanCodeInline, Start: m.Start, End: m.End, Raw: m.Text(), Body: m.Group(1)})
	}
	for _, m := range r.mathBlock.All(text) {
		l.Math = append(l.Math, Span{Kind: SpanMathBlock, Start: m.Start, End: m.End, Raw: m.Text(), Body: m.Group(1)})
	}
	for _, m := range r.mathInline.All(text) {
		if m.Group(1) == "" {
			continue
		}
		l.Math = append(l.Math, Span{Kind: SpanMathInline, Start: m.Start, End: m.End, Raw: m.Text(), Body: m.Group(1)})
	}

	for _, m := range r.wikiImage.All(text) {
		l.Images = append(l.Images, newEmbed(SpanImage, m, m.Group(1)))
	}
	for _, m := range r.markdownImage.All(text) {
		name := m.Group(1)
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
		l.Images = append(l.Images, newEmbed(SpanImage, m, name))
	}
	for _, m := range r.wikiAudio.All(text) {
		l.Audio = append(l.Audio, newEmbed(SpanAudio, m, m.Group(1)))
	}
	for _, m := range r.wikiEmbed.All(text) {
		target := m.Group(1)
		if i := strings.IndexByte(target, '|'); i >= 0 {
			target = target[:i]
		}
		if r.mediaExt.MatchString(target) {
			continue
		}
		l.Embeds = append(l.Embeds, Span{Kind: SpanEmbed, Start: m.Start, End: m.End, Raw: m.Text(),
			Target: target, Body: target})
	}
	for _, m := range r.wikilink.All(text) {
		if m.Start > 0 && text[m.Start-1] == '!' {
			continue
		}
		display := m.Group(2)
		if display == "" {
			display = m.Group(1)
		}
		l.Links = append(l.Links, Span{Kind: SpanWikilink, Start: m.Start, End: m.End, Raw: m.Text(),
			Target: m.Group(1), Body: display})
	}
	return l
}

func newEmbed(kind SpanKind, m Match, filename string) Embed {
	e := Embed{
		Span:     Span{Kind: kind, Start: m.Start, End: m.End, Raw: m.Text()},
		Filename: strings.TrimSpace(filename),
	}
	if kind == SpanImage {
		e.Width, _ = strconv.Atoi(m.Group(2))
		e.Height, _ = strconv.Atoi(m.Group(3))
	}
	return e
}
