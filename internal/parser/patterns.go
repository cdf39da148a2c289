// Package parser is the text-to-card extraction engine. It compiles the
// flashcard settings into matchers, scans note text for card candidates and
// builds typed cards from them.
package parser

import (
	"fmt"
	"regexp"

	"github.com/starford/cardsync/internal/apperr"
)

const (
	imageExtensions = `png|jpg|jpeg|gif|bmp|svg|tiff|webp|avif`
	audioExtensions = `mp3|webm|wav|m4a|ogg|3gp|flac`
)

// Registry holds every matcher the extractor and builder use. It is
// immutable after Compile and safe for concurrent use.
type Registry struct {
	settings Settings

	headings      *Matcher
	wikiImage     *Matcher
	markdownImage *Matcher
	wikiAudio     *Matcher
	wikiEmbed     *Matcher
	wikilink      *Matcher
	codeFence     *Matcher
	codeHTML      *Matcher
	codeInline    *Matcher
	mathBlock     *Matcher
	mathInline    *Matcher
	deckLine      *Matcher
	tagSplitter   *Matcher
	orphanMarker  *Matcher

	withTag *Matcher
	cloze   *Matcher
	spaced  *Matcher
	inline  *Matcher

	clozeMarker *Matcher
	clozeSingle *Matcher
	markerLine  *regexp.Regexp
	calloutLine *regexp.Regexp
	mediaExt    *regexp.Regexp
}

// Settings returns the normalized settings the registry was compiled from.
func (r *Registry) Settings() Settings {
	return r.settings
}

// Compile builds a Registry from settings. It fails with
// apperr.ErrInvalidConfiguration when the tag is empty or the two inline
// separators still collide after Normalize.
func Compile(settings Settings) (*Registry, error) {
	s := settings.Normalize()
	if s.FlashcardsTag == "" {
		return nil, fmt.Errorf("parser: compile: %w: flashcards tag is empty", apperr.ErrInvalidConfiguration)
	}
	if s.InlineSeparator == s.InlineSeparatorReverse {
		return nil, fmt.Errorf("parser: compile: %w: inline separators are both %q",
			apperr.ErrInvalidConfiguration, s.InlineSeparator)
	}

	tag := regexp.QuoteMeta(s.FlashcardsTag)

	// The longer separator goes first so that a shorter one that is its
	// prefix never wins at the same position.
	long, short := s.InlineSeparator, s.InlineSeparatorReverse
	if len(short) > len(long) {
		long, short = short, long
	}

	r := &Registry{
		settings: s,

		headings: newMatcher(`(?m)^ {0,3}(#{1,6}) +([^\n]+?) ?((?: *#\S+)*) *$`, true),

		wikiImage:     newMatcher(`(?i)!\[\[([^|\n\]]+\.(?:`+imageExtensions+`))(?:\|(\d+)(?:x(\d+))?)?\]\]`, false),
		markdownImage: newMatcher(`(?i)!\[[^\]\n]*\]\(([^|\n)]+\.(?:`+imageExtensions+`))(?:\|(\d+)(?:x(\d+))?)?\)`, false),
		wikiAudio:     newMatcher(`(?i)!\[\[([^\n\]|]*?\.(?:`+audioExtensions+`))[^\n\]]*\]\]`, false),
		wikiEmbed:     newMatcher(`!\[\[([^\n\]]+?)\]\]`, false),
		wikilink:      newMatcher(`\[\[([^\n\]|]+)(?:\|([^\n\]]+))?\]\]`, false),

		codeFence:  newMatcher("(?ms)```([^\\n`]*)\\n?(.*?)```(?:\\n|$)", false),
		codeHTML:   newMatcher(`(?is)<code\b[^>]*>(.*?)</code>`, false),
		codeInline: newMatcher("`([^`\\n]+)`", false),
		mathBlock:  newMatcher(`(?s)\$\$(.*?)\$\$`, false),
		mathInline: newMatcher(`\$([^\n$]*?)\$`, false),

		deckLine:    newMatcher(`(?im)^cards-deck: *([\p{L}\p{N}:_\- ]+?) *$`, true),
		tagSplitter: newMatcher(`(?i)\[\[(.*?)\]\]|#([\p{L}\d:\-_/]+)|([\p{L}\d:\-_/]+)`, false),

		orphanMarker: newMatcher(`(?m)^\s*\n<!-- ankiID: (\d+) -->\n?`, true),

		withTag: newMatcher(`(?im)^(> *(?:\[!\w+\](?:-|\+)? *)?)?(?:(?:[-*+]|\d+\.) *)?( {0,3}#*)([^\n]+?)(#`+
			tag+`(?:[/-]reverse)?)((?: *#[\p{N}\p{L}\-/_]+)*) *?$`, true),

		cloze: newMatcher(`(?m)( {0,3}#{0,6})?(?:[\t ]*(?:\d+\.|[-+*]|#{1,6}))?(.*?(==.+?==|\{.+?\}).*?)`+
			`((?: *#[\w\-/_]+)+ *$|$)(?:\n<!-- ankiID: (\d+) -->)?`, false),

		spaced: newMatcher(`(?i)( {0,3}#*)((?:[^\n]\n?)+?)(#`+tag+`[/-]spaced)((?: *#[\p{L}\-]+)*) *\n?(?:<!-- ankiID: (\d+) -->)?`, false),

		inline: newMatcher(`(?m)( {0,3}#{0,6})?(?:[\t ]*(?:\d+\.|[-+*]|#{1,6}))?(.+?) ?(`+
			regexp.QuoteMeta(long)+`|`+regexp.QuoteMeta(short)+`) ?(.+?)((?: *#[\p{L}\-/_]+)+ *$|$)(?:\n<!-- ankiID: (\d+) -->)?`, false),

		clozeMarker: newMatcher(`==.+?==|\{.+?\}`, false),
		clozeSingle: newMatcher(`\{(?:(\d+):)?(.+?)\}|==(.+?)==`, false),
		markerLine:  regexp.MustCompile(`^<!-- ankiID: (\d+) -->\s*$`),
		calloutLine: regexp.MustCompile(`^> ?`),
		mediaExt:    regexp.MustCompile(`(?i)\.(?:` + imageExtensions + `|` + audioExtensions + `)$`),
	}
	return r, nil
}
