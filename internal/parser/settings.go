package parser

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Defaults applied by Normalize.
const (
	DefaultFlashcardsTag          = "card"
	DefaultInlineSeparator        = "::"
	DefaultInlineSeparatorReverse = ":::"
	DefaultDeck                   = "Default"
	DefaultContextSeparator       = " > "
)

// Settings is the immutable configuration snapshot the extraction engine
// runs with. Pass it by value; Compile and NewBuilder keep their own copy.
type Settings struct {
	FlashcardsTag          string `yaml:"tag" json:"tag"`
	InlineSeparator        string `yaml:"inline_separator" json:"inline_separator"`
	InlineSeparatorReverse string `yaml:"inline_separator_reverse" json:"inline_separator_reverse"`
	ContextAwareMode       bool   `yaml:"context_aware" json:"context_aware"`
	ContextSeparator       string `yaml:"context_separator" json:"context_separator"`
	SourceSupport          bool   `yaml:"source_support" json:"source_support"`
	CodeHighlightSupport   bool   `yaml:"code_highlight" json:"code_highlight"`
	BacklinkSupport        bool   `yaml:"backlink_support" json:"backlink_support"`
	FolderBasedDeck        bool   `yaml:"folder_based_deck" json:"folder_based_deck"`
	DefaultAnkiTag         string `yaml:"default_anki_tag" json:"default_anki_tag"`
	Deck                   string `yaml:"deck" json:"deck"`

	// VaultName is used to build obsidian:// links for the Source field and
	// backlinks. It is filled from the vault configuration.
	VaultName string `yaml:"-" json:"-"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		FlashcardsTag:          DefaultFlashcardsTag,
		InlineSeparator:        DefaultInlineSeparator,
		InlineSeparatorReverse: DefaultInlineSeparatorReverse,
		ContextSeparator:       DefaultContextSeparator,
		Deck:                   DefaultDeck,
	}
}

// Normalize returns a copy with values trimmed and defaults applied. The tag
// is stored lowercase without a leading '#'. A reverse separator equal to the
// inline one falls back to the default that differs from it. An empty tag is kept empty so
// Compile can reject it.
func (s Settings) Normalize() Settings {
	lower := cases.Lower(language.Und)

	s.FlashcardsTag = lower.String(strings.TrimPrefix(strings.TrimSpace(s.FlashcardsTag), "#"))
	s.DefaultAnkiTag = lower.String(strings.TrimSpace(s.DefaultAnkiTag))

	s.InlineSeparator = strings.TrimSpace(s.InlineSeparator)
	if s.InlineSeparator == "" {
		s.InlineSeparator = DefaultInlineSeparator
	}
	s.InlineSeparatorReverse = strings.TrimSpace(s.InlineSeparatorReverse)
	if s.InlineSeparatorReverse == "" || s.InlineSeparatorReverse == s.InlineSeparator {
		s.InlineSeparatorReverse = DefaultInlineSeparatorReverse
	}
	if s.InlineSeparatorReverse == s.InlineSeparator {
		s.InlineSeparatorReverse = DefaultInlineSeparator
	}

	if s.ContextSeparator == "" {
		s.ContextSeparator = DefaultContextSeparator
	}
	s.Deck = strings.TrimSpace(s.Deck)
	if s.Deck == "" {
		s.Deck = DefaultDeck
	}
	return s
}
