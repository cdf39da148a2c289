package parser

import (
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter keys read from notes.
const (
	DeckKey = "cards-deck"
	TagsKey = "tags"
)

// Note is a parsed note: its frontmatter and the context its cards inherit.
// Card offsets refer to Text, frontmatter included.
type Note struct {
	Path        string
	Text        string
	Title       string
	Frontmatter map[string]any
	Context     NoteContext
}

// ParseNote reads the frontmatter of a note and resolves its deck and tags.
// Invalid YAML is ignored and the note is treated as having none.
func (r *Registry) ParseNote(notePath string, data []byte) *Note {
	text := string(data)
	fm, body := splitFrontmatter(text)
	n := &Note{
		Path:        notePath,
		Text:        text,
		Frontmatter: fm,
		Title:       deriveTitle(fm, body, notePath),
	}
	n.Context = NoteContext{
		Path: notePath,
		Deck: r.deckFor(notePath, fm, body),
		Tags: r.frontmatterTags(fm),
	}
	return n
}

// deckFor picks the first of: the cards-deck frontmatter key, a cards-deck
// line in the body, the folder path when folder decks are on, and the
// configured default deck.
func (r *Registry) deckFor(notePath string, fm map[string]any, body string) string {
	if s, ok := fm[DeckKey].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if m, _, ok := r.deckLine.Next(body, 0); ok {
		return strings.TrimSpace(m.Group(1))
	}
	if r.settings.FolderBasedDeck {
		if dir := path.Dir(strings.ReplaceAll(notePath, `\`, "/")); dir != "." && dir != "/" {
			return strings.ReplaceAll(strings.Trim(dir, "/"), "/", "::")
		}
	}
	return r.settings.Deck
}

func (r *Registry) frontmatterTags(fm map[string]any) []string {
	switch v := fm[TagsKey].(type) {
	case string:
		return mergeTags(r.SplitTags(v))
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return mergeTags(out)
	}
	return nil
}

// splitFrontmatter separates a leading YAML block from the body. Without a
// closing delimiter, or with invalid YAML, the whole text is body.
func splitFrontmatter(text string) (map[string]any, string) {
	end := frontmatterEnd(text)
	if end == 0 {
		return nil, text
	}
	block := text[len("---"):end]
	block = block[:strings.LastIndex(block, "\n---")]

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, text
	}
	return fm, text[end:]
}

func deriveTitle(fm map[string]any, body, notePath string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return strings.TrimSuffix(path.Base(notePath), path.Ext(notePath))
}
