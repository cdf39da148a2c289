package parser

import "strings"

// parseTagList splits a trailing "#a #b/c" list into tag names, skipping the
// flashcard tag itself and its /reverse form.
func (r *Registry) parseTagList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "#") {
		t := strings.TrimSpace(part)
		if t == "" || r.isCardTag(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *Registry) isCardTag(t string) bool {
	t = strings.ToLower(t)
	base := r.settings.FlashcardsTag
	return t == base || t == base+"/reverse" || t == base+"-reverse"
}

// SplitTags splits a free-form tag string, as found in frontmatter, into tag
// names. It recognizes [[wikilinks]], #hierarchical/tags and bare tokens, in
// that order.
func (r *Registry) SplitTags(s string) []string {
	var out []string
	for _, m := range r.tagSplitter.All(s) {
		var t string
		switch {
		case m.Has(1):
			t = m.Group(1)
		case m.Has(2):
			t = m.Group(2)
		default:
			t = m.Group(3)
		}
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// mergeTags concatenates tag lists, dropping blanks and duplicates while
// keeping first-seen order.
func mergeTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, t := range list {
			t = strings.TrimSpace(strings.TrimPrefix(t, "#"))
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
