package parser

import (
	"sort"
	"strings"

	"github.com/starford/cardsync/internal/models"
)

// InsertMarkers writes an identity marker after every bound card whose
// marker is not in text yet and returns the new text. Cards are marked as
// inserted. When anything was written the offsets of all cards no longer
// match the text, so every card is marked stale.
func InsertMarkers(text string, cards []*models.Card) string {
	var pending []*models.Card
	for _, c := range cards {
		if c.ID != models.UnboundID && !c.Inserted {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return text
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].EndOffset < pending[j].EndOffset })

	var sb strings.Builder
	sb.Grow(len(text) + len(pending)*32)
	pos := 0
	for _, c := range pending {
		if c.EndOffset < pos || c.EndOffset > len(text) {
			continue
		}
		sb.WriteString(text[pos:c.EndOffset])
		sb.WriteString("\n")
		sb.WriteString(c.IDMarker())
		pos = c.EndOffset
		c.Inserted = true
	}
	sb.WriteString(text[pos:])

	for _, c := range cards {
		c.MarkStale()
	}
	return sb.String()
}

// OrphanMarkers returns the ids of markers standing alone after a blank
// line, which no longer follow any card.
func (r *Registry) OrphanMarkers(text string) []int64 {
	var out []int64
	for _, m := range r.orphanMarker.All(text) {
		if id := parseID(m.Group(1)); id != models.UnboundID {
			out = append(out, id)
		}
	}
	return out
}

// RemoveOrphanMarkers deletes orphan markers together with the blank run in
// front of them, leaving one line break.
func (r *Registry) RemoveOrphanMarkers(text string) string {
	matches := r.orphanMarker.All(text)
	if len(matches) == 0 {
		return text
	}
	var sb strings.Builder
	pos := 0
	for _, m := range matches {
		sb.WriteString(text[pos:m.Start])
		sb.WriteString("\n")
		pos = m.End
	}
	sb.WriteString(text[pos:])
	return sb.String()
}
