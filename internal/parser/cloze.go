package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/cardsync/internal/models"
)

// MaxClozeGroup is the largest explicit cloze number honored. Larger
// numbers are treated as unnumbered.
const MaxClozeGroup = 99

type clozeHit struct {
	start, end int
	number     int
	explicit   bool
	text       string
}

// convertClozes rewrites every cloze marker of s into the {{cN::text}} form.
// base is the offset of s within the note, used to skip markers inside code
// and math. Explicit numbers are kept; the rest get the next unused integer
// from 1, left to right. ok is false when nothing was converted.
func (r *Registry) convertClozes(s string, base int, loc Located) (string, []models.ClozeDeletion, bool) {
	used := make(map[int]bool)
	var hits []clozeHit
	for _, m := range r.clozeSingle.All(s) {
		if loc.InProtected(base+m.Start, base+m.End) {
			continue
		}
		h := clozeHit{start: m.Start, end: m.End}
		if m.Has(3) {
			h.text = m.Group(3)
		} else {
			h.text = m.Group(2)
			if m.Has(1) {
				if n, err := strconv.Atoi(m.Group(1)); err == nil && n <= MaxClozeGroup {
					h.number, h.explicit = n, true
					used[n] = true
				}
			}
		}
		hits = append(hits, h)
	}
	if len(hits) == 0 {
		return "", nil, false
	}

	next := 1
	for i := range hits {
		if hits[i].explicit {
			continue
		}
		for used[next] {
			next++
		}
		hits[i].number = next
		used[next] = true
	}

	var sb strings.Builder
	deletions := make([]models.ClozeDeletion, 0, len(hits))
	pos := 0
	for _, h := range hits {
		sb.WriteString(s[pos:h.start])
		fmt.Fprintf(&sb, "{{c%d::%s}}", h.number, h.text)
		pos = h.end
		deletions = append(deletions, models.ClozeDeletion{Number: h.number, Text: h.text})
	}
	sb.WriteString(s[pos:])

	sort.SliceStable(deletions, func(i, j int) bool { return deletions[i].Number < deletions[j].Number })
	return sb.String(), deletions, true
}
