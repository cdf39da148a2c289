// Package reconcile decides which remote operations bring the store in line
// with the cards extracted from a note, and applies them.
package reconcile

import (
	"context"
	"fmt"

	"github.com/starford/cardsync/internal/models"
)

// Store is the remote card store.
type Store interface {
	RequestPermission(ctx context.Context) error
	Ping(ctx context.Context) error
	// CreateOrUpdate adds unbound cards, binding them to the ids the store
	// assigns, and updates bound ones.
	CreateOrUpdate(ctx context.Context, cards []*models.Card) error
	DeleteCards(ctx context.Context, ids []int64) error
	StoreMedia(ctx context.Context, media []models.MediaRecord) error
}

// Plan is the set of operations for one note.
type Plan struct {
	Create    []*models.Card
	Update    []*models.Card
	Unchanged []*models.Card
	Delete    []int64
}

// Empty reports whether the plan needs no remote call.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Rebound returns the cards that Build bound to a known id and whose
// marker still has to be written.
func (p Plan) Rebound() []*models.Card {
	var out []*models.Card
	for _, list := range [][]*models.Card{p.Update, p.Unchanged} {
		for _, c := range list {
			if c.ID != models.UnboundID && !c.Inserted {
				out = append(out, c)
			}
		}
	}
	return out
}

func (p Plan) String() string {
	return fmt.Sprintf("create=%d update=%d unchanged=%d delete=%d",
		len(p.Create), len(p.Update), len(p.Unchanged), len(p.Delete))
}

// Build compares the cards extracted from a note with the cards known for
// it from the previous sync. An unbound card matching an unclaimed known
// card by deck, model and primary field is bound to that card instead of
// being created again. Known cards no extracted card claims are deleted,
// as are the orphan ids, unless an extracted card still carries them.
func Build(extracted, known []*models.Card, orphans []int64) Plan {
	byID := make(map[int64]*models.Card, len(known))
	for _, k := range known {
		byID[k.ID] = k
	}
	claimed := make(map[int64]bool, len(extracted))

	var p Plan
	var unbound []*models.Card
	for _, c := range extracted {
		if c.ID == models.UnboundID {
			unbound = append(unbound, c)
			continue
		}
		claimed[c.ID] = true
		if k, ok := byID[c.ID]; ok && models.Equal(c, k) {
			p.Unchanged = append(p.Unchanged, c)
		} else {
			p.Update = append(p.Update, c)
		}
	}

	for _, c := range unbound {
		k := rebind(c, known, claimed)
		if k == nil {
			p.Create = append(p.Create, c)
			continue
		}
		claimed[k.ID] = true
		c.Bind(k.ID)
		if models.Equal(c, k) {
			p.Unchanged = append(p.Unchanged, c)
		} else {
			p.Update = append(p.Update, c)
		}
	}

	for _, k := range known {
		if !claimed[k.ID] {
			claimed[k.ID] = true
			p.Delete = append(p.Delete, k.ID)
		}
	}
	for _, id := range orphans {
		if !claimed[id] {
			claimed[id] = true
			p.Delete = append(p.Delete, id)
		}
	}
	return p
}

func rebind(c *models.Card, known []*models.Card, claimed map[int64]bool) *models.Card {
	for _, k := range known {
		if !claimed[k.ID] && models.SameContent(c, k) {
			return k
		}
	}
	return nil
}

// Result lists what Apply did.
type Result struct {
	Created []int64 `json:"created"`
	Updated []int64 `json:"updated"`
	Deleted []int64 `json:"deleted"`
	Media   int     `json:"media"`
}

// Apply runs a plan against the store: media first, then cards, then
// deletions. It stops at the first failing call and returns the store
// error unchanged.
func Apply(ctx context.Context, s Store, p Plan) (Result, error) {
	var res Result
	if p.Empty() {
		return res, nil
	}

	cards := make([]*models.Card, 0, len(p.Create)+len(p.Update))
	cards = append(cards, p.Create...)
	cards = append(cards, p.Update...)

	media := mediaRecords(cards)
	if len(media) > 0 {
		if err := s.StoreMedia(ctx, media); err != nil {
			return res, err
		}
		res.Media = len(media)
	}

	if len(cards) > 0 {
		if err := s.CreateOrUpdate(ctx, cards); err != nil {
			return res, err
		}
		for _, c := range p.Create {
			res.Created = append(res.Created, c.ID)
		}
		for _, c := range p.Update {
			res.Updated = append(res.Updated, c.ID)
		}
	}

	if len(p.Delete) > 0 {
		if err := s.DeleteCards(ctx, p.Delete); err != nil {
			return res, err
		}
		res.Deleted = append(res.Deleted, p.Delete...)
	}
	return res, nil
}

func mediaRecords(cards []*models.Card) []models.MediaRecord {
	seen := make(map[string]bool)
	var out []models.MediaRecord
	for _, c := range cards {
		for _, m := range c.MediaRecords() {
			if seen[m.Filename] {
				continue
			}
			seen[m.Filename] = true
			out = append(out, m)
		}
	}
	return out
}
