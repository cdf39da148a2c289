package reconcile

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/testutil"
)

func card(id int64, front, back string) *models.Card {
	return &models.Card{
		ID:       id,
		Deck:     "Default",
		Model:    models.ModelBasic,
		Fields:   models.Fields{{Name: models.FieldFront, Value: front}, {Name: models.FieldBack, Value: back}},
		Tags:     []string{},
		Inserted: id != models.UnboundID,
	}
}

func TestBuild_NewCards(t *testing.T) {
	p := Build([]*models.Card{card(models.UnboundID, "Q", "A")}, nil, nil)
	if len(p.Create) != 1 || len(p.Update) != 0 || len(p.Delete) != 0 {
		t.Errorf("plan = %s", p)
	}
}

func TestBuild_RebindsInsteadOfDuplicating(t *testing.T) {
	known := []*models.Card{card(7, "Q", "A")}
	fresh := card(models.UnboundID, "Q", "A")

	p := Build([]*models.Card{fresh}, known, nil)
	if len(p.Create) != 0 {
		t.Fatalf("duplicate created: %s", p)
	}
	if len(p.Unchanged) != 1 || fresh.ID != 7 {
		t.Errorf("plan = %s, id = %d", p, fresh.ID)
	}
	if got := p.Rebound(); len(got) != 1 || got[0] != fresh {
		t.Errorf("rebound = %v", got)
	}
}

func TestBuild_RebindWithChangedAnswer(t *testing.T) {
	known := []*models.Card{card(7, "Q", "A")}
	fresh := card(models.UnboundID, "Q", "new")
	p := Build([]*models.Card{fresh}, known, nil)
	if len(p.Update) != 1 || fresh.ID != 7 {
		t.Errorf("plan = %s, id = %d", p, fresh.ID)
	}
}

func TestBuild_RebindClaimsOnce(t *testing.T) {
	known := []*models.Card{card(7, "Q", "A")}
	a, b := card(models.UnboundID, "Q", "A"), card(models.UnboundID, "Q", "A")
	p := Build([]*models.Card{a, b}, known, nil)
	if len(p.Unchanged) != 1 || len(p.Create) != 1 {
		t.Errorf("plan = %s", p)
	}
}

func TestBuild_UpdatesAndDeletes(t *testing.T) {
	known := []*models.Card{card(1, "Q1", "A1"), card(2, "Q2", "A2"), card(3, "Q3", "A3")}
	extracted := []*models.Card{card(1, "Q1", "A1"), card(2, "Q2", "changed")}

	p := Build(extracted, known, []int64{9, 1})
	if len(p.Unchanged) != 1 || p.Unchanged[0].ID != 1 {
		t.Errorf("unchanged = %v", p.Unchanged)
	}
	if len(p.Update) != 1 || p.Update[0].ID != 2 {
		t.Errorf("update = %v", p.Update)
	}
	if !reflect.DeepEqual(p.Delete, []int64{3, 9}) {
		t.Errorf("delete = %v, want [3 9]", p.Delete)
	}
	if len(p.Rebound()) != 0 {
		t.Errorf("rebound = %v", p.Rebound())
	}
}

func TestBuild_TagOrderIsNotAChange(t *testing.T) {
	k := card(1, "Q", "A")
	k.Tags = []string{"a", "b"}
	c := card(1, "Q", "A")
	c.Tags = []string{"b", "a"}
	if p := Build([]*models.Card{c}, []*models.Card{k}, nil); !p.Empty() {
		t.Errorf("plan = %s, want empty", p)
	}
}

func TestApply(t *testing.T) {
	store := testutil.NewFakeStore()
	store.Notes[3] = card(3, "gone", "x").Record(true)

	fresh := card(models.UnboundID, "Q", "A")
	fresh.Media = []models.Media{{Name: "m.png", Data: []byte("img")}}
	other := card(models.UnboundID, "Q2", "A2")
	other.Media = []models.Media{{Name: "m.png", Data: []byte("img")}}
	p := Plan{Create: []*models.Card{fresh, other}, Delete: []int64{3}}

	res, err := Apply(context.Background(), store, p)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if fresh.ID == models.UnboundID || other.ID == models.UnboundID {
		t.Fatal("created cards were not bound")
	}
	if !reflect.DeepEqual(res.Created, []int64{fresh.ID, other.ID}) || res.Media != 1 {
		t.Errorf("result = %+v", res)
	}
	if !reflect.DeepEqual(store.Calls, []string{"storeMedia", "createOrUpdate", "deleteCards"}) {
		t.Errorf("calls = %v", store.Calls)
	}
	if !reflect.DeepEqual(store.IDs(), []int64{fresh.ID, other.ID}) {
		t.Errorf("store ids = %v", store.IDs())
	}
}

func TestApply_EmptyPlanMakesNoCalls(t *testing.T) {
	store := testutil.NewFakeStore()
	if _, err := Apply(context.Background(), store, Plan{Unchanged: []*models.Card{card(1, "Q", "A")}}); err != nil {
		t.Fatal(err)
	}
	if len(store.Calls) != 0 {
		t.Errorf("calls = %v", store.Calls)
	}
}

func TestApply_StoreError(t *testing.T) {
	store := testutil.NewFakeStore()
	store.Err = apperr.ErrRemote
	_, err := Apply(context.Background(), store, Plan{Create: []*models.Card{card(models.UnboundID, "Q", "A")}})
	if !errors.Is(err, apperr.ErrRemote) {
		t.Errorf("err = %v, want ErrRemote", err)
	}
}
