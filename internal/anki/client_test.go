package anki

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

type fakeAnki struct {
	mu       sync.Mutex
	requests []map[string]any
	results  map[string]any
	errors   map[string]string
}

func (f *fakeAnki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	action, _ := req["action"].(string)
	resp := map[string]any{"result": f.results[action], "error": nil}
	if msg, ok := f.errors[action]; ok {
		resp["error"] = msg
	}
	f.mu.Unlock()
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeAnki) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i], _ = r["action"].(string)
	}
	return out
}

func newTestClient(t *testing.T, f *fakeAnki) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(srv.URL, "", 5*time.Second, nil)
}

func TestEnvelope(t *testing.T) {
	f := &fakeAnki{results: map[string]any{"version": 6}}
	c := newTestClient(t, f)
	c.Key = "secret"
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	req := f.requests[0]
	if req["action"] != "version" || req["version"] != float64(Version) || req["key"] != "secret" {
		t.Errorf("request = %v", req)
	}
	if _, ok := req["params"]; ok {
		t.Errorf("params sent for a parameterless action: %v", req)
	}
}

func TestPing_OldVersion(t *testing.T) {
	c := newTestClient(t, &fakeAnki{results: map[string]any{"version": 5}})
	if err := c.Ping(context.Background()); !errors.Is(err, apperr.ErrRemote) {
		t.Errorf("err = %v, want ErrRemote", err)
	}
}

func TestRequestPermission(t *testing.T) {
	c := newTestClient(t, &fakeAnki{results: map[string]any{
		"requestPermission": map[string]any{"permission": "granted", "version": 6},
	}})
	if err := c.RequestPermission(context.Background()); err != nil {
		t.Errorf("granted: %v", err)
	}

	c = newTestClient(t, &fakeAnki{results: map[string]any{
		"requestPermission": map[string]any{"permission": "denied"},
	}})
	if err := c.RequestPermission(context.Background()); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("denied: err = %v", err)
	}
}

func TestRemoteError(t *testing.T) {
	c := newTestClient(t, &fakeAnki{errors: map[string]string{"deleteNotes": "collection is not available"}})
	err := c.DeleteCards(context.Background(), []int64{1})
	if !errors.Is(err, apperr.ErrRemote) {
		t.Fatalf("err = %v, want ErrRemote", err)
	}
}

func TestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, "", time.Second, nil)
	if err := c.Ping(context.Background()); !errors.Is(err, apperr.ErrRemote) {
		t.Errorf("err = %v, want ErrRemote", err)
	}
}

func TestCreateOrUpdate(t *testing.T) {
	f := &fakeAnki{results: map[string]any{"addNote": 1700000000001, "createDeck": 1}}
	c := newTestClient(t, f)

	fresh := &models.Card{
		ID:     models.UnboundID,
		Deck:   "Lang::Go",
		Model:  models.ModelBasic,
		Fields: models.Fields{{Name: models.FieldFront, Value: "Q"}, {Name: models.FieldBack, Value: "A"}},
		Tags:   []string{"lang/go"},
	}
	bound := &models.Card{
		ID:     42,
		Deck:   "Lang::Go",
		Model:  models.ModelBasic,
		Fields: models.Fields{{Name: models.FieldFront, Value: "Q2"}, {Name: models.FieldBack, Value: "A2"}},
		Tags:   []string{},
	}
	if err := c.CreateOrUpdate(context.Background(), []*models.Card{fresh, bound}); err != nil {
		t.Fatal(err)
	}
	if fresh.ID != 1700000000001 {
		t.Errorf("fresh id = %d", fresh.ID)
	}

	got := f.actions()
	want := []string{"createDeck", "addNote", "updateNote"}
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("actions = %v, want %v", got, want)
		}
	}

	note := f.requests[1]["params"].(map[string]any)["note"].(map[string]any)
	if note["deckName"] != "Lang::Go" || note["modelName"] != models.ModelBasic {
		t.Errorf("addNote note = %v", note)
	}
	if tags := note["tags"].([]any); len(tags) != 1 || tags[0] != "lang::go" {
		t.Errorf("addNote tags = %v", tags)
	}
	if _, ok := note["id"]; ok {
		t.Errorf("addNote carries an id: %v", note)
	}
	upd := f.requests[2]["params"].(map[string]any)["note"].(map[string]any)
	if upd["id"] != float64(42) {
		t.Errorf("updateNote note = %v", upd)
	}
}

func TestAddNote_NullResult(t *testing.T) {
	c := newTestClient(t, &fakeAnki{results: map[string]any{}})
	if _, err := c.AddNote(context.Background(), models.NoteRecord{DeckName: "D"}); !errors.Is(err, apperr.ErrRemote) {
		t.Errorf("err = %v, want ErrRemote", err)
	}
}

func TestStoreMedia(t *testing.T) {
	f := &fakeAnki{}
	c := newTestClient(t, f)
	media := []models.MediaRecord{{Filename: "a.png", Data: "aGk="}, {Filename: "b.mp3", Data: "aGk="}}
	if err := c.StoreMedia(context.Background(), media); err != nil {
		t.Fatal(err)
	}
	if len(f.requests) != 2 {
		t.Fatalf("requests = %d", len(f.requests))
	}
	params := f.requests[0]["params"].(map[string]any)
	if params["filename"] != "a.png" || params["data"] != "aGk=" {
		t.Errorf("params = %v", params)
	}
}
