package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/index"
	"github.com/starford/cardsync/internal/parser"
	"github.com/starford/cardsync/internal/syncer"
	"github.com/starford/cardsync/internal/testutil"
)

type testEnv struct {
	vaultDir string
	db       *index.DB
	store    *testutil.FakeStore
	router   http.Handler
}

// newTestEnv sets up a temp vault, ledger, fake card store and router.
// An empty token means auth is disabled.
func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	return newTestEnvWithSSE(t, token, nil)
}

func newTestEnvWithSSE(t *testing.T, token string, sseHandler http.Handler) *testEnv {
	t.Helper()
	vaultDir, vault := testutil.TestVault(t)
	db := testutil.TestDB(t)
	store := testutil.NewFakeStore()
	reg, err := parser.Compile(parser.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := syncer.New(reg, vault, db, store, syncer.WithLogger(logger))
	return &testEnv{
		vaultDir: vaultDir,
		db:       db,
		store:    store,
		router:   NewRouter(svc, db, token != "", token, sseHandler),
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestExtract(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodPost, "/extract", ExtractRequest{
		Path:    "bio/cells.md",
		Content: "What is ATP? :: Energy currency\n\nThe {mitochondria} is the powerhouse\n",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("extract = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
		Cards []struct {
			ID    int64  `json:"id"`
			Style string `json:"style"`
		} `json:"cards"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || len(resp.Cards) != 2 {
		t.Fatalf("count = %d, cards = %d", resp.Count, len(resp.Cards))
	}
	if resp.Cards[0].Style != "basic" || resp.Cards[1].Style != "cloze" {
		t.Errorf("styles = %s, %s", resp.Cards[0].Style, resp.Cards[1].Style)
	}
	if len(e.store.Calls) != 0 {
		t.Errorf("dry run called the store: %v", e.store.Calls)
	}
}

func TestExtract_BadRequest(t *testing.T) {
	e := newTestEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/extract", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}

	if w := e.do(t, http.MethodPost, "/extract", ExtractRequest{Path: "a.md"}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("empty content = %d, want 400", w.Code)
	}
}

func TestSyncNoteAndListCards(t *testing.T) {
	e := newTestEnv(t, "")
	testutil.WriteNote(t, e.vaultDir, "topics/q.md", "Q1 :: A1\n\nQ2 :: A2\n")

	w := e.do(t, http.MethodPost, "/sync/notes/topics/q.md", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("sync note = %d, body = %s", w.Code, w.Body.String())
	}
	var res syncer.NoteResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 2 {
		t.Errorf("created = %v", res.Created)
	}

	// Encoded slashes resolve to the same note.
	w = e.do(t, http.MethodGet, "/notes/topics%2Fq.md", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("note cards = %d, body = %s", w.Code, w.Body.String())
	}
	var nc struct {
		Note  index.NoteRow `json:"note"`
		Cards []struct {
			ID int64 `json:"id"`
		} `json:"cards"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &nc); err != nil {
		t.Fatal(err)
	}
	if nc.Note.Path != "topics/q.md" || len(nc.Cards) != 2 {
		t.Errorf("note = %+v, cards = %d", nc.Note, len(nc.Cards))
	}
}

func TestSyncNote_RequiresMarkdownPath(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodPost, "/sync/notes/image.png", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("non-note path = %d, want 400", w.Code)
	}
}

func TestSyncVaultAndListNotes(t *testing.T) {
	e := newTestEnv(t, "")
	testutil.WriteNote(t, e.vaultDir, "a.md", "Qa :: Aa\n")
	testutil.WriteNote(t, e.vaultDir, "b.md", "Qb :: Ab\n\nQc :: Ac\n")

	w := e.do(t, http.MethodPost, "/sync", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("sync = %d, body = %s", w.Code, w.Body.String())
	}
	var vr syncer.VaultResult
	if err := json.Unmarshal(w.Body.Bytes(), &vr); err != nil {
		t.Fatal(err)
	}
	if vr.Scanned != 2 || len(vr.Notes) != 2 {
		t.Errorf("vault result = %+v", vr)
	}

	w = e.do(t, http.MethodGet, "/notes?limit=10", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var list NoteListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 2 || len(list.Notes) != 2 {
		t.Errorf("list = %+v", list)
	}
}

func TestSync_StoreErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.ErrPermissionDenied, http.StatusForbidden},
		{apperr.ErrRemote, http.StatusBadGateway},
	}
	for _, tt := range tests {
		e := newTestEnv(t, "")
		e.store.Err = tt.err
		if w := e.do(t, http.MethodPost, "/sync", nil, ""); w.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestNoteCards_NotFound(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodGet, "/notes/nope.md", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestSearchCards(t *testing.T) {
	e := newTestEnv(t, "")
	testutil.WriteNote(t, e.vaultDir, "find.md", "What is uniquetoken? :: A word\n")
	if w := e.do(t, http.MethodPost, "/sync", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("sync = %d", w.Code)
	}

	w := e.do(t, http.MethodGet, "/cards/search?q=uniquetoken", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].NotePath != "find.md" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchCards_MissingQuery(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodGet, "/cards/search", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t, "secret123")
	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", "secret123", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "wrong", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := e.do(t, http.MethodGet, "/notes", nil, tt.token); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodGet, "/notes", nil, ""); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// blockingSSE writes stream headers and blocks until the request ends.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestEvents_AuthProtected(t *testing.T) {
	e := newTestEnvWithSSE(t, "secret", blockingSSE)
	if w := e.do(t, http.MethodGet, "/events", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("events no auth = %d, want 401", w.Code)
	}
}

func TestEvents_ValidToken(t *testing.T) {
	e := newTestEnvWithSSE(t, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("events with valid token = %d, want 200", w.Code)
	}
}
