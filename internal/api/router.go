package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsync/internal/index"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc Syncer, ledger index.Ledger, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, ledger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/extract", h.Extract)

	r.Post("/sync", h.SyncVault)
	r.Post("/sync/notes/*", h.SyncNote)

	// Ledger.
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/*", h.NoteCards)
	r.Get("/cards/search", h.SearchCards)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
