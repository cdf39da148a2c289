package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/index"
	"github.com/starford/cardsync/internal/models"
)

const maxNoteBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc    Syncer
	ledger index.Ledger
}

// NewHandler creates a new Handler.
func NewHandler(svc Syncer, ledger index.Ledger) *Handler {
	return &Handler{svc: svc, ledger: ledger}
}

// notePath extracts the note path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Extract handles POST /api/extract.
//
//	@Summary		Extract cards from text without syncing them
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ExtractRequest	true	"Note text"
//	@Success		200		{object}	ExtractResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/extract [post]
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBytes)
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	path := req.Path
	if path == "" {
		path = "untitled.md"
	}
	cards := h.svc.Extract(path, []byte(req.Content))
	if cards == nil {
		cards = []*models.Card{}
	}
	writeJSON(w, http.StatusOK, ExtractResponse{Cards: cards, Count: len(cards)})
}

// SyncVault handles POST /api/sync.
//
//	@Summary		Sync every changed note in the vault
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	syncer.VaultResult
//	@Failure		403	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) SyncVault(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SyncVault(r.Context())
	if err != nil {
		writeSyncError(w, "sync vault", "", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SyncNote handles POST /api/sync/notes/*.
//
//	@Summary		Sync one note
//	@Tags			sync
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	syncer.NoteResult
//	@Failure		403		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/notes/{path} [post]
func (h *Handler) SyncNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" || !strings.HasSuffix(path, ".md") {
		writeJSON(w, http.StatusBadRequest, errorBody("a .md note path is required"))
		return
	}
	res, err := h.svc.SyncNote(r.Context(), path)
	if err != nil {
		writeSyncError(w, "sync note", path, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List synced notes with their card counts
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	notes, total, err := h.ledger.ListNotes(limit, offset)
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: total})
}

// NoteCards handles GET /api/notes/*.
//
//	@Summary		Get the cards last synced from a note
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteCardsResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) NoteCards(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.ledger.GetNote(path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	cards, err := h.ledger.NoteCards(path)
	if err != nil {
		slog.Error("note cards failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if cards == nil {
		cards = []*models.Card{}
	}
	writeJSON(w, http.StatusOK, NoteCardsResponse{Note: note, Cards: cards})
}

// SearchCards handles GET /api/cards/search.
//
//	@Summary		Full-text search across synced cards
//	@Tags			cards
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/search [get]
func (h *Handler) SearchCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.ledger.SearchCards(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
