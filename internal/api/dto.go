package api

import (
	"github.com/starford/cardsync/internal/index"
	"github.com/starford/cardsync/internal/models"
)

// ExtractRequest is the request body for a dry-run extraction. Path only
// supplies context such as the folder deck and backlinks.
type ExtractRequest struct {
	Path    string `json:"path" example:"biology/cells.md"`
	Content string `json:"content" example:"What is ATP? :: The energy currency of the cell" validate:"required"`
}

// ExtractResponse lists the cards found in the submitted text.
type ExtractResponse struct {
	Cards []*models.Card `json:"cards" validate:"required"`
	Count int            `json:"count" example:"1" validate:"required"`
}

// NoteListResponse wraps paginated ledger notes.
type NoteListResponse struct {
	Notes []index.NoteSummary `json:"notes" validate:"required"`
	Total int                 `json:"total" example:"42" validate:"required"`
}

// NoteCardsResponse is a ledger note with the cards last synced from it.
type NoteCardsResponse struct {
	Note  *index.NoteRow `json:"note" validate:"required"`
	Cards []*models.Card `json:"cards" validate:"required"`
}

// SearchResponse wraps card search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}
