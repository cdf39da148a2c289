// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes card extraction and sync tools for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/index"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/storage"
	"github.com/starford/cardsync/internal/syncer"
)

// CardSyntaxURI is the resource serving CardSyntax.
const CardSyntaxURI = "cardsync://card-syntax"

// Syncer is the part of the sync service the tools drive.
type Syncer interface {
	Extract(path string, text []byte) []*models.Card
	SyncNote(ctx context.Context, path string) (syncer.NoteResult, error)
}

// Server wraps the MCP server with cardsync tools.
type Server struct {
	mcp    *server.MCPServer
	svc    Syncer
	vault  storage.Provider
	ledger index.Ledger
}

// New creates a new MCP server with all tools registered.
func New(svc Syncer, vault storage.Provider, ledger index.Ledger, version string) *Server {
	s := &Server{svc: svc, vault: vault, ledger: ledger}

	s.mcp = server.NewMCPServer(
		"cardsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("extract_cards",
		mcp.WithDescription("Show the flashcards a note would produce, without syncing anything. "+
			"Pass content to preview unsaved text, or only path to read the note from the vault. "+
			"The recognized syntax is described by get_card_syntax or the "+CardSyntaxURI+" resource."),
		mcp.WithString("path", mcp.Description("Relative path of the note (e.g. folder/note.md)")),
		mcp.WithString("content", mcp.Description("Markdown text to scan instead of the file on disk")),
	), s.extractCards)

	s.mcp.AddTool(mcp.NewTool("sync_note",
		mcp.WithDescription("Sync one note with the card store: create, update and delete its cards "+
			"and write identity markers back into the note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note (must end with .md)")),
	), s.syncNote)

	s.mcp.AddTool(mcp.NewTool("list_note_cards",
		mcp.WithDescription("List the cards recorded for a note at its last sync."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note")),
	), s.listNoteCards)

	s.mcp.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Full-text search through synced card fields and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCards)

	s.mcp.AddTool(mcp.NewTool("get_card_syntax",
		mcp.WithDescription("Returns the Markdown patterns recognized as flashcards. "+
			"Call this before writing cards into a note."),
	), s.getCardSyntax)

	s.mcp.AddResource(
		mcp.NewResource(CardSyntaxURI, "Card Syntax",
			mcp.WithResourceDescription("Markdown patterns recognized as flashcards."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardSyntax,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) extractCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	content := req.GetString("content", "")
	if content == "" {
		if path == "" {
			return mcp.NewToolResultError("path or content is required"), nil
		}
		data, err := s.vault.Read(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		content = string(data)
	}
	if path == "" {
		path = "untitled.md"
	}
	cards := s.svc.Extract(path, []byte(content))
	if cards == nil {
		cards = []*models.Card{}
	}
	return jsonResult(cards), nil
}

func (s *Server) syncNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.SyncNote(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrPermissionDenied) {
			return mcp.NewToolResultError("the card store denied permission; approve cardsync in Anki and retry"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) listNoteCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.ledger.GetNote(path); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("note not synced yet: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	cards, err := s.ledger.NoteCards(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(cards) == 0 {
		return mcp.NewToolResultText("no cards recorded"), nil
	}
	return jsonResult(cards), nil
}

func (s *Server) searchCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.ledger.SearchCards(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return jsonResult(results), nil
}

func (s *Server) getCardSyntax(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardSyntax), nil
}

func (s *Server) readCardSyntax(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      CardSyntaxURI,
			MIMEType: "text/markdown",
			Text:     CardSyntax,
		},
	}, nil
}
