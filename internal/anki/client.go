// Package anki is a client for the AnkiConnect add-on, the remote card
// store cards are synchronised to.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

// Version is the AnkiConnect API version the client speaks.
const Version = 6

// DefaultURL is where AnkiConnect listens by default.
const DefaultURL = "http://127.0.0.1:8765"

// Client talks to AnkiConnect over HTTP. It makes one attempt per call.
type Client struct {
	URL  string
	Key  string
	HTTP *http.Client
	log  *slog.Logger
}

// New creates a Client. An empty url selects DefaultURL.
func New(url, key string, timeout time.Duration, log *slog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		URL:  strings.TrimRight(url, "/"),
		Key:  key,
		HTTP: &http.Client{Timeout: timeout},
		log:  log,
	}
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
	Key     string `json:"key,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// call performs one action and decodes its result into out, which may be nil.
func (c *Client) call(ctx context.Context, action string, params, out any) error {
	body, err := json.Marshal(request{Action: action, Version: Version, Params: params, Key: c.Key})
	if err != nil {
		return fmt.Errorf("anki: %s: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("anki: %s: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("anki: %s: %w: %v", action, apperr.ErrRemote, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anki: %s: %w: %v", action, apperr.ErrRemote, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("anki: %s: %w: http %d: %s", action, apperr.ErrRemote, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("anki: %s: %w: decode: %v", action, apperr.ErrRemote, err)
	}
	if env.Error != nil {
		return fmt.Errorf("anki: %s: %w: %s", action, apperr.ErrRemote, *env.Error)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("anki: %s: %w: decode result: %v", action, apperr.ErrRemote, err)
		}
	}
	c.log.Debug("anki call", slog.String("action", action))
	return nil
}

// RequestPermission asks AnkiConnect to accept calls from this client.
func (c *Client) RequestPermission(ctx context.Context) error {
	var res struct {
		Permission string `json:"permission"`
	}
	if err := c.call(ctx, "requestPermission", nil, &res); err != nil {
		return err
	}
	if res.Permission != "granted" {
		return fmt.Errorf("anki: requestPermission: %w", apperr.ErrPermissionDenied)
	}
	return nil
}

// Ping checks that AnkiConnect answers with a compatible version.
func (c *Client) Ping(ctx context.Context) error {
	var v int
	if err := c.call(ctx, "version", nil, &v); err != nil {
		return err
	}
	if v < Version {
		return fmt.Errorf("anki: version: %w: server speaks version %d, need %d", apperr.ErrRemote, v, Version)
	}
	return nil
}

// CreateDeck creates a deck. Existing decks are left alone.
func (c *Client) CreateDeck(ctx context.Context, deck string) error {
	return c.call(ctx, "createDeck", map[string]string{"deck": deck}, nil)
}

type addNote struct {
	models.NoteRecord
	Options struct {
		AllowDuplicate bool `json:"allowDuplicate"`
	} `json:"options"`
}

// AddNote creates a note and returns its id.
func (c *Client) AddNote(ctx context.Context, rec models.NoteRecord) (int64, error) {
	var id *int64
	if err := c.call(ctx, "addNote", map[string]any{"note": addNote{NoteRecord: rec}}, &id); err != nil {
		return 0, err
	}
	if id == nil {
		return 0, fmt.Errorf("anki: addNote: %w: note was not added", apperr.ErrRemote)
	}
	return *id, nil
}

// UpdateNote replaces the fields and tags of an existing note.
func (c *Client) UpdateNote(ctx context.Context, rec models.NoteRecord) error {
	note := map[string]any{"id": rec.ID, "fields": rec.Fields, "tags": rec.Tags}
	return c.call(ctx, "updateNote", map[string]any{"note": note}, nil)
}

// DeleteNotes removes notes by id.
func (c *Client) DeleteNotes(ctx context.Context, ids []int64) error {
	return c.call(ctx, "deleteNotes", map[string]any{"notes": ids}, nil)
}

// StoreMediaFile uploads one base64-encoded media file.
func (c *Client) StoreMediaFile(ctx context.Context, m models.MediaRecord) error {
	return c.call(ctx, "storeMediaFile", m, nil)
}

// CreateOrUpdate adds unbound cards, binding them to their new ids, and
// updates bound ones. Decks of new cards are created first.
func (c *Client) CreateOrUpdate(ctx context.Context, cards []*models.Card) error {
	decks := make(map[string]bool)
	for _, card := range cards {
		if card.ID != models.UnboundID || decks[card.Deck] {
			continue
		}
		decks[card.Deck] = true
		if err := c.CreateDeck(ctx, card.Deck); err != nil {
			return err
		}
	}

	for _, card := range cards {
		if card.ID == models.UnboundID {
			id, err := c.AddNote(ctx, card.Record(false))
			if err != nil {
				return err
			}
			card.Bind(id)
			continue
		}
		if err := c.UpdateNote(ctx, card.Record(true)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCards implements reconcile.Store.
func (c *Client) DeleteCards(ctx context.Context, ids []int64) error {
	return c.DeleteNotes(ctx, ids)
}

// StoreMedia implements reconcile.Store.
func (c *Client) StoreMedia(ctx context.Context, media []models.MediaRecord) error {
	for _, m := range media {
		if err := c.StoreMediaFile(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
