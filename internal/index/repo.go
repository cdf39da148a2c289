package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteSummary is a note with the number of cards it holds.
type NoteSummary struct {
	NoteRow
	Cards int `json:"cards"`
}

// SearchResult represents one card search hit.
type SearchResult struct {
	ID       int64  `json:"id"`
	NotePath string `json:"note_path"`
	Deck     string `json:"deck"`
	Model    string `json:"model"`
	Snippet  string `json:"snippet"`
}

// cardBody flattens the card fields into searchable text.
func cardBody(c *models.Card) string {
	parts := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Value != "" && f.Name != models.FieldSource {
			parts = append(parts, f.Value)
		}
	}
	return strings.Join(parts, "\n")
}

// ReplaceNoteCards records the sync state of a note: its checksum and the
// bound cards it produced. Cards previously stored for the note are
// replaced. A card id already owned by another note moves to this one.
func (db *DB) ReplaceNoteCards(n NoteRow, cards []*models.Card) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}
	_, err = tx.Exec(`
		INSERT INTO notes (path, title, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, n.Path, n.Title, n.Checksum, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	if err := ftsDeleteNote(tx, n.Path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM cards WHERE note_path = ?`, n.Path); err != nil {
		return fmt.Errorf("index: clear cards: %w", err)
	}

	if len(cards) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO cards (id, note_path, position, deck, model, fields, tags, media, body, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				note_path  = excluded.note_path,
				position   = excluded.position,
				deck       = excluded.deck,
				model      = excluded.model,
				fields     = excluded.fields,
				tags       = excluded.tags,
				media      = excluded.media,
				body       = excluded.body,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("index: prepare card insert: %w", err)
		}
		defer stmt.Close()

		for i, c := range cards {
			if c.ID == models.UnboundID {
				continue
			}
			fieldsJSON, _ := json.Marshal([]models.Field(c.Fields))
			tagsJSON, _ := json.Marshal(nonNil(c.Tags))
			mediaJSON, _ := json.Marshal(nonNil(c.MediaNames()))
			body := cardBody(c)
			if err := ftsDeleteCard(tx, c.ID); err != nil {
				return err
			}
			if _, err := stmt.Exec(c.ID, n.Path, i, c.Deck, c.Model, string(fieldsJSON), string(tagsJSON),
				string(mediaJSON), body, n.UpdatedAt); err != nil {
				return fmt.Errorf("index: insert card %d: %w", c.ID, err)
			}
			if err := ftsInsert(tx, c.ID, n.Path, body, c.Tags); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// NoteCards returns the cards stored for a note in note order. The cards
// carry deck, model, fields, tags and media names; offsets are not kept.
func (db *DB) NoteCards(path string) ([]*models.Card, error) {
	rows, err := db.conn.Query(`
		SELECT id, deck, model, fields, tags, media
		FROM cards WHERE note_path = ? ORDER BY position, id
	`, path)
	if err != nil {
		return nil, fmt.Errorf("index: note cards: %w", err)
	}
	defer rows.Close()

	var out []*models.Card
	for rows.Next() {
		var (
			c                           models.Card
			fieldsJSON, tagsJSON, mJSON string
		)
		if err := rows.Scan(&c.ID, &c.Deck, &c.Model, &fieldsJSON, &tagsJSON, &mJSON); err != nil {
			return nil, fmt.Errorf("index: note cards: %w", err)
		}
		var fields []models.Field
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("index: note cards: card %d fields: %w", c.ID, err)
		}
		c.Fields = models.Fields(fields)
		if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
			return nil, fmt.Errorf("index: note cards: card %d tags: %w", c.ID, err)
		}
		var names []string
		if err := json.Unmarshal([]byte(mJSON), &names); err != nil {
			return nil, fmt.Errorf("index: note cards: card %d media: %w", c.ID, err)
		}
		for _, name := range names {
			c.Media = append(c.Media, models.Media{Name: name, NotePath: path})
		}
		c.Inserted = true
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetNote returns the stored row for a note.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	var n NoteRow
	err := db.conn.QueryRow(`SELECT path, title, checksum, updated_at FROM notes WHERE path = ?`, path).
		Scan(&n.Path, &n.Title, &n.Checksum, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return &n, nil
}

// ListNotes returns a page of synced notes ordered by path, and the total.
func (db *DB) ListNotes(limit, offset int) ([]NoteSummary, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}
	rows, err := db.conn.Query(`
		SELECT n.path, n.title, n.checksum, n.updated_at,
		       (SELECT count(*) FROM cards c WHERE c.note_path = n.path)
		FROM notes n ORDER BY n.path LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteSummary
	for rows.Next() {
		var s NoteSummary
		if err := rows.Scan(&s.Path, &s.Title, &s.Checksum, &s.UpdatedAt, &s.Cards); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// DeleteNote removes a note and its cards, returning the ids it owned.
func (db *DB) DeleteNote(path string) ([]int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.Query(`SELECT id FROM cards WHERE note_path = ? ORDER BY position, id`, path)
	if err != nil {
		return nil, fmt.Errorf("index: delete note: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	if err := ftsDeleteNote(tx, path); err != nil {
		return nil, err
	}
	_, _ = tx.Exec(`DELETE FROM cards WHERE note_path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM notes WHERE path = ?`, path)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("index: delete note: %w", err)
	}
	return ids, nil
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllPaths returns every synced note path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums returns the stored checksum of every synced note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
