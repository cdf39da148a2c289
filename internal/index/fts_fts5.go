//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS cards_fts USING fts5(
			card_id UNINDEXED,
			note_path UNINDEXED,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, id int64, notePath, body string, tags []string) error {
	_, err := tx.Exec(`INSERT INTO cards_fts (card_id, note_path, body, tags) VALUES (?, ?, ?, ?)`,
		id, notePath, body, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsDeleteCard(tx *sql.Tx, id int64) error {
	if _, err := tx.Exec(`DELETE FROM cards_fts WHERE card_id = ?`, id); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

func ftsDeleteNote(tx *sql.Tx, notePath string) error {
	if _, err := tx.Exec(`DELETE FROM cards_fts WHERE note_path = ?`, notePath); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

// SearchCards performs an FTS5 full-text search over card text and returns
// matching cards with snippets.
func (db *DB) SearchCards(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT c.id, c.note_path, c.deck, c.model,
		       snippet(cards_fts, 2, '<b>', '</b>', '...', 32)
		FROM cards_fts
		JOIN cards c ON c.id = cards_fts.card_id
		WHERE cards_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.NotePath, &r.Deck, &r.Model, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
