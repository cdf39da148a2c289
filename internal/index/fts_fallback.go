//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; card search uses LIKE on the cards.body column.
	return nil
}

func ftsInsert(_ *sql.Tx, _ int64, _, _ string, _ []string) error {
	// Body is already stored in the cards table; nothing extra to do.
	return nil
}

func ftsDeleteCard(_ *sql.Tx, _ int64) error { return nil }

func ftsDeleteNote(_ *sql.Tx, _ string) error { return nil }

// SearchCards performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) SearchCards(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, note_path, deck, model, substr(body, 1, 200)
		FROM cards
		WHERE body LIKE ? OR tags LIKE ? OR deck LIKE ?
		ORDER BY note_path, position
		LIMIT ?
	`, like, like, like, limit)
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
