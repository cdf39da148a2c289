package index

import "github.com/starford/cardsync/internal/models"

// Ledger defines the card ledger operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Ledger interface {
	ReplaceNoteCards(n NoteRow, cards []*models.Card) error
	NoteCards(path string) ([]*models.Card, error)
	GetNote(path string) (*NoteRow, error)
	ListNotes(limit, offset int) ([]NoteSummary, int, error)
	DeleteNote(path string) ([]int64, error)
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	AllPaths() (map[string]struct{}, error)
	SearchCards(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Ledger at compile time.
var _ Ledger = (*DB)(nil)
