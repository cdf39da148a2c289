// Package testutil provides shared test helpers for setting up vaults,
// ledgers and a fake remote store.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/index"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/storage"
)

// TestDB creates a temporary SQLite ledger that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "cardsync-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteNote writes a file under the vault root, creating parent folders.
func WriteNote(t *testing.T, vaultDir, rel, content string) {
	t.Helper()
	abs := filepath.Join(vaultDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// FakeStore is an in-memory remote card store. Ids are assigned from 1000
// upward. Set Err to make every call fail, or AddLimit to make
// CreateOrUpdate fail with apperr.ErrRemote once that many cards were added.
type FakeStore struct {
	mu       sync.Mutex
	nextID   int64
	adds     int
	Notes    map[int64]models.NoteRecord
	Media    map[string]string
	Deleted  []int64
	Calls    []string
	Err      error
	AddLimit int
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		nextID: 1000,
		Notes:  make(map[int64]models.NoteRecord),
		Media:  make(map[string]string),
	}
}

func (f *FakeStore) record(call string) error {
	f.Calls = append(f.Calls, call)
	return f.Err
}

// RequestPermission implements reconcile.Store.
func (f *FakeStore) RequestPermission(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("requestPermission")
}

// Ping implements reconcile.Store.
func (f *FakeStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("ping")
}

// CreateOrUpdate implements reconcile.Store.
func (f *FakeStore) CreateOrUpdate(ctx context.Context, cards []*models.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("createOrUpdate"); err != nil {
		return err
	}
	for _, c := range cards {
		if c.ID == models.UnboundID {
			if f.AddLimit > 0 && f.adds >= f.AddLimit {
				return fmt.Errorf("fake store: add limit %d: %w", f.AddLimit, apperr.ErrRemote)
			}
			f.adds++
			f.nextID++
			c.Bind(f.nextID)
		}
		f.Notes[c.ID] = c.Record(true)
	}
	return nil
}

// DeleteCards implements reconcile.Store.
func (f *FakeStore) DeleteCards(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("deleteCards"); err != nil {
		return err
	}
	for _, id := range ids {
		delete(f.Notes, id)
	}
	f.Deleted = append(f.Deleted, ids...)
	return nil
}

// StoreMedia implements reconcile.Store.
func (f *FakeStore) StoreMedia(ctx context.Context, media []models.MediaRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("storeMedia"); err != nil {
		return err
	}
	for _, m := range media {
		f.Media[m.Filename] = m.Data
	}
	return nil
}

// IDs returns the ids of the stored notes in ascending order.
func (f *FakeStore) IDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.Notes))
	for id := range f.Notes {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
