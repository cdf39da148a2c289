package api

import (
	"context"

	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/syncer"
)

// Syncer is the part of the sync service the handlers drive.
type Syncer interface {
	Extract(path string, text []byte) []*models.Card
	SyncNote(ctx context.Context, path string) (syncer.NoteResult, error)
	SyncVault(ctx context.Context) (syncer.VaultResult, error)
}

var _ Syncer = (*syncer.Service)(nil)
