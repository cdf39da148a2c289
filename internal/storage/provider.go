// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/cardsync/internal/models"

// Provider is the interface for vault file operations. Paths are relative
// to the vault root and use forward slashes.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// ReadMedia resolves a media link found in notePath and returns the file
	// bytes with the vault path it resolved to.
	ReadMedia(notePath, link string) ([]byte, string, error)
}
