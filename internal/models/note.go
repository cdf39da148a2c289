// Package models defines the domain types for cardsync.
package models

import "time"

// NoteMetadata is a lightweight representation returned by vault listings.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
