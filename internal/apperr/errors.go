// Package apperr holds the sentinel errors shared across cardsync layers.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfiguration is returned before any scan when the flashcard
	// settings cannot be compiled (empty tag, colliding separators).
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrMediaNotFound marks a media reference that the file reader could not
	// resolve. It is reported per card and never aborts a note.
	ErrMediaNotFound = errors.New("media not found")

	ErrPermissionDenied = errors.New("permission denied by remote store")
	ErrRemote           = errors.New("remote store error")
)
