package local

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned for IDs that would escape the collection directory.
	ErrInvalidID = errors.New("invalid record id")

	// ErrCorrupt marks a document that no longer decodes.
	ErrCorrupt = errors.New("corrupt record")
)
