// Package store persists enrolled face encodings. The default backend is
// a gob-encoded file; a PostgreSQL backend with pgvector lives in the
// postgres subpackage and is selected when DATABASE_URL is set.
package store

import (
	"context"
)

// Reader provides read-only access to enrolled encodings
type Reader interface {
	// List returns all enrolled encodings
	List(ctx context.Context) ([]Encoding, error)
	// GetByLabel retrieves all encodings for a label, empty slice if none
	GetByLabel(ctx context.Context, label string) ([]Encoding, error)
	// Has checks if any encoding exists for the given label
	Has(ctx context.Context, label string) (bool, error)
	// Count returns the total number of encodings stored
	Count(ctx context.Context) (int, error)
}

// Writer provides write access to enrolled encodings
type Writer interface {
	Reader

	// Save stores encodings, replacing any existing encodings that came
	// from the same (label, source path) pair
	Save(ctx context.Context, encodings []Encoding) error
	// DeleteByLabel removes all encodings whose label matches after
	// name normalization. Returns the number of removed records.
	DeleteByLabel(ctx context.Context, label string) (int, error)
}
