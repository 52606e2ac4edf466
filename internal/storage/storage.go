// Package storage persists the code vocabulary and resolves codes to descriptions.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/codematch/internal/models"
)

// ErrNotFound is returned when a code has no stored entry.
var ErrNotFound = errors.New("not found")

// CorpusLookup resolves a code to its description. A missing code is reported
// with ok=false and a nil error; err is reserved for lookup failures.
type CorpusLookup interface {
	Description(ctx context.Context, code string) (description string, ok bool, err error)
}

// Storage defines code entry persistence operations.
type Storage interface {
	CorpusLookup

	// PutEntries upserts entries, keeping the original insertion position of existing codes.
	PutEntries(ctx context.Context, entries []*models.CodeEntry) error
	GetEntry(ctx context.Context, code string) (*models.CodeEntry, error)
	ListEntries(ctx context.Context, offset, limit int) ([]*models.CodeEntry, error)
	// AllEntries returns every entry in insertion order.
	AllEntries(ctx context.Context) ([]*models.CodeEntry, error)
	DeleteEntries(ctx context.Context, codes []string) error
	CountEntries(ctx context.Context) (int64, error)

	RecordLoad(ctx context.Context, rec *models.LoadRecord) error
	LastLoad(ctx context.Context) (*models.LoadRecord, error)

	Close() error
}
