package storage

import (
	"context"

	"github.com/hyperjump/codematch/internal/models"
)

// MemoryCorpus is an immutable map-backed CorpusLookup. Build it once from the
// stored vocabulary and share it across concurrent matches.
type MemoryCorpus struct {
	entries map[string]*models.CodeEntry
}

// NewMemoryCorpus indexes entries by code. Later duplicates replace earlier ones.
func NewMemoryCorpus(entries []*models.CodeEntry) *MemoryCorpus {
	m := make(map[string]*models.CodeEntry, len(entries))
	for _, e := range entries {
		m[e.Code] = e
	}
	return &MemoryCorpus{entries: m}
}

// Description resolves code to its description.
func (c *MemoryCorpus) Description(_ context.Context, code string) (string, bool, error) {
	e, ok := c.entries[code]
	if !ok {
		return "", false, nil
	}
	return e.Description, true, nil
}

// Entry returns the full entry for code.
func (c *MemoryCorpus) Entry(code string) (*models.CodeEntry, bool) {
	e, ok := c.entries[code]
	return e, ok
}

// Len returns the number of codes.
func (c *MemoryCorpus) Len() int {
	return len(c.entries)
}
