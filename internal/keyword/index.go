// Package keyword provides the lexical (term-frequency) index over code descriptions.
package keyword

import (
	"context"

	"github.com/hyperjump/codematch/internal/models"
)

// Backend names accepted by NewLexicalIndex configuration.
const (
	BackendBM25  = "bm25"
	BackendBleve = "bleve"
)

// LexicalIndex ranks code entries against an already tokenized query.
// Implementations are safe for concurrent Search calls once built.
type LexicalIndex interface {
	// Search returns up to limit entries that contain at least one token,
	// ordered by descending relevance.
	Search(ctx context.Context, tokens []string, limit int) ([]*KeywordResult, error)
	// DocCount returns the number of indexed entries.
	DocCount() (uint64, error)
	// Backend names the implementation, e.g. "bm25".
	Backend() string
	Close() error
}

// Writer maintains a persistent lexical index. BleveIndex implements it; BM25Index is built in one shot.
type Writer interface {
	IndexEntries(ctx context.Context, entries []*models.CodeEntry) error
	DeleteEntries(ctx context.Context, codes []string) error
}

// KeywordResult is a single lexical hit.
type KeywordResult struct {
	Code  string
	Score float64
}

// Codes returns the hit codes in order.
func Codes(results []*KeywordResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Code
	}
	return out
}
