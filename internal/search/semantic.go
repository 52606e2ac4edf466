package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/codematch/internal/embedding"
	"github.com/hyperjump/codematch/internal/vector"
)

// SemanticIndex ranks codes by embedding similarity to a query phrase.
type SemanticIndex interface {
	Search(ctx context.Context, query string, topK int) ([]string, error)
}

// EmbeddingIndex is a SemanticIndex that embeds the query and searches a vector index.
type EmbeddingIndex struct {
	embedder embedding.Embedder
	index    vector.VectorIndex
}

// NewEmbeddingIndex returns a SemanticIndex over index, which must hold
// vectors produced by embedder.
func NewEmbeddingIndex(embedder embedding.Embedder, index vector.VectorIndex) *EmbeddingIndex {
	return &EmbeddingIndex{embedder: embedder, index: index}
}

// Search embeds query and returns up to topK codes by descending similarity.
func (e *EmbeddingIndex) Search(ctx context.Context, query string, topK int) ([]string, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	results, err := e.index.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	codes := make([]string, len(results))
	for i, r := range results {
		codes[i] = r.Code
	}
	return codes, nil
}
