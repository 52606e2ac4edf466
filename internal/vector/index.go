// Package vector provides nearest-neighbor indexes over code description embeddings.
package vector

import "context"

// VectorIndex stores one embedding per code and answers top-k similarity queries.
// Add upserts: adding an existing code replaces its vector.
type VectorIndex interface {
	Add(ctx context.Context, codes []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, codes []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Type() string
	Close() error
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	Code  string
	Score float64 // cosine similarity for normalized vectors
}
