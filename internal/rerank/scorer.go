// Package rerank orders retrieved candidates with a pairwise relevance model.
package rerank

import "context"

// Provider names accepted in configuration.
const (
	ProviderHTTP    = "http"
	ProviderONNX    = "onnx"
	ProviderLexical = "lexical"
)

// Pair is one (query, candidate description) input to a relevance model.
type Pair struct {
	Query    string
	Document string
}

// PairScorer assigns one real-valued relevance score per pair, in input order.
// Implementations must be safe for concurrent use.
type PairScorer interface {
	Score(ctx context.Context, pairs []Pair) ([]float64, error)
	Close() error
}
