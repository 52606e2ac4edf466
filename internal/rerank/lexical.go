package rerank

import (
	"context"

	"github.com/hyperjump/codematch/internal/keyword"
)

// LexicalScorer is a model-free PairScorer over token overlap. A pair scores
// the share of query tokens found in the document plus hits/(len(doc)+hits),
// which favors shorter descriptions at equal overlap.
type LexicalScorer struct{}

// NewLexicalScorer returns a LexicalScorer.
func NewLexicalScorer() *LexicalScorer { return &LexicalScorer{} }

// Score scores each pair; a pair with no shared token scores 0.
func (s *LexicalScorer) Score(ctx context.Context, pairs []Pair) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		q := keyword.Tokenize(p.Query)
		d := keyword.Tokenize(p.Document)
		if len(q) == 0 || len(d) == 0 {
			continue
		}
		docSet := make(map[string]struct{}, len(d))
		for _, t := range d {
			docSet[t] = struct{}{}
		}
		var hits int
		for _, t := range q {
			if _, ok := docSet[t]; ok {
				hits++
			}
		}
		scores[i] = float64(hits)/float64(len(q)) + float64(hits)/float64(len(d)+hits)
	}
	return scores, nil
}

// Close is a no-op.
func (s *LexicalScorer) Close() error { return nil }
