package rerank

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/codematch/internal/models"
	"github.com/hyperjump/codematch/internal/storage"
	"github.com/hyperjump/codematch/pkg/utils"
)

// Reranker resolves candidate descriptions and sorts candidates by model relevance.
type Reranker struct {
	scorer PairScorer
	corpus storage.CorpusLookup
	logger *zap.Logger
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithLogger sets a logger for debug output (dropped candidates, scored pairs).
func WithLogger(l *zap.Logger) Option {
	return func(r *Reranker) { r.logger = utils.OrNop(l) }
}

// New creates a Reranker.
func New(scorer PairScorer, corpus storage.CorpusLookup, opts ...Option) *Reranker {
	r := &Reranker{scorer: scorer, corpus: corpus, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank scores codes against query and returns them by descending relevance.
// Codes without a corpus description are dropped. Equal scores keep input order.
func (r *Reranker) Rerank(ctx context.Context, query string, codes []string) ([]*models.RerankedCandidate, error) {
	candidates := make([]*models.RerankedCandidate, 0, len(codes))
	for _, code := range codes {
		desc, ok, err := r.corpus.Description(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("corpus lookup %s: %w", code, err)
		}
		if !ok {
			r.logger.Debug("dropping candidate without description", zap.String("code", code))
			continue
		}
		candidates = append(candidates, &models.RerankedCandidate{Code: code, Description: desc})
	}
	if len(candidates) == 0 {
		return candidates, nil
	}

	pairs := make([]Pair, len(candidates))
	for i, c := range candidates {
		pairs[i] = Pair{Query: query, Document: c.Description}
	}
	scores, err := r.scorer.Score(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("relevance scoring failed: %w", err)
	}
	if len(scores) != len(pairs) {
		return nil, fmt.Errorf("relevance model returned %d scores for %d pairs", len(scores), len(pairs))
	}
	for i, s := range scores {
		candidates[i].Score = s
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	r.logger.Debug("reranked candidates",
		zap.Int("input", len(codes)),
		zap.Int("scored", len(candidates)),
	)
	return candidates, nil
}

// Scores returns the candidate scores in order.
func Scores(candidates []*models.RerankedCandidate) []float64 {
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = c.Score
	}
	return out
}
