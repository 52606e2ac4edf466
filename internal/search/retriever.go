package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/codematch/internal/keyword"
	"github.com/hyperjump/codematch/internal/models"
	"github.com/hyperjump/codematch/pkg/utils"
)

// Retriever returns candidate codes for a phrase in fused order.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]string, error)
}

// HybridRetriever queries a semantic and a lexical index concurrently and fuses
// both rankings with reciprocal rank fusion. It holds no mutable state.
type HybridRetriever struct {
	semantic SemanticIndex
	lexical  keyword.LexicalIndex
	rrfK     int
	logger   *zap.Logger
}

// RetrieverOption configures a HybridRetriever.
type RetrieverOption func(*HybridRetriever)

// WithRRFConstant overrides the fusion damping constant. Non-positive values are ignored.
func WithRRFConstant(k int) RetrieverOption {
	return func(r *HybridRetriever) {
		if k > 0 {
			r.rrfK = k
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *HybridRetriever) { r.logger = utils.OrNop(l) }
}

// NewHybridRetriever creates a retriever over the given indexes.
func NewHybridRetriever(semantic SemanticIndex, lexical keyword.LexicalIndex, opts ...RetrieverOption) *HybridRetriever {
	r := &HybridRetriever{
		semantic: semantic,
		lexical:  lexical,
		rrfK:     DefaultRRFConstant,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search returns the fused candidate codes for query. Each index is asked for
// topK hits, so the result holds at most 2*topK codes. A failure of either
// index is returned as is; there is no retry and no partial result.
func (r *HybridRetriever) Search(ctx context.Context, query string, topK int) ([]string, error) {
	fused, err := r.SearchScored(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return FusedCodes(fused), nil
}

// SearchScored is Search with the fused scores kept. The two index queries run
// concurrently but are joined before it returns; no work outlives the call,
// and the first failure cancels the other query through ctx.
func (r *HybridRetriever) SearchScored(ctx context.Context, query string, topK int) ([]*models.FusedCandidate, error) {
	var dense, sparse []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		codes, err := r.semantic.Search(gctx, query, topK)
		if err != nil {
			return fmt.Errorf("semantic search failed: %w", err)
		}
		dense = codes
		return nil
	})
	g.Go(func() error {
		results, err := r.lexical.Search(gctx, keyword.Tokenize(query), topK)
		if err != nil {
			return fmt.Errorf("lexical search failed: %w", err)
		}
		sparse = keyword.Codes(results)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(r.rrfK, dense, sparse)
	r.logger.Debug("hybrid retrieval",
		zap.String("query", query),
		zap.Int("dense", len(dense)),
		zap.Int("sparse", len(sparse)),
		zap.Int("fused", len(fused)),
	)
	return fused, nil
}
