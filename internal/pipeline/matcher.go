// Package pipeline wires retrieval, reranking and calibration into phrase matching.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/codematch/internal/abbrev"
	"github.com/hyperjump/codematch/internal/calibrate"
	"github.com/hyperjump/codematch/internal/models"
	"github.com/hyperjump/codematch/internal/rerank"
	"github.com/hyperjump/codematch/internal/search"
	"github.com/hyperjump/codematch/internal/segment"
	"github.com/hyperjump/codematch/pkg/utils"
)

var (
	// ErrEmptyQuery is returned for a blank phrase.
	ErrEmptyQuery = errors.New("empty query")
	// ErrInvalidQuery is returned for out-of-range query overrides.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNonFiniteScore is returned when the reranker yields a NaN or infinite score.
	ErrNonFiniteScore = errors.New("reranker produced a non-finite score")
)

// Ranker orders candidate codes for a query. *rerank.Reranker implements it.
type Ranker interface {
	Rerank(ctx context.Context, query string, codes []string) ([]*models.RerankedCandidate, error)
}

// Settings are the per-query defaults used when a request leaves a field zero.
type Settings struct {
	TopK        int
	TopN        int
	RiskLevel   float64
	SegmentTopK int
}

// DefaultSettings returns top_k 20, top_n 5, risk 0.05 and segment top_k 3.
func DefaultSettings() Settings {
	return Settings{TopK: 20, TopN: 5, RiskLevel: calibrate.DefaultRiskLevel, SegmentTopK: 3}
}

// Matcher runs phrases through retrieval, reranking and calibration.
// It is safe for concurrent use; Release frees its worker pool.
type Matcher struct {
	retriever search.Retriever
	ranker    Ranker
	expander  *abbrev.Expander
	extractor segment.PhraseExtractor
	settings  Settings
	poolSize  int
	pool      *ants.Pool
	logger    *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.logger = utils.OrNop(l) }
}

// WithSettings overrides the query defaults. Zero fields keep the built-in defaults.
func WithSettings(s Settings) Option {
	return func(m *Matcher) {
		if s.TopK > 0 {
			m.settings.TopK = s.TopK
		}
		if s.TopN > 0 {
			m.settings.TopN = s.TopN
		}
		if s.RiskLevel > 0 && s.RiskLevel < 1 {
			m.settings.RiskLevel = s.RiskLevel
		}
		if s.SegmentTopK > 0 {
			m.settings.SegmentTopK = s.SegmentTopK
		}
	}
}

// WithExpander expands abbreviations before retrieval.
func WithExpander(x *abbrev.Expander) Option {
	return func(m *Matcher) { m.expander = x }
}

// WithExtractor sets the phrase extractor used by MatchNarrative.
func WithExtractor(e segment.PhraseExtractor) Option {
	return func(m *Matcher) { m.extractor = e }
}

// WithPoolSize sets the number of phrases matched concurrently by MatchBatch.
// Default is runtime.NumCPU().
func WithPoolSize(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.poolSize = n
		}
	}
}

// NewMatcher creates a Matcher. The retriever and ranker are owned by the caller.
func NewMatcher(retriever search.Retriever, ranker Ranker, opts ...Option) (*Matcher, error) {
	m := &Matcher{
		retriever: retriever,
		ranker:    ranker,
		extractor: segment.NewRuleExtractor(),
		settings:  DefaultSettings(),
		poolSize:  runtime.NumCPU(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	pool, err := ants.NewPool(m.poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	m.pool = pool
	return m, nil
}

// Settings returns the effective query defaults.
func (m *Matcher) Settings() Settings { return m.settings }

// Release frees the worker pool. The Matcher must not be used afterwards.
func (m *Matcher) Release() {
	if m.pool != nil {
		m.pool.Release()
	}
}

// Match retrieves, reranks and calibrates candidates for one phrase. The top
// TopN reranked candidates are calibrated at RiskLevel. A blank phrase fails
// with ErrEmptyQuery; finding nothing is an empty result, not an error.
func (m *Matcher) Match(ctx context.Context, q *models.MatchQuery) (*models.MatchResult, error) {
	phrase := strings.TrimSpace(q.Phrase)
	if phrase == "" {
		return nil, ErrEmptyQuery
	}
	resolved := *q
	resolved.Phrase = phrase
	if err := resolved.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if resolved.TopK == 0 {
		resolved.TopK = m.settings.TopK
	}
	if resolved.TopK > models.MaxTopK {
		resolved.TopK = models.MaxTopK
	}
	if resolved.TopN == 0 {
		resolved.TopN = m.settings.TopN
	}
	if resolved.RiskLevel == 0 {
		resolved.RiskLevel = m.settings.RiskLevel
	}

	result := &models.MatchResult{Phrase: phrase}
	query := phrase
	if m.expander != nil {
		expanded, used := m.expander.Expand(phrase)
		if len(used) > 0 {
			query = expanded
			result.Expanded = expanded
			result.Abbreviations = used
		}
	}

	codes, err := m.retriever.Search(ctx, query, resolved.TopK)
	if err != nil {
		return nil, err
	}
	candidates, err := m.ranker.Rerank(ctx, query, codes)
	if err != nil {
		return nil, err
	}
	result.Candidates = candidates

	top := candidates
	if len(top) > resolved.TopN {
		top = top[:resolved.TopN]
	}
	for _, c := range top {
		if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) {
			return nil, fmt.Errorf("%w: code %s scored %v", ErrNonFiniteScore, c.Code, c.Score)
		}
	}
	indices, probs, err := calibrate.Calibrate(rerank.Scores(top), resolved.RiskLevel)
	if err != nil {
		return nil, err
	}
	result.Set = &models.PredictionSet{Indices: indices, Probabilities: probs, RiskLevel: resolved.RiskLevel}
	result.Members = make([]*models.SetMember, len(indices))
	for i, idx := range indices {
		c := top[idx]
		result.Members[i] = &models.SetMember{
			Code:        c.Code,
			Description: c.Description,
			Score:       c.Score,
			Probability: probs[idx],
		}
	}

	m.logger.Debug("matched phrase",
		zap.String("phrase", phrase),
		zap.Int("retrieved", len(codes)),
		zap.Int("candidates", len(candidates)),
		zap.Int("set_size", len(indices)),
	)
	return result, nil
}
