package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/codematch/internal/models"
)

// MatchBatch matches every phrase independently on the worker pool. Items are
// returned in input order; a failed phrase carries its error and never affects
// the other items.
func (m *Matcher) MatchBatch(ctx context.Context, q *models.BatchMatchQuery) []*models.BatchItem {
	items := make([]*models.BatchItem, len(q.Phrases))
	var wg sync.WaitGroup
	for i, phrase := range q.Phrases {
		items[i] = &models.BatchItem{Phrase: phrase}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					items[i].Error = fmt.Sprintf("panic: %v", r)
				}
			}()
			res, err := m.Match(ctx, &models.MatchQuery{Phrase: phrase, TopK: q.TopK, RiskLevel: q.RiskLevel})
			if err != nil {
				items[i].Error = err.Error()
				m.logger.Debug("batch phrase failed", zap.String("phrase", phrase), zap.Error(err))
				return
			}
			items[i].Result = res
		}
		if err := m.pool.Submit(task); err != nil {
			wg.Done()
			items[i].Error = fmt.Sprintf("failed to schedule: %v", err)
		}
	}
	wg.Wait()
	return items
}

// FailedCount returns the number of items with an error.
func FailedCount(items []*models.BatchItem) int {
	n := 0
	for _, it := range items {
		if it.Error != "" {
			n++
		}
	}
	return n
}

// Aggregate counts, for each code, the phrases whose top perPhrase reranked
// candidates include it. Codes are ordered by count, then best score, both
// descending, then code. Failed items are skipped.
func Aggregate(items []*models.BatchItem, perPhrase int) []*models.AggregatedCode {
	byCode := make(map[string]*models.AggregatedCode)
	for _, it := range items {
		if it.Result == nil {
			continue
		}
		cands := it.Result.Candidates
		if perPhrase > 0 && len(cands) > perPhrase {
			cands = cands[:perPhrase]
		}
		for _, c := range cands {
			agg, ok := byCode[c.Code]
			if !ok {
				agg = &models.AggregatedCode{Code: c.Code, Description: c.Description, BestScore: c.Score}
				byCode[c.Code] = agg
			}
			agg.Count++
			if c.Score > agg.BestScore {
				agg.BestScore = c.Score
			}
			agg.Reasons = append(agg.Reasons, it.Phrase)
		}
	}
	out := make([]*models.AggregatedCode, 0, len(byCode))
	for _, agg := range byCode {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].BestScore != out[j].BestScore {
			return out[i].BestScore > out[j].BestScore
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// MatchNarrative splits text into phrases, matches them as a batch and
// aggregates the top SegmentTopK candidates of each phrase.
func (m *Matcher) MatchNarrative(ctx context.Context, q *models.SegmentQuery) (*models.SegmentResponse, error) {
	phrases, err := m.extractor.Extract(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("phrase extraction failed: %w", err)
	}
	items := m.MatchBatch(ctx, &models.BatchMatchQuery{Phrases: phrases})
	perPhrase := q.TopK
	if perPhrase <= 0 {
		perPhrase = m.settings.SegmentTopK
	}
	return &models.SegmentResponse{
		Phrases: phrases,
		Codes:   Aggregate(items, perPhrase),
		Items:   items,
	}, nil
}
