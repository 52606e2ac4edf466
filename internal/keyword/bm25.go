package keyword

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/codematch/internal/models"
)

// BM25Params are the Okapi BM25 tunables.
type BM25Params struct {
	K1 float64
	B  float64
	// Epsilon scales the average idf used as a floor for terms whose idf is negative
	// (terms present in more than half of the entries).
	Epsilon float64
}

// DefaultBM25Params returns k1=1.5, b=0.75, epsilon=0.25.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75, Epsilon: 0.25}
}

type posting struct {
	doc int
	tf  int
}

// BM25Index is an in-memory Okapi BM25 index over tokenized code descriptions.
// It is immutable after NewBM25Index returns and safe for concurrent reads.
type BM25Index struct {
	params   BM25Params
	codes    []string
	docLen   []int
	avgDL    float64
	idf      map[string]float64
	postings map[string][]posting
}

// NewBM25Index tokenizes each entry's description and builds the index.
// Entries keep their input order, which breaks score ties.
func NewBM25Index(entries []*models.CodeEntry, params BM25Params) (*BM25Index, error) {
	if params.K1 < 0 || params.B < 0 || params.B > 1 {
		return nil, fmt.Errorf("invalid bm25 params: k1=%v b=%v", params.K1, params.B)
	}
	idx := &BM25Index{
		params:   params,
		codes:    make([]string, 0, len(entries)),
		docLen:   make([]int, 0, len(entries)),
		idf:      make(map[string]float64),
		postings: make(map[string][]posting),
	}
	var totalLen int
	for _, e := range entries {
		doc := len(idx.codes)
		tokens := Tokenize(e.Description)
		idx.codes = append(idx.codes, e.Code)
		idx.docLen = append(idx.docLen, len(tokens))
		totalLen += len(tokens)

		freqs := make(map[string]int, len(tokens))
		order := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if freqs[tok] == 0 {
				order = append(order, tok)
			}
			freqs[tok]++
		}
		for _, tok := range order {
			idx.postings[tok] = append(idx.postings[tok], posting{doc: doc, tf: freqs[tok]})
		}
	}
	n := len(idx.codes)
	if n > 0 {
		idx.avgDL = float64(totalLen) / float64(n)
	}
	idx.computeIDF(n)
	return idx, nil
}

func (idx *BM25Index) computeIDF(n int) {
	if len(idx.postings) == 0 {
		return
	}
	var sum float64
	var negative []string
	for term, list := range idx.postings {
		df := float64(len(list))
		v := math.Log(float64(n)-df+0.5) - math.Log(df+0.5)
		idx.idf[term] = v
		sum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	floor := idx.params.Epsilon * sum / float64(len(idx.idf))
	for _, term := range negative {
		idx.idf[term] = floor
	}
}

// Search scores every entry containing at least one query token. A token repeated
// in the query contributes once per occurrence.
func (idx *BM25Index) Search(ctx context.Context, tokens []string, limit int) ([]*KeywordResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 || limit <= 0 || len(idx.codes) == 0 {
		return []*KeywordResult{}, nil
	}
	scores := make(map[int]float64)
	k1, b := idx.params.K1, idx.params.B
	for _, tok := range tokens {
		list, ok := idx.postings[tok]
		if !ok {
			continue
		}
		w := idx.idf[tok]
		for _, p := range list {
			tf := float64(p.tf)
			norm := 1 - b
			if idx.avgDL > 0 {
				norm += b * float64(idx.docLen[p.doc]) / idx.avgDL
			}
			scores[p.doc] += w * (tf * (k1 + 1)) / (tf + k1*norm)
		}
	}

	docs := make([]int, 0, len(scores))
	for d := range scores {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		si, sj := scores[docs[i]], scores[docs[j]]
		if si != sj {
			return si > sj
		}
		return docs[i] < docs[j]
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	out := make([]*KeywordResult, len(docs))
	for i, d := range docs {
		out[i] = &KeywordResult{Code: idx.codes[d], Score: scores[d]}
	}
	return out, nil
}

// IDF returns the (floored) inverse document frequency of term, or 0 if unseen.
func (idx *BM25Index) IDF(term string) float64 {
	return idx.idf[term]
}

// DocCount returns the number of indexed entries.
func (idx *BM25Index) DocCount() (uint64, error) {
	return uint64(len(idx.codes)), nil
}

// Backend returns BackendBM25.
func (idx *BM25Index) Backend() string { return BackendBM25 }

// Close is a no-op.
func (idx *BM25Index) Close() error { return nil }
