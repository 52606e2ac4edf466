// Package search provides hybrid retrieval (semantic + lexical) and rank fusion.
package search

import (
	"sort"

	"github.com/hyperjump/codematch/internal/models"
)

// DefaultRRFConstant is the reciprocal rank fusion damping constant K.
const DefaultRRFConstant = 60

// Fuse merges ranked code lists with reciprocal rank fusion. A code at 0-based
// rank r in a list contributes 1/(k+r+1); contributions from every list are
// summed. Results are sorted by descending fused score, ties keeping the order
// in which codes were first seen across lists, in argument order. No input
// lists, or only empty ones, yield an empty slice.
func Fuse(k int, lists ...[]string) []*models.FusedCandidate {
	byCode := make(map[string]*models.FusedCandidate)
	fused := make([]*models.FusedCandidate, 0)
	for _, list := range lists {
		for rank, code := range list {
			c, ok := byCode[code]
			if !ok {
				c = &models.FusedCandidate{Code: code}
				byCode[code] = c
				fused = append(fused, c)
			}
			c.Score += 1 / float64(k+rank+1)
		}
	}
	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	return fused
}

// FusedCodes returns candidate codes in fused order.
func FusedCodes(fused []*models.FusedCandidate) []string {
	out := make([]string, len(fused))
	for i, c := range fused {
		out[i] = c.Code
	}
	return out
}
