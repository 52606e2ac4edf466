// Package calibrate turns reranker scores into a prediction set by
// softmax-threshold set construction.
//
// The probabilities come from the model's own scores, not from a held-out
// calibration set, so the coverage target is a property of the softmax
// distribution only. It is not a validated miscoverage bound and callers
// must not read riskLevel as an error rate.
package calibrate

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// DefaultRiskLevel is the risk used when none is configured.
const DefaultRiskLevel = 0.05

// ErrInvalidArgument is returned for a risk level outside (0,1) or a
// non-finite score.
var ErrInvalidArgument = errors.New("invalid argument")

// Softmax converts scores to probabilities. The maximum is subtracted before
// exponentiating, so a constant shift of scores yields the same output.
func Softmax(scores []float64) []float64 {
	probs := make([]float64, len(scores))
	if len(scores) == 0 {
		return probs
	}
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	var sum float64
	for i, s := range scores {
		probs[i] = math.Exp(s - maxScore)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Calibrate returns the smallest set of indices into scores, taken in
// descending probability order, whose cumulative probability reaches
// 1-riskLevel, together with the softmax probabilities aligned with scores.
// The index whose probability crosses the target is included. Set indices are
// returned in descending probability order; equal probabilities keep index order.
// A NaN or infinite score fails with ErrInvalidArgument.
func Calibrate(scores []float64, riskLevel float64) ([]int, []float64, error) {
	if !(riskLevel > 0 && riskLevel < 1) {
		return nil, nil, fmt.Errorf("risk level must be in (0,1), got %v: %w", riskLevel, ErrInvalidArgument)
	}
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, nil, fmt.Errorf("score %d is not finite (%v): %w", i, s, ErrInvalidArgument)
		}
	}
	probs := Softmax(scores)
	if len(probs) == 0 {
		return []int{}, probs, nil
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return probs[order[a]] > probs[order[b]] })

	target := 1 - riskLevel
	set := make([]int, 0, len(order))
	var cumulative float64
	for _, i := range order {
		set = append(set, i)
		cumulative += probs[i]
		if cumulative >= target {
			break
		}
	}
	return set, probs, nil
}
