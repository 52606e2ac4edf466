package models

import "fmt"

// MatchQuery is a request to match one free-text phrase against the vocabulary.
// Zero numeric fields mean "use the configured default".
type MatchQuery struct {
	Phrase    string  `json:"phrase"`
	TopK      int     `json:"top_k,omitempty"`
	TopN      int     `json:"top_n,omitempty"`
	RiskLevel float64 `json:"risk_level,omitempty"`
}

// MaxTopK bounds the retrieval depth a single query may request.
const MaxTopK = 500

// Validate checks the phrase is present and numeric overrides are in range.
// RiskLevel, when set, must lie in (0,1). It does not modify q.
func (q *MatchQuery) Validate() error {
	if q.Phrase == "" {
		return fmt.Errorf("phrase cannot be empty")
	}
	if q.TopK < 0 || q.TopN < 0 {
		return fmt.Errorf("top_k and top_n must not be negative")
	}
	if q.RiskLevel != 0 && (q.RiskLevel <= 0 || q.RiskLevel >= 1) {
		return fmt.Errorf("risk_level must be in (0,1), got %v", q.RiskLevel)
	}
	return nil
}

// BatchMatchQuery is a request to match many phrases independently.
type BatchMatchQuery struct {
	Phrases   []string `json:"phrases"`
	TopK      int      `json:"top_k,omitempty"`
	RiskLevel float64  `json:"risk_level,omitempty"`
}

// SegmentQuery is a request to split a narrative into phrases and match each.
type SegmentQuery struct {
	Text string `json:"text"`
	TopK int    `json:"top_k,omitempty"`
}
