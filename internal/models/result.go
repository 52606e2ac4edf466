package models

// FusedCandidate is a code with its accumulated reciprocal-rank score.
type FusedCandidate struct {
	Code  string  `json:"code"`
	Score float64 `json:"score"`
}

// RerankedCandidate is a candidate whose description resolved in the corpus,
// scored by the pairwise relevance model.
type RerankedCandidate struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// PredictionSet is the output of softmax-threshold set construction over the
// top slice of reranked scores. Indices refer to positions in that slice and
// Probabilities is aligned with it.
type PredictionSet struct {
	Indices       []int     `json:"indices"`
	Probabilities []float64 `json:"probabilities"`
	RiskLevel     float64   `json:"risk_level"`
}

// SetMember is a candidate selected into the prediction set.
type SetMember struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Probability float64 `json:"probability"`
}

// MatchResult is everything produced for a single phrase.
type MatchResult struct {
	Phrase string `json:"phrase"`
	// Expanded is the phrase after abbreviation expansion, when it differs.
	Expanded      string               `json:"expanded,omitempty"`
	Abbreviations map[string]string    `json:"abbreviations,omitempty"`
	Candidates    []*RerankedCandidate `json:"candidates"`
	Set           *PredictionSet       `json:"set"`
	Members       []*SetMember         `json:"members"`
}

// MatchResponse is the HTTP/CLI envelope for a single-phrase match.
type MatchResponse struct {
	RequestID string       `json:"request_id"`
	Result    *MatchResult `json:"result"`
	QueryTime int64        `json:"query_time_ms"`
}

// BatchItem is one slot of a batch match. Exactly one of Result and Error is set.
type BatchItem struct {
	Phrase string       `json:"phrase"`
	Result *MatchResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// BatchMatchResponse is the envelope for a batch match.
type BatchMatchResponse struct {
	RequestID string       `json:"request_id"`
	Items     []*BatchItem `json:"items"`
	Failed    int          `json:"failed"`
	QueryTime int64        `json:"query_time_ms"`
}

// AggregatedCode is a code counted across several phrases of one narrative.
type AggregatedCode struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Count       int      `json:"count"`
	BestScore   float64  `json:"best_score"`
	Reasons     []string `json:"reasons"`
}

// SegmentResponse is the envelope for narrative segmentation plus matching.
type SegmentResponse struct {
	RequestID string            `json:"request_id"`
	Phrases   []string          `json:"phrases"`
	Codes     []*AggregatedCode `json:"codes"`
	Items     []*BatchItem      `json:"items"`
	QueryTime int64             `json:"query_time_ms"`
}
