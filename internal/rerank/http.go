package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/codematch/pkg/utils"
)

// HTTP cross-encoder defaults.
const (
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultHTTPBatchSize = 64
)

// HTTPConfig configures an HTTPCrossEncoder.
type HTTPConfig struct {
	// Endpoint is the base URL of the rerank service; requests go to Endpoint + "/rerank".
	Endpoint string
	Model    string
	// Timeout bounds a single request. It is a deadline only; failed requests are not retried.
	Timeout time.Duration
	// BatchSize caps documents per request.
	BatchSize int
}

// HTTPCrossEncoder scores pairs with a remote cross-encoder service that
// accepts {query, documents, model} and answers {results: [{index, score}]}.
type HTTPCrossEncoder struct {
	client   *http.Client
	endpoint string
	model    string
	batch    int
	logger   *zap.Logger
}

// NewHTTPCrossEncoder creates the client. It does not contact the service.
func NewHTTPCrossEncoder(cfg HTTPConfig, logger *zap.Logger) (*HTTPCrossEncoder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("reranker endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultHTTPBatchSize
	}
	return &HTTPCrossEncoder{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		batch:    cfg.BatchSize,
		logger:   utils.OrNop(logger),
	}, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Score sends consecutive pairs sharing a query as one request, split into
// chunks of at most BatchSize documents.
func (c *HTTPCrossEncoder) Score(ctx context.Context, pairs []Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	for start := 0; start < len(pairs); {
		end := start + 1
		for end < len(pairs) && end-start < c.batch && pairs[end].Query == pairs[start].Query {
			end++
		}
		docs := make([]string, end-start)
		for i := range docs {
			docs[i] = pairs[start+i].Document
		}
		got, err := c.rerank(ctx, pairs[start].Query, docs)
		if err != nil {
			return nil, err
		}
		copy(scores[start:end], got)
		start = end
	}
	return scores, nil
}

func (c *HTTPCrossEncoder) rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: docs, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("rerank response index %d out of range [0,%d)", r.Index, len(docs))
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing score for document %d", i)
		}
	}
	c.logger.Debug("rerank request",
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return scores, nil
}

// Available reports whether the service answers GET /health with 200.
func (c *HTTPCrossEncoder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (c *HTTPCrossEncoder) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
