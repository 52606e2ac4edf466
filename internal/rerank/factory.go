package rerank

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a PairScorer.
type Config struct {
	Provider string
	HTTP     HTTPConfig
	ONNX     ONNXConfig
}

// NewPairScorer builds the scorer named by cfg.Provider. An empty provider selects the lexical scorer.
func NewPairScorer(cfg Config, logger *zap.Logger) (PairScorer, error) {
	switch cfg.Provider {
	case ProviderHTTP:
		c, err := NewHTTPCrossEncoder(cfg.HTTP, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderONNX:
		c, err := NewONNXCrossEncoder(cfg.ONNX)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderLexical, "":
		return NewLexicalScorer(), nil
	default:
		return nil, fmt.Errorf("unsupported reranker provider: %s", cfg.Provider)
	}
}
