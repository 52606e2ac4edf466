//go:build cgo
// +build cgo

package rerank

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/codematch/internal/embedding"
)

// ONNXConfig describes a sequence-classification cross-encoder whose output
// is a single relevance logit per pair, shaped [1, 1].
type ONNXConfig struct {
	ModelPath     string
	TokenizerPath string
	MaxTokens     int
	OutputName    string
}

// ONNXCrossEncoder scores pairs with a local ONNX model. Pairs run one at a
// time on pre-allocated tensors.
type ONNXCrossEncoder struct {
	session   *ort.AdvancedSession
	tokenizer embedding.Tokenizer
	maxTokens int

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	logits        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewONNXCrossEncoder loads the model and tokenizer.
func NewONNXCrossEncoder(cfg ONNXConfig) (*ONNXCrossEncoder, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "logits"
	}
	if err := embedding.InitONNX(); err != nil {
		return nil, err
	}
	tok, err := embedding.NewTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	c := &ONNXCrossEncoder{tokenizer: tok, maxTokens: cfg.MaxTokens}
	shape := ort.NewShape(1, int64(cfg.MaxTokens))
	if c.inputIDs, err = ort.NewTensor(shape, make([]int64, cfg.MaxTokens)); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if c.attentionMask, err = ort.NewTensor(shape, make([]int64, cfg.MaxTokens)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if c.tokenTypeIDs, err = ort.NewTensor(shape, make([]int64, cfg.MaxTokens)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if c.logits, err = ort.NewTensor(ort.NewShape(1, 1), make([]float32, 1)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create logits tensor: %w", err)
	}
	c.session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{c.inputIDs, c.attentionMask, c.tokenTypeIDs},
		[]ort.ArbitraryTensor{c.logits},
		nil,
	)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return c, nil
}

// Score returns the raw logit for each pair.
func (c *ONNXCrossEncoder) Score(ctx context.Context, pairs []Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, mask, types := c.tokenizer.TokenizePair(p.Query, p.Document, c.maxTokens)
		copy(c.inputIDs.GetData(), ids)
		copy(c.attentionMask.GetData(), mask)
		copy(c.tokenTypeIDs.GetData(), types)
		if err := c.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		scores[i] = float64(c.logits.GetData()[0])
	}
	return scores, nil
}

// Close destroys the session and tensors.
func (c *ONNXCrossEncoder) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.session != nil {
		err = c.session.Destroy()
		c.session = nil
	}
	if c.inputIDs != nil {
		_ = c.inputIDs.Destroy()
		c.inputIDs = nil
	}
	if c.attentionMask != nil {
		_ = c.attentionMask.Destroy()
		c.attentionMask = nil
	}
	if c.tokenTypeIDs != nil {
		_ = c.tokenTypeIDs.Destroy()
		c.tokenTypeIDs = nil
	}
	if c.logits != nil {
		_ = c.logits.Destroy()
		c.logits = nil
	}
	return err
}
