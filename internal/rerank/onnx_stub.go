//go:build !cgo
// +build !cgo

package rerank

import (
	"context"
	"errors"
)

var errNoCGO = errors.New("ONNX cross-encoder requires CGO; rebuild with CGO_ENABLED=1")

// ONNXConfig describes a sequence-classification cross-encoder.
type ONNXConfig struct {
	ModelPath     string
	TokenizerPath string
	MaxTokens     int
	OutputName    string
}

// ONNXCrossEncoder is unavailable without CGO.
type ONNXCrossEncoder struct{}

// NewONNXCrossEncoder always fails without CGO.
func NewONNXCrossEncoder(_ ONNXConfig) (*ONNXCrossEncoder, error) {
	return nil, errNoCGO
}

func (c *ONNXCrossEncoder) Score(context.Context, []Pair) ([]float64, error) { return nil, errNoCGO }

func (c *ONNXCrossEncoder) Close() error { return nil }
