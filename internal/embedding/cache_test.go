package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Get("a")               // a is now most recent
	c.Set("c", []float32{6}) // evicts b
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

type countingEmbedder struct {
	*MockEmbedder
	batchCalls int
	texts      int
	err        error
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	c.texts += len(texts)
	if c.err != nil {
		return nil, c.err
	}
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_EmbedBatchOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	emb := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	if _, err := emb.EmbedBatch(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	out, err := emb.EmbedBatch(ctx, []string{"a", "c", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(out))
	}
	if inner.texts != 3 {
		t.Errorf("inner embedded %d texts, want 3 (a, b, c once each)", inner.texts)
	}
	if _, err := emb.EmbedBatch(ctx, []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	if inner.batchCalls != 2 {
		t.Errorf("inner batch calls = %d, want 2", inner.batchCalls)
	}
}

func TestCachedEmbedder_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	emb := NewCachedEmbedder(&countingEmbedder{MockEmbedder: NewMockEmbedder(8), err: boom}, 10)
	if _, err := emb.EmbedBatch(context.Background(), []string{"x"}); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestNewCachedEmbedder_ZeroSizeDisables(t *testing.T) {
	inner := NewMockEmbedder(4)
	if got := NewCachedEmbedder(inner, 0); got != Embedder(inner) {
		t.Error("expected inner embedder when cache size is zero")
	}
}
