package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/hyperjump/codematch/pkg/utils"
)

// HNSWConfig holds graph parameters. Zero values take the coder/hnsw recommendations.
type HNSWConfig struct {
	M        int
	EfSearch int
}

// HNSWIndex is an approximate index on a coder/hnsw graph using cosine distance.
// Replaced or removed codes are orphaned in the graph rather than deleted.
type HNSWIndex struct {
	mu         sync.RWMutex
	dimensions int
	graph      *hnsw.Graph[uint64]
	keys       map[string]uint64
	codes      map[uint64]string
	nextKey    uint64
}

type hnswMeta struct {
	Dimensions int
	Keys       map[string]uint64
	NextKey    uint64
}

// NewHNSWIndex creates an empty HNSW index.
func NewHNSWIndex(dimensions int, cfg HNSWConfig) (*HNSWIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return &HNSWIndex{
		dimensions: dimensions,
		graph:      g,
		keys:       make(map[string]uint64),
		codes:      make(map[uint64]string),
	}, nil
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() string {
	return string(IndexTypeHNSW)
}

// Add upserts normalized copies of vectors keyed by code.
func (h *HNSWIndex) Add(ctx context.Context, codes []string, vectors [][]float32) error {
	if len(codes) != len(vectors) {
		return fmt.Errorf("codes and vectors length mismatch: %d vs %d", len(codes), len(vectors))
	}
	for _, v := range vectors {
		if len(v) != h.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), h.dimensions)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	nodes := make([]hnsw.Node[uint64], 0, len(codes))
	for i, code := range codes {
		if old, ok := h.keys[code]; ok {
			delete(h.codes, old)
		}
		key := h.nextKey
		h.nextKey++
		vec := make([]float32, h.dimensions)
		copy(vec, vectors[i])
		utils.NormalizeL2(vec)
		nodes = append(nodes, hnsw.MakeNode(key, vec))
		h.keys[code] = key
		h.codes[key] = code
	}
	h.graph.Add(nodes...)
	return nil
}

// Search returns up to k live codes nearest to query.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != h.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), h.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k <= 0 || h.graph.Len() == 0 || len(h.codes) == 0 {
		return []*VectorResult{}, nil
	}
	q := make([]float32, len(query))
	copy(q, query)
	utils.NormalizeL2(q)

	// Orphans may occupy result slots, so over-fetch by their count.
	orphans := h.graph.Len() - len(h.codes)
	nodes := h.graph.Search(q, k+orphans)
	results := make([]*VectorResult, 0, k)
	for _, n := range nodes {
		code, ok := h.codes[n.Key]
		if !ok {
			continue
		}
		results = append(results, &VectorResult{
			Code:  code,
			Score: 1 - float64(h.graph.Distance(q, n.Value)),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Remove orphans the given codes.
func (h *HNSWIndex) Remove(ctx context.Context, codes []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range codes {
		if key, ok := h.keys[c]; ok {
			delete(h.codes, key)
			delete(h.keys, c)
		}
	}
	return nil
}

// Save exports the graph to path and the code mapping to path+".meta".
func (h *HNSWIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := writeAtomic(path, func(f *os.File) error { return h.graph.Export(f) }); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	meta := hnswMeta{Dimensions: h.dimensions, Keys: h.keys, NextKey: h.nextKey}
	if err := writeAtomic(path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(meta) }); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// Load imports a graph saved by Save. A missing file leaves the index unchanged.
func (h *HNSWIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	mf, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open metadata: %w", err)
	}
	defer mf.Close()
	var meta hnswMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if meta.Dimensions != h.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", meta.Dimensions, h.dimensions)
	}
	gf, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer gf.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.graph.Import(bufio.NewReader(gf)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	h.keys = meta.Keys
	h.nextKey = meta.NextKey
	h.codes = make(map[uint64]string, len(meta.Keys))
	for code, key := range meta.Keys {
		h.codes[key] = code
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Size returns the number of live codes.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.codes)
}

// Close is a no-op.
func (h *HNSWIndex) Close() error {
	return nil
}
