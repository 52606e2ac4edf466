package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/codematch/pkg/utils"
)

// MemoryIndex is an exact in-memory index using brute-force inner product.
// Vectors are expected to be L2-normalized; equal scores keep insertion order.
type MemoryIndex struct {
	dimensions int
	codes      []string
	vectors    [][]float32
	pos        map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		pos:        make(map[string]int),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add upserts vectors keyed by code.
func (m *MemoryIndex) Add(ctx context.Context, codes []string, vectors [][]float32) error {
	if len(codes) != len(vectors) {
		return fmt.Errorf("codes and vectors length mismatch: %d vs %d", len(codes), len(vectors))
	}
	for _, v := range vectors {
		if len(v) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, code := range codes {
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		if p, ok := m.pos[code]; ok {
			m.vectors[p] = vec
			continue
		}
		m.pos[code] = len(m.codes)
		m.codes = append(m.codes, code)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search returns the top-k codes by inner product.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.codes) == 0 {
		return []*VectorResult{}, nil
	}
	results := make([]*VectorResult, len(m.codes))
	for i, vec := range m.vectors {
		results[i] = &VectorResult{Code: m.codes[i], Score: utils.Dot(query, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Remove deletes codes, compacting the backing slices.
func (m *MemoryIndex) Remove(ctx context.Context, codes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(codes))
	for _, c := range codes {
		drop[c] = true
	}
	keptCodes := m.codes[:0]
	keptVecs := m.vectors[:0]
	m.pos = make(map[string]int, len(m.codes))
	for i, c := range m.codes {
		if drop[c] {
			continue
		}
		m.pos[c] = len(keptCodes)
		keptCodes = append(keptCodes, c)
		keptVecs = append(keptVecs, m.vectors[i])
	}
	m.codes = keptCodes
	m.vectors = keptVecs
	return nil
}

// Save persists the index to path, creating the directory if needed.
// Format (little endian): dimensions u32, count u32, then per entry: code length u32,
// code bytes, dimensions*float32.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(m.dimensions), uint32(len(m.codes))}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, code := range m.codes {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(code))); err != nil {
			return fmt.Errorf("write code len: %w", err)
		}
		if _, err := w.WriteString(code); err != nil {
			return fmt.Errorf("write code: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return w.Flush()
}

// Load replaces the in-memory contents with the file at path. Dimensions must match.
// A missing file is not an error and leaves the index unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if int(header[0]) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", header[0], m.dimensions)
	}
	n := int(header[1])
	codes := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	pos := make(map[string]int, n)
	buf := make([]byte, m.dimensions*4)
	for i := 0; i < n; i++ {
		var codeLen uint32
		if err := binary.Read(r, binary.LittleEndian, &codeLen); err != nil {
			return fmt.Errorf("read code len: %w", err)
		}
		codeBytes := make([]byte, codeLen)
		if _, err := io.ReadFull(r, codeBytes); err != nil {
			return fmt.Errorf("read code: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		pos[string(codeBytes)] = len(codes)
		codes = append(codes, string(codeBytes))
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	m.mu.Lock()
	m.codes, m.vectors, m.pos = codes, vectors, pos
	m.mu.Unlock()
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.codes)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
