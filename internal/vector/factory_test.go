package vector

import (
	"context"
	"testing"
)

func TestNewVectorIndex(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		wantType string
		wantErr  bool
	}{
		{"memory", "memory", "memory", false},
		{"empty defaults to memory", "", "memory", false},
		{"hnsw", "hnsw", "hnsw", false},
		{"unknown", "faiss", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := NewVectorIndex(tt.typ, 3, HNSWConfig{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVectorIndex(%q) error = %v, wantErr %v", tt.typ, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer idx.Close()
			if idx.Type() != tt.wantType {
				t.Errorf("Type() = %q, want %q", idx.Type(), tt.wantType)
			}
			if err := idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0}}); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if idx.Size() != 1 {
				t.Errorf("Size=%d, want 1", idx.Size())
			}
		})
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	if _, err := NewVectorIndex("memory", 0, HNSWConfig{}); err == nil {
		t.Error("expected error for zero dimension")
	}
}
