package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/codematch/internal/config"
)

func writeSized(t *testing.T, path string, n int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, n), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestMeasureUsage(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.StorageConfig{
		DatabasePath:    filepath.Join(dir, "codes.db"),
		BleveIndexPath:  filepath.Join(dir, "bleve"),
		VectorIndexPath: filepath.Join(dir, "vectors.hnsw"),
	}
	writeSized(t, cfg.DatabasePath, 100)
	writeSized(t, cfg.DatabasePath+"-wal", 20)
	writeSized(t, cfg.DatabasePath+"-shm", 3)
	writeSized(t, filepath.Join(cfg.BleveIndexPath, "index_meta.json"), 7)
	writeSized(t, filepath.Join(cfg.BleveIndexPath, "store", "000000000001.zap"), 50)
	writeSized(t, cfg.VectorIndexPath, 400)
	writeSized(t, cfg.VectorIndexPath+".meta", 16)
	// Unrelated files next to the stores are not counted.
	writeSized(t, filepath.Join(dir, "codes.csv"), 1000)

	u, err := MeasureUsage(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if u.Database != 123 {
		t.Errorf("database = %d, want 123 (db + wal + shm)", u.Database)
	}
	if u.Lexical != 57 {
		t.Errorf("lexical = %d, want 57", u.Lexical)
	}
	if u.Vectors != 416 {
		t.Errorf("vectors = %d, want 416 (index + .meta)", u.Vectors)
	}
	if u.Total() != 596 {
		t.Errorf("total = %d, want 596", u.Total())
	}
}

func TestMeasureUsage_MissingStores(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  *config.StorageConfig
	}{
		{"nothing written yet", &config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "codes.db"),
			BleveIndexPath:  filepath.Join(dir, "bleve"),
			VectorIndexPath: filepath.Join(dir, "vectors.bin"),
		}},
		{"empty paths", &config.StorageConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := MeasureUsage(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if u.Total() != 0 {
				t.Errorf("usage = %+v, want zero", u)
			}
		})
	}
}

func TestMeasureUsage_MemoryVectorsWithoutSidecar(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.StorageConfig{VectorIndexPath: filepath.Join(dir, "vectors.bin")}
	writeSized(t, cfg.VectorIndexPath, 48)
	u, err := MeasureUsage(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if u.Vectors != 48 || u.Database != 0 || u.Lexical != 0 {
		t.Errorf("usage = %+v", u)
	}
}
