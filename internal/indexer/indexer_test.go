package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/codematch/internal/embedding"
	"github.com/hyperjump/codematch/internal/keyword"
	"github.com/hyperjump/codematch/internal/models"
	"github.com/hyperjump/codematch/internal/storage"
	"github.com/hyperjump/codematch/internal/vector"
	"github.com/hyperjump/codematch/internal/vocab"
)

type testEnv struct {
	store *storage.SQLiteStorage
	emb   *embedding.MockEmbedder
	vec   *vector.MemoryIndex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "codes.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	vec, err := vector.NewMemoryIndex(16)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{store: store, emb: embedding.NewMockEmbedder(16), vec: vec}
}

func testEntries() []*models.CodeEntry {
	return []*models.CodeEntry{
		{Code: "K35", Description: "  Akutní   apendicitida\t"},
		{Code: "I10", Description: "Esenciální hypertenze"},
		{Code: "E11", Description: "Diabetes mellitus 2. typu"},
	}
}

func TestIndexer_Build(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vecPath := filepath.Join(t.TempDir(), "vectors.bin")
	idx := NewIndexer(env.store, env.emb, env.vec, WithBatchSize(2), WithVectorPath(vecPath), WithLogger(zap.NewNop()))

	stats, err := idx.Build(ctx, testEntries())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Entries != 3 || stats.Embedded != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if env.vec.Size() != 3 {
		t.Errorf("vector size = %d, want 3", env.vec.Size())
	}
	e, err := env.store.GetEntry(ctx, "K35")
	if err != nil {
		t.Fatal(err)
	}
	if e.Description != "Akutní apendicitida" || e.Chapter != "K" {
		t.Errorf("stored entry = %+v", e)
	}
	if _, err := os.Stat(vecPath); err != nil {
		t.Errorf("vector index not saved: %v", err)
	}

	q, _ := env.emb.Embed(ctx, "Akutní apendicitida")
	hits, err := env.vec.Search(ctx, q, 1)
	if err != nil || len(hits) != 1 || hits[0].Code != "K35" {
		t.Errorf("vector search = %+v, %v", hits, err)
	}
}

func TestIndexer_RebuildFromStorage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.store.PutEntries(ctx, testEntries()); err != nil {
		t.Fatal(err)
	}
	idx := NewIndexer(env.store, env.emb, env.vec)
	stats, err := idx.Rebuild(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Embedded != 3 || env.vec.Size() != 3 {
		t.Errorf("stats = %+v, size = %d", stats, env.vec.Size())
	}
}

func TestIndexer_LoadFileWithBleve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "diagnozy.csv")
	csv := "Kod,Nazev,Kategorie\nK35,Akutní apendicitida,Trávicí\nI10,Esenciální hypertenze,Oběhová\n"
	if err := os.WriteFile(path, []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}
	bl, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	defer bl.Close()

	idx := NewIndexer(env.store, env.emb, env.vec, WithLexicalWriter(bl))
	rec, stats, err := idx.LoadFile(ctx, path, vocab.DefaultColumns())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if rec.ID == "" || rec.Count != 2 || stats.Entries != 2 {
		t.Errorf("rec = %+v, stats = %+v", rec, stats)
	}
	last, err := env.store.LastLoad(ctx)
	if err != nil || last.ID != rec.ID {
		t.Errorf("LastLoad = %+v, %v", last, err)
	}
	if n, _ := bl.DocCount(); n != 2 {
		t.Errorf("bleve DocCount = %d, want 2", n)
	}

	if err := idx.Remove(ctx, []string{"K35"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.store.GetEntry(ctx, "K35"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected K35 removed, got %v", err)
	}
	if n, _ := bl.DocCount(); n != 1 {
		t.Errorf("bleve DocCount after remove = %d, want 1", n)
	}
	if env.vec.Size() != 1 {
		t.Errorf("vector size after remove = %d, want 1", env.vec.Size())
	}
}

func TestIndexer_LoadFileMissing(t *testing.T) {
	env := newTestEnv(t)
	idx := NewIndexer(env.store, env.emb, env.vec)
	if _, _, err := idx.LoadFile(context.Background(), filepath.Join(t.TempDir(), "none.csv"), vocab.DefaultColumns()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIndexer_SyncFilePrunesStaleCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idx := NewIndexer(env.store, env.emb, env.vec)
	if _, err := idx.Build(ctx, testEntries()); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "codes.csv")
	body := "Kod,Nazev\nK35,Akutní apendicitida\nJ18,Pneumonie\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	rec, stats, err := idx.SyncFile(ctx, path, vocab.DefaultColumns())
	if err != nil {
		t.Fatalf("SyncFile: %v", err)
	}
	if rec.Count != 2 || stats.Removed != 2 {
		t.Errorf("count=%d removed=%d, want 2 and 2", rec.Count, stats.Removed)
	}
	n, err := env.store.CountEntries(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountEntries = %d, %v; want 2", n, err)
	}
	if _, err := env.store.GetEntry(ctx, "I10"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("I10 should be pruned, got %v", err)
	}
	if env.vec.Size() != 2 {
		t.Errorf("vector size = %d, want 2", env.vec.Size())
	}
}

func TestOpenLexical(t *testing.T) {
	ctx := context.Background()
	entries := []*models.CodeEntry{{Code: "I10", Description: "Esenciální hypertenze"}}

	bm, err := OpenLexical(ctx, keyword.BackendBM25, "", entries)
	if err != nil {
		t.Fatal(err)
	}
	if bm.Backend() != keyword.BackendBM25 {
		t.Errorf("backend = %s", bm.Backend())
	}

	path := filepath.Join(t.TempDir(), "bleve")
	bl, err := OpenLexical(ctx, keyword.BackendBleve, path, entries)
	if err != nil {
		t.Fatal(err)
	}
	defer bl.Close()
	res, err := bl.Search(ctx, keyword.Tokenize("hypertenze"), 5)
	if err != nil || len(res) != 1 || res[0].Code != "I10" {
		t.Errorf("bleve search = %+v, %v", res, err)
	}

	if _, err := OpenLexical(ctx, "solr", "", entries); err == nil {
		t.Error("expected error for unknown backend")
	}
}
