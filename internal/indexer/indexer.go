// Package indexer loads the code vocabulary into storage and builds the
// lexical and vector indexes over it.
package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/codematch/internal/embedding"
	"github.com/hyperjump/codematch/internal/keyword"
	"github.com/hyperjump/codematch/internal/models"
	"github.com/hyperjump/codematch/internal/storage"
	"github.com/hyperjump/codematch/internal/vector"
	"github.com/hyperjump/codematch/internal/vocab"
	"github.com/hyperjump/codematch/pkg/utils"
)

// DefaultEmbedBatchSize is the number of descriptions embedded per call.
const DefaultEmbedBatchSize = 64

// Stats summarizes one build.
type Stats struct {
	Entries  int           `json:"entries"`
	Embedded int           `json:"embedded"`
	Removed  int           `json:"removed,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Indexer writes code entries to storage, an optional lexical writer and the vector index.
type Indexer struct {
	storage     storage.Storage
	embedder    embedding.Embedder
	vectorIndex vector.VectorIndex
	lexical     keyword.Writer
	batchSize   int
	vectorPath  string
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = utils.OrNop(l) }
}

// WithLexicalWriter also feeds entries to a persistent lexical index such as bleve.
func WithLexicalWriter(w keyword.Writer) IndexerOption {
	return func(idx *Indexer) { idx.lexical = w }
}

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithVectorPath saves the vector index to path after every build.
func WithVectorPath(path string) IndexerOption {
	return func(idx *Indexer) { idx.vectorPath = path }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	storage storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:     storage,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		batchSize:   DefaultEmbedBatchSize,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Build normalizes entries, stores them and indexes them.
func (idx *Indexer) Build(ctx context.Context, entries []*models.CodeEntry) (*Stats, error) {
	for _, e := range entries {
		e.Description = Preprocess(e.Description)
		if e.Chapter == "" {
			e.Chapter = vocab.Chapter(e.Code)
		}
	}
	if err := idx.storage.PutEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to store entries: %w", err)
	}
	return idx.index(ctx, entries)
}

// Rebuild re-indexes every stored entry without touching storage.
func (idx *Indexer) Rebuild(ctx context.Context) (*Stats, error) {
	entries, err := idx.storage.AllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return idx.index(ctx, entries)
}

// LoadFile reads a vocabulary file, builds it and records the load. Stored
// codes missing from the file are kept.
func (idx *Indexer) LoadFile(ctx context.Context, path string, cols vocab.Columns) (*models.LoadRecord, *Stats, error) {
	return idx.loadFile(ctx, path, cols, false)
}

// SyncFile is LoadFile that also removes stored codes the file no longer lists.
func (idx *Indexer) SyncFile(ctx context.Context, path string, cols vocab.Columns) (*models.LoadRecord, *Stats, error) {
	return idx.loadFile(ctx, path, cols, true)
}

func (idx *Indexer) loadFile(ctx context.Context, path string, cols vocab.Columns, prune bool) (*models.LoadRecord, *Stats, error) {
	entries, err := vocab.LoadFile(path, cols)
	if err != nil {
		return nil, nil, err
	}
	var stale []string
	if prune {
		if stale, err = idx.staleCodes(ctx, entries); err != nil {
			return nil, nil, err
		}
		if len(stale) > 0 {
			if err := idx.Remove(ctx, stale); err != nil {
				return nil, nil, err
			}
		}
	}
	stats, err := idx.Build(ctx, entries)
	if err != nil {
		return nil, nil, err
	}
	stats.Removed = len(stale)
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	rec := &models.LoadRecord{ID: uuid.New().String(), Source: abs, Count: len(entries)}
	if err := idx.storage.RecordLoad(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("failed to record load: %w", err)
	}
	idx.logger.Info("vocabulary loaded",
		zap.String("source", abs),
		zap.Int("entries", len(entries)),
		zap.Int("removed", stats.Removed),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return rec, stats, nil
}

func (idx *Indexer) staleCodes(ctx context.Context, entries []*models.CodeEntry) ([]string, error) {
	stored, err := idx.storage.AllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	keep := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keep[e.Code] = struct{}{}
	}
	var stale []string
	for _, e := range stored {
		if _, ok := keep[e.Code]; !ok {
			stale = append(stale, e.Code)
		}
	}
	return stale, nil
}

func (idx *Indexer) index(ctx context.Context, entries []*models.CodeEntry) (*Stats, error) {
	start := time.Now()
	if idx.lexical != nil {
		if err := idx.lexical.IndexEntries(ctx, entries); err != nil {
			return nil, fmt.Errorf("failed to index keywords: %w", err)
		}
	}

	stats := &Stats{Entries: len(entries)}
	for from := 0; from < len(entries); from += idx.batchSize {
		to := from + idx.batchSize
		if to > len(entries) {
			to = len(entries)
		}
		batch := entries[from:to]
		texts := make([]string, len(batch))
		codes := make([]string, len(batch))
		for i, e := range batch {
			texts[i], codes[i] = e.Description, e.Code
		}
		vecs, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if err := idx.vectorIndex.Add(ctx, codes, vecs); err != nil {
			return nil, fmt.Errorf("failed to index vectors: %w", err)
		}
		stats.Embedded += len(batch)
		idx.logger.Debug("indexer embedded batch", zap.Int("done", stats.Embedded), zap.Int("total", len(entries)))
	}

	if idx.vectorPath != "" {
		if err := idx.vectorIndex.Save(idx.vectorPath); err != nil {
			return nil, fmt.Errorf("failed to save vector index: %w", err)
		}
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}

// Remove deletes codes from storage and the vector index.
func (idx *Indexer) Remove(ctx context.Context, codes []string) error {
	if err := idx.vectorIndex.Remove(ctx, codes); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if idx.lexical != nil {
		if err := idx.lexical.DeleteEntries(ctx, codes); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	if err := idx.storage.DeleteEntries(ctx, codes); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	return nil
}
