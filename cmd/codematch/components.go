package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/codematch/internal/abbrev"
	"github.com/hyperjump/codematch/internal/config"
	"github.com/hyperjump/codematch/internal/embedding"
	"github.com/hyperjump/codematch/internal/indexer"
	"github.com/hyperjump/codematch/internal/keyword"
	"github.com/hyperjump/codematch/internal/models"
	"github.com/hyperjump/codematch/internal/pipeline"
	"github.com/hyperjump/codematch/internal/rerank"
	"github.com/hyperjump/codematch/internal/search"
	"github.com/hyperjump/codematch/internal/server"
	"github.com/hyperjump/codematch/internal/storage"
	"github.com/hyperjump/codematch/internal/vector"
)

// Components holds initialized services.
type Components struct {
	cfg    *config.Config
	logger *zap.Logger

	Storage     storage.Storage
	Embedder    embedding.Embedder
	VectorIndex vector.VectorIndex
	Scorer      rerank.PairScorer
	Indexer     *indexer.Indexer

	// mu guards Lexical and Expander, which are replaced on reload.
	mu       sync.Mutex
	Lexical  keyword.LexicalIndex
	Expander *abbrev.Expander
}

// Close releases every component.
func (c *Components) Close() {
	if c.Scorer != nil {
		_ = c.Scorer.Close()
	}
	if c.Lexical != nil {
		_ = c.Lexical.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func newEmbedder(cfg *config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	var inner embedding.Embedder
	switch cfg.Provider {
	case embedding.ProviderONNX, "":
		e, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			Dimensions:    cfg.Dimensions,
			MaxTokens:     cfg.MaxTokens,
			OutputName:    cfg.OutputName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize onnx embedder: %w", err)
		}
		inner = e
	case embedding.ProviderOpenAI:
		e, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Token:      os.Getenv(cfg.APIKeyEnv),
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embedder: %w", err)
		}
		inner = e
	case embedding.ProviderMock:
		inner = embedding.NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	return embedding.NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func rerankConfig(cfg *config.RerankerConfig) rerank.Config {
	return rerank.Config{
		Provider: cfg.Provider,
		HTTP: rerank.HTTPConfig{
			Endpoint:  cfg.Endpoint,
			Model:     cfg.Model,
			Timeout:   cfg.Timeout,
			BatchSize: cfg.BatchSize,
		},
		ONNX: rerank.ONNXConfig{
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			MaxTokens:     cfg.MaxTokens,
		},
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	if c.Embedder, err = newEmbedder(&cfg.Embedding, logger); err != nil {
		return nil, err
	}

	c.VectorIndex, err = vector.NewVectorIndex(cfg.Vector.Type, c.Embedder.Dimensions(), vector.HNSWConfig{
		M:        cfg.Vector.M,
		EfSearch: cfg.Vector.EfSearch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if path := cfg.Storage.VectorIndexPath; path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if loadErr := c.VectorIndex.Load(path); loadErr != nil {
				logger.Warn("vector index load skipped (rebuilding)", zap.String("path", path), zap.Error(loadErr))
			}
		}
	}

	if c.Scorer, err = rerank.NewPairScorer(rerankConfig(&cfg.Reranker), logger); err != nil {
		return nil, fmt.Errorf("failed to initialize reranker: %w", err)
	}

	if cfg.Vocabulary.AbbreviationFile != "" {
		if c.Expander, err = abbrev.LoadFile(cfg.Vocabulary.AbbreviationFile); err != nil {
			return nil, err
		}
		logger.Info("abbreviations loaded", zap.Int("count", c.Expander.Len()))
	}

	entries, err := store.AllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	if c.Lexical, err = indexer.OpenLexical(ctx, cfg.Retrieval.Lexical, cfg.Storage.BleveIndexPath, entries); err != nil {
		return nil, fmt.Errorf("failed to initialize lexical index: %w", err)
	}

	idxOpts := []indexer.IndexerOption{
		indexer.WithLogger(logger),
		indexer.WithBatchSize(cfg.Embedding.BatchSize),
		indexer.WithVectorPath(cfg.Storage.VectorIndexPath),
	}
	if w, isWriter := c.Lexical.(keyword.Writer); isWriter {
		idxOpts = append(idxOpts, indexer.WithLexicalWriter(w))
	}
	c.Indexer = indexer.NewIndexer(store, c.Embedder, c.VectorIndex, idxOpts...)

	if len(entries) > 0 && c.VectorIndex.Size() != len(entries) {
		logger.Info("vector index out of date, rebuilding",
			zap.Int("vectors", c.VectorIndex.Size()),
			zap.Int("entries", len(entries)),
		)
		if _, err := c.Indexer.Rebuild(ctx); err != nil {
			return nil, err
		}
	}
	logger.Info("components initialized",
		zap.Int("entries", len(entries)),
		zap.String("vector_index_type", c.VectorIndex.Type()),
		zap.String("lexical_backend", c.Lexical.Backend()),
		zap.String("reranker", cfg.Reranker.Provider),
	)
	ok = true
	return c, nil
}

// NewEngine builds a matcher over the current indexes.
func (c *Components) NewEngine() (*server.Engine, error) {
	c.mu.Lock()
	lexical, expander := c.Lexical, c.Expander
	c.mu.Unlock()

	cfg := c.cfg
	retriever := search.NewHybridRetriever(
		search.NewEmbeddingIndex(c.Embedder, c.VectorIndex),
		lexical,
		search.WithRRFConstant(cfg.Retrieval.RRFK),
		search.WithLogger(c.logger),
	)
	ranker := rerank.New(c.Scorer, c.Storage, rerank.WithLogger(c.logger))
	matcher, err := pipeline.NewMatcher(retriever, ranker,
		pipeline.WithLogger(c.logger),
		pipeline.WithExpander(expander),
		pipeline.WithPoolSize(cfg.Pipeline.Concurrency),
		pipeline.WithSettings(pipeline.Settings{
			TopK:        cfg.Retrieval.TopK,
			TopN:        cfg.Calibration.TopN,
			RiskLevel:   cfg.Calibration.RiskLevel,
			SegmentTopK: cfg.Pipeline.SegmentTopK,
		}),
	)
	if err != nil {
		return nil, err
	}
	return &server.Engine{Matcher: matcher, Storage: c.Storage, Vectors: c.VectorIndex, Lexical: lexical}, nil
}

// LoadVocabulary imports path into storage and the indexes. With prune set,
// codes absent from the file are removed. An in-memory BM25 index is rebuilt
// from storage; bleve is updated in place by the indexer. Loads hold the
// storage write lock and fail with storage.ErrLocked while another process
// is loading.
func (c *Components) LoadVocabulary(ctx context.Context, path string, prune bool) (*models.LoadRecord, *indexer.Stats, error) {
	load := c.Indexer.LoadFile
	if prune {
		load = c.Indexer.SyncFile
	}
	lock := storage.NewWriteLock(filepath.Dir(c.cfg.Storage.DatabasePath))
	if err := lock.TryLock(); err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("failed to release write lock", zap.Error(err))
		}
	}()
	rec, stats, err := load(ctx, path, c.cfg.Vocabulary.Columns)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Lexical.Backend() == keyword.BackendBM25 {
		entries, err := c.Storage.AllEntries(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read entries: %w", err)
		}
		lexical, err := indexer.OpenLexical(ctx, keyword.BackendBM25, "", entries)
		if err != nil {
			return nil, nil, err
		}
		c.Lexical = lexical
	}
	return rec, stats, nil
}

// ReloadAbbreviations rereads the abbreviation file.
func (c *Components) ReloadAbbreviations() error {
	if c.cfg.Vocabulary.AbbreviationFile == "" {
		return nil
	}
	x, err := abbrev.LoadFile(c.cfg.Vocabulary.AbbreviationFile)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.Expander = x
	c.mu.Unlock()
	c.logger.Info("abbreviations reloaded", zap.Int("count", x.Len()))
	return nil
}
