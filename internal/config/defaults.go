package config

import (
	"runtime"
	"time"
)

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/codematch/data/db/codes.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/codematch/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/codematch/data/indices/vectors.bin"
	}
	if cfg.Vocabulary.Columns.Code == "" {
		cfg.Vocabulary.Columns.Code = "Kod"
	}
	if cfg.Vocabulary.Columns.Description == "" {
		cfg.Vocabulary.Columns.Description = "Nazev"
	}
	if cfg.Vocabulary.Columns.Category == "" {
		cfg.Vocabulary.Columns.Category = "Kategorie"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Provider == "onnx" {
		cfg.Embedding.ModelPath = "/usr/local/var/codematch/data/models/multilingual-e5-small.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 128
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "hnsw"
	}
	if cfg.Vector.M == 0 {
		cfg.Vector.M = 16
	}
	if cfg.Vector.EfSearch == 0 {
		cfg.Vector.EfSearch = 64
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 20
	}
	if cfg.Retrieval.RRFK == 0 {
		cfg.Retrieval.RRFK = 60
	}
	if cfg.Retrieval.Lexical == "" {
		cfg.Retrieval.Lexical = "bm25"
	}
	if cfg.Reranker.Provider == "" {
		cfg.Reranker.Provider = "lexical"
	}
	if cfg.Reranker.Endpoint == "" && cfg.Reranker.Provider == "http" {
		cfg.Reranker.Endpoint = "http://localhost:9659"
	}
	if cfg.Reranker.Timeout == 0 {
		cfg.Reranker.Timeout = 30 * time.Second
	}
	if cfg.Reranker.BatchSize == 0 {
		cfg.Reranker.BatchSize = 64
	}
	if cfg.Reranker.MaxTokens == 0 {
		cfg.Reranker.MaxTokens = 256
	}
	if cfg.Calibration.RiskLevel == 0 {
		cfg.Calibration.RiskLevel = 0.05
	}
	if cfg.Calibration.TopN == 0 {
		cfg.Calibration.TopN = 5
	}
	if cfg.Pipeline.Concurrency == 0 {
		cfg.Pipeline.Concurrency = runtime.NumCPU()
	}
	if cfg.Pipeline.SegmentTopK == 0 {
		cfg.Pipeline.SegmentTopK = 3
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
