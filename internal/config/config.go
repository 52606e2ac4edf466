// Package config provides configuration loading and structs for the codematch server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/codematch/internal/vocab"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Vocabulary  VocabularyConfig  `yaml:"vocabulary"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Vector      VectorConfig      `yaml:"vector"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// VocabularyConfig locates the code vocabulary and the abbreviation list.
type VocabularyConfig struct {
	Source           string        `yaml:"source"`
	Columns          vocab.Columns `yaml:"columns"`
	AbbreviationFile string        `yaml:"abbreviation_file"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider      string `yaml:"provider"`
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	OutputName    string `yaml:"output_name"`
	Dimensions    int    `yaml:"dimensions"`
	MaxTokens     int    `yaml:"max_tokens"`
	CacheSize     int    `yaml:"cache_size"`
	BatchSize     int    `yaml:"batch_size"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API token.
	APIKeyEnv string `yaml:"api_key_env"`
}

// VectorConfig selects the vector index.
type VectorConfig struct {
	Type     string `yaml:"type"`
	M        int    `yaml:"m"`
	EfSearch int    `yaml:"ef_search"`
}

// RetrievalConfig holds hybrid retrieval settings.
type RetrievalConfig struct {
	TopK    int    `yaml:"top_k"`
	RRFK    int    `yaml:"rrf_k"`
	Lexical string `yaml:"lexical"`
}

// RerankerConfig selects and configures the pairwise relevance model.
type RerankerConfig struct {
	Provider      string        `yaml:"provider"`
	Endpoint      string        `yaml:"endpoint"`
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	BatchSize     int           `yaml:"batch_size"`
	ModelPath     string        `yaml:"model_path"`
	TokenizerPath string        `yaml:"tokenizer_path"`
	MaxTokens     int           `yaml:"max_tokens"`
}

// CalibrationConfig holds prediction set settings.
type CalibrationConfig struct {
	RiskLevel float64 `yaml:"risk_level"`
	TopN      int     `yaml:"top_n"`
}

// PipelineConfig holds batch and narrative matching settings.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency"`
	SegmentTopK int `yaml:"segment_top_k"`
}

// WatchConfig holds vocabulary reload settings.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	for _, p := range []*string{
		&cfg.Storage.DatabasePath,
		&cfg.Storage.BleveIndexPath,
		&cfg.Storage.VectorIndexPath,
		&cfg.Vocabulary.Source,
		&cfg.Vocabulary.AbbreviationFile,
		&cfg.Embedding.ModelPath,
		&cfg.Embedding.TokenizerPath,
		&cfg.Reranker.ModelPath,
		&cfg.Reranker.TokenizerPath,
	} {
		if *p != "" {
			*p = expandPath(*p, configDir)
		}
	}
	return &cfg, nil
}

// Validate rejects values that defaults cannot repair.
func (c *Config) Validate() error {
	if r := c.Calibration.RiskLevel; r <= 0 || r >= 1 {
		return fmt.Errorf("calibration.risk_level must be in (0,1), got %v", r)
	}
	switch c.Retrieval.Lexical {
	case "bm25", "bleve":
	default:
		return fmt.Errorf("retrieval.lexical must be bm25 or bleve, got %q", c.Retrieval.Lexical)
	}
	switch c.Vector.Type {
	case "memory", "hnsw":
	default:
		return fmt.Errorf("vector.type must be memory or hnsw, got %q", c.Vector.Type)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath resolves a configured path to an absolute one. A "~" prefix is
// the home directory; any other relative path is relative to configDir.
func expandPath(path string, configDir string) string {
	switch {
	case path == "~" || strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	case !filepath.IsAbs(path):
		path = filepath.Join(configDir, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
