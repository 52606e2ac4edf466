// Package server provides the HTTP API for codematch.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/codematch/internal/config"
	"github.com/hyperjump/codematch/internal/extract"
	"github.com/hyperjump/codematch/internal/keyword"
	"github.com/hyperjump/codematch/internal/pipeline"
	"github.com/hyperjump/codematch/internal/storage"
	"github.com/hyperjump/codematch/internal/vector"
)

// Engine bundles what the handlers read for one vocabulary generation.
type Engine struct {
	Matcher *pipeline.Matcher
	Storage storage.Storage
	Vectors vector.VectorIndex
	Lexical keyword.LexicalIndex
}

// Server is the HTTP server for the codematch API.
type Server struct {
	engine    atomic.Pointer[Engine]
	extractor *extract.Extractor
	config    *config.ServerConfig
	stores    *config.StorageConfig
	logger    *zap.Logger
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithStorageConfig sets the stores whose disk usage /status reports.
func WithStorageConfig(cfg *config.StorageConfig) Option {
	return func(s *Server) { s.stores = cfg }
}

// NewServer creates a server serving engine.
func NewServer(engine *Engine, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		extractor: extract.NewExtractor(),
		config:    cfg,
		logger:    logger,
	}
	s.engine.Store(engine)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEngine swaps in a new engine and returns the previous one. Requests in
// flight keep the engine they started with.
func (s *Server) SetEngine(e *Engine) *Engine {
	return s.engine.Swap(e)
}

// Engine returns the current engine.
func (s *Server) Engine() *Engine {
	return s.engine.Load()
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/match", s.handleMatch)
	r.Post("/api/v1/match/batch", s.handleMatchBatch)
	r.Post("/api/v1/segment", s.handleSegment)
	r.Post("/api/v1/segment/file", s.handleSegmentFile)
	r.Get("/api/v1/codes/{code}", s.handleGetCode)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
