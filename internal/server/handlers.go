package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/codematch/internal/calibrate"
	"github.com/hyperjump/codematch/internal/extract"
	"github.com/hyperjump/codematch/internal/models"
	"github.com/hyperjump/codematch/internal/pipeline"
	"github.com/hyperjump/codematch/internal/storage"
)

const (
	// maxBatchPhrases bounds one batch request.
	maxBatchPhrases = 1000
	// maxUploadBytes bounds an uploaded report.
	maxUploadBytes = 10 << 20
)

// errorStatus maps pipeline errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuery),
		errors.Is(err, pipeline.ErrInvalidQuery),
		errors.Is(err, calibrate.ErrInvalidArgument),
		errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var query models.MatchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("match request", zap.String("phrase", query.Phrase), zap.Int("top_k", query.TopK))
	start := time.Now()
	result, err := s.Engine().Matcher.Match(r.Context(), &query)
	if err != nil {
		s.fail(w, "match failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.MatchResponse{
		RequestID: uuid.New().String(),
		Result:    result,
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleMatchBatch(w http.ResponseWriter, r *http.Request) {
	var query models.BatchMatchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(query.Phrases) > maxBatchPhrases {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d phrases per batch", maxBatchPhrases))
		return
	}
	s.logger.Debug("batch match request", zap.Int("phrases", len(query.Phrases)))
	start := time.Now()
	items := s.Engine().Matcher.MatchBatch(r.Context(), &query)
	s.respondJSON(w, http.StatusOK, &models.BatchMatchResponse{
		RequestID: uuid.New().String(),
		Items:     items,
		Failed:    pipeline.FailedCount(items),
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	var query models.SegmentQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.segment(w, r, &query)
}

// handleSegmentFile accepts a multipart "file" upload of a clinical report
// and segments its extracted text.
func (s *Server) handleSegmentFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	ext := filepath.Ext(header.Filename)
	if !extract.Supported(ext) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported report format %q", ext))
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	text, err := s.extractor.ExtractBytes(content, ext)
	if err != nil {
		s.logger.Warn("report extraction failed", zap.String("file", header.Filename), zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.logger.Debug("segment file request", zap.String("file", header.Filename), zap.Int("chars", len(text)))
	s.segment(w, r, &models.SegmentQuery{Text: text})
}

func (s *Server) segment(w http.ResponseWriter, r *http.Request, query *models.SegmentQuery) {
	start := time.Now()
	resp, err := s.Engine().Matcher.MatchNarrative(r.Context(), query)
	if err != nil {
		s.fail(w, "segment failed", err)
		return
	}
	resp.RequestID = uuid.New().String()
	resp.QueryTime = time.Since(start).Milliseconds()
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	entry, err := s.Engine().Storage.GetEntry(r.Context(), code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "code not found")
			return
		}
		s.fail(w, "get code failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eng := s.Engine()
	count, err := eng.Storage.CountEntries(ctx)
	if err != nil {
		s.fail(w, "status: count entries failed", err)
		return
	}
	resp := map[string]interface{}{
		"codes":             count,
		"vector_index_size": eng.Vectors.Size(),
		"vector_index_type": eng.Vectors.Type(),
		"lexical_backend":   eng.Lexical.Backend(),
	}
	if n, err := eng.Lexical.DocCount(); err == nil {
		resp["lexical_docs"] = n
	}
	if rec, err := eng.Storage.LastLoad(ctx); err == nil {
		resp["last_load"] = rec
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("status: last load failed", zap.Error(err))
	}
	settings := eng.Matcher.Settings()
	resp["config"] = map[string]interface{}{
		"top_k":         settings.TopK,
		"top_n":         settings.TopN,
		"risk_level":    settings.RiskLevel,
		"segment_top_k": settings.SegmentTopK,
	}
	if s.stores != nil {
		if usage, err := storage.MeasureUsage(s.stores); err == nil {
			resp["disk_usage_bytes"] = usage.Total()
			resp["disk_usage"] = usage
		} else {
			s.logger.Warn("status: disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

// respondJSON encodes before writing the header so an unencodable body
// becomes a 500 instead of a truncated 200.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
