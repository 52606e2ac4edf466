package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type rerankServer struct {
	mu       sync.Mutex
	requests []rerankRequest
}

// handler scores each document by its length and answers in reverse order,
// so clients must map results back by index.
func (s *rerankServer) handler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.URL.Path != "/rerank" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req rerankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	type result struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	out := struct {
		Results []result `json:"results"`
	}{}
	for i := len(req.Documents) - 1; i >= 0; i-- {
		out.Results = append(out.Results, result{Index: i, Score: float64(len(req.Documents[i]))})
	}
	_ = json.NewEncoder(w).Encode(out)
}

func TestHTTPCrossEncoder_Score(t *testing.T) {
	srv := &rerankServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	c, err := NewHTTPCrossEncoder(HTTPConfig{Endpoint: ts.URL + "/", Model: "ce-mini", BatchSize: 2}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	pairs := []Pair{{"q", "a"}, {"q", "bbb"}, {"q", "cc"}, {"other", "dddd"}}
	scores, err := c.Score(context.Background(), pairs)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if want := []float64{1, 3, 2, 4}; !reflect.DeepEqual(scores, want) {
		t.Errorf("scores = %v, want %v", scores, want)
	}
	if len(srv.requests) != 3 {
		t.Fatalf("expected 3 requests (batch of 2, remainder, new query), got %d", len(srv.requests))
	}
	if srv.requests[0].Model != "ce-mini" || srv.requests[2].Query != "other" {
		t.Errorf("requests = %+v", srv.requests)
	}
	if !c.Available(context.Background()) {
		t.Error("expected service to be available")
	}
}

func TestHTTPCrossEncoder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}, "503"},
		{"missing index", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"index":0,"score":1}]}`))
		}, "missing score"},
		{"index out of range", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"index":0,"score":1},{"index":7,"score":1}]}`))
		}, "out of range"},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()
			c, _ := NewHTTPCrossEncoder(HTTPConfig{Endpoint: ts.URL}, nil)
			_, err := c.Score(context.Background(), []Pair{{"q", "a"}, {"q", "b"}})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestHTTPCrossEncoder_EmptyAndConfig(t *testing.T) {
	if _, err := NewHTTPCrossEncoder(HTTPConfig{}, nil); err == nil {
		t.Error("expected error without endpoint")
	}
	c, _ := NewHTTPCrossEncoder(HTTPConfig{Endpoint: "http://127.0.0.1:1"}, nil)
	scores, err := c.Score(context.Background(), nil)
	if err != nil || len(scores) != 0 {
		t.Errorf("empty Score = %v, %v", scores, err)
	}
}
