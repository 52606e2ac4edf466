package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/codematch/internal/config"
	"github.com/hyperjump/codematch/internal/models"
	"github.com/hyperjump/codematch/internal/server"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"flags first", []string{"-risk", "0.1", "AMI"}, []string{"-risk", "0.1", "AMI"}},
		{"flags after phrase", []string{"akutní", "infarkt", "-output", "json"}, []string{"-output", "json", "akutní", "infarkt"}},
		{"no flags", []string{"AMI"}, []string{"AMI"}},
		{"stdin dash is positional", []string{"-", "-output", "json"}, []string{"-output", "json", "-"}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := argsReorder(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("argsReorder(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestJoinArgs(t *testing.T) {
	if got := joinArgs([]string{"akutní", "infarkt ", " myokardu"}); got != "akutní infarkt   myokardu" {
		t.Errorf("joinArgs = %q", got)
	}
	if got := joinArgs(nil); got != "" {
		t.Errorf("joinArgs(nil) = %q", got)
	}
}

func TestReadPhrases(t *testing.T) {
	got, err := readPhrases(strings.NewReader("AMI\n\n  hypertenze  \n\t\nDM 2. typu"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"AMI", "hypertenze", "DM 2. typu"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("readPhrases = %v, want %v", got, want)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("debug: true\nstorage:\n  database_path: ./codes.db\n"), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "codematch.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  host: 127.0.0.1\n  port: 9000\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

// testConfig returns a config that needs no model files.
func testConfig(t *testing.T, lexical string) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "codes.db"),
			BleveIndexPath:  filepath.Join(dir, "bleve"),
			VectorIndexPath: filepath.Join(dir, "vectors.bin"),
		},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: 16},
		Vector:    config.VectorConfig{Type: "memory"},
		Retrieval: config.RetrievalConfig{Lexical: lexical},
		Reranker:  config.RerankerConfig{Provider: "lexical"},
		Pipeline:  config.PipelineConfig{Concurrency: 2},
	}
	config.ApplyDefaults(cfg)
	return cfg, dir
}

func writeVocab(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "codes.csv")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

const testVocab = "Kod,Nazev\nK35,Akutní apendicitida\nI10,Esenciální hypertenze\nI21,Akutní infarkt myokardu\n"

func TestComponents_LoadAndMatch(t *testing.T) {
	for _, backend := range []string{"bm25", "bleve"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg, dir := testConfig(t, backend)
			c, err := initializeComponents(ctx, cfg, zap.NewNop())
			if err != nil {
				t.Fatalf("initializeComponents: %v", err)
			}
			defer c.Close()

			rec, stats, err := c.LoadVocabulary(ctx, writeVocab(t, dir, testVocab), false)
			if err != nil {
				t.Fatalf("LoadVocabulary: %v", err)
			}
			if rec.Count != 3 || stats.Embedded != 3 {
				t.Errorf("rec=%+v stats=%+v", rec, stats)
			}
			if n, _ := c.Lexical.DocCount(); n != 3 {
				t.Errorf("lexical docs = %d, want 3", n)
			}

			engine, err := c.NewEngine()
			if err != nil {
				t.Fatal(err)
			}
			defer engine.Matcher.Release()
			result, err := engine.Matcher.Match(ctx, &models.MatchQuery{Phrase: "esenciální hypertenze"})
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if len(result.Members) == 0 || result.Members[0].Code != "I10" {
				t.Errorf("members = %+v", result.Members)
			}
		})
	}
}

func TestInitializeComponents_RebuildsVectorsFromStorage(t *testing.T) {
	ctx := context.Background()
	cfg, dir := testConfig(t, "bm25")
	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.LoadVocabulary(ctx, writeVocab(t, dir, testVocab), false); err != nil {
		t.Fatal(err)
	}
	c.Close()
	if err := os.Remove(cfg.Storage.VectorIndexPath); err != nil {
		t.Fatal(err)
	}

	c, err = initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.VectorIndex.Size() != 3 {
		t.Errorf("vector size = %d, want 3 after rebuild", c.VectorIndex.Size())
	}
	if n, _ := c.Lexical.DocCount(); n != 3 {
		t.Errorf("lexical docs = %d, want 3", n)
	}
}

func TestReloadEngine_SwapsAfterVocabularyChange(t *testing.T) {
	ctx := context.Background()
	cfg, dir := testConfig(t, "bm25")
	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	path := writeVocab(t, dir, testVocab)
	if _, _, err := c.LoadVocabulary(ctx, path, false); err != nil {
		t.Fatal(err)
	}
	first, err := c.NewEngine()
	if err != nil {
		t.Fatal(err)
	}
	srv := server.NewServer(first, &cfg.Server, zap.NewNop())

	writeVocab(t, dir, "Kod,Nazev\nJ18,Pneumonie\nI10,Esenciální hypertenze\n")
	reloadEngine(ctx, cfg, c, srv, zap.NewNop(), path)

	current := srv.Engine()
	if current == first {
		t.Fatal("engine should have been swapped")
	}
	defer current.Matcher.Release()
	if n, _ := c.Storage.CountEntries(ctx); n != 2 {
		t.Errorf("entries = %d, want 2 after prune", n)
	}
	result, err := current.Matcher.Match(ctx, &models.MatchQuery{Phrase: "pneumonie"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Members) == 0 || result.Members[0].Code != "J18" {
		t.Errorf("members = %+v", result.Members)
	}

	// A broken file keeps the current engine.
	writeVocab(t, dir, "Wrong,Header\nx,y\n")
	reloadEngine(ctx, cfg, c, srv, zap.NewNop(), path)
	if srv.Engine() != current {
		t.Error("failed reload should keep the current engine")
	}
}

func TestReloadEngine_AbbreviationChangeWithRelativeConfigPath(t *testing.T) {
	ctx := context.Background()
	cfg, dir := testConfig(t, "bm25")
	t.Chdir(dir)
	writeAbbrev := func(body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, "abbrev.csv"), []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}
	writeAbbrev("Abbreviation,Description\nHT,hypertenze\n")
	cfg.Vocabulary.AbbreviationFile = "abbrev.csv"

	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, _, err := c.LoadVocabulary(ctx, writeVocab(t, dir, testVocab), false); err != nil {
		t.Fatal(err)
	}
	first, err := c.NewEngine()
	if err != nil {
		t.Fatal(err)
	}
	defer first.Matcher.Release()
	srv := server.NewServer(first, &cfg.Server, zap.NewNop())

	writeAbbrev("Abbreviation,Description\nHT,hypertenze\nAIM,akutní infarkt myokardu\n")
	// The watcher reports absolute paths.
	reloadEngine(ctx, cfg, c, srv, zap.NewNop(), filepath.Join(dir, "abbrev.csv"))

	current := srv.Engine()
	if current == first {
		t.Fatal("engine should have been swapped after the abbreviation change")
	}
	defer current.Matcher.Release()
	if n := c.Expander.Len(); n != 2 {
		t.Errorf("expander aliases = %d, want 2", n)
	}
	if n, _ := c.Storage.CountEntries(ctx); n != 3 {
		t.Errorf("entries = %d, want 3 (vocabulary untouched)", n)
	}
	result, err := current.Matcher.Match(ctx, &models.MatchQuery{Phrase: "AIM"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Expanded == "" {
		t.Errorf("phrase was not expanded: %+v", result)
	}
}

func TestSamePath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	tests := []struct {
		a, b string
		want bool
	}{
		{"abbrev.csv", filepath.Join(dir, "abbrev.csv"), true},
		{"./data/../abbrev.csv", filepath.Join(dir, "abbrev.csv"), true},
		{"codes.csv", filepath.Join(dir, "abbrev.csv"), false},
		{"", "", false},
		{filepath.Join(dir, "abbrev.csv"), "", false},
	}
	for _, tt := range tests {
		if got := samePath(tt.a, tt.b); got != tt.want {
			t.Errorf("samePath(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLocalStatus(t *testing.T) {
	ctx := context.Background()
	cfg, dir := testConfig(t, "bm25")
	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, _, err := c.LoadVocabulary(ctx, writeVocab(t, dir, testVocab), false); err != nil {
		t.Fatal(err)
	}
	s, err := localStatus(ctx, cfg, c)
	if err != nil {
		t.Fatal(err)
	}
	if s.Codes != 3 || s.VectorIndexSize != 3 || s.LexicalBackend != "bm25" || s.LastLoad == nil {
		t.Errorf("status = %+v", s)
	}
	var buf bytes.Buffer
	writeStatusText(&buf, s)
	if !strings.Contains(buf.String(), "codes:              3") {
		t.Errorf("status text:\n%s", buf.String())
	}
}

func TestDecodeResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			http.Error(w, `{"error":"phrase cannot be empty"}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"codes": 7, "lexical_backend": "bleve"}`))
	}))
	defer ts.Close()

	var s statusResponse
	if err := getJSON(ts.URL+"/ok", &s); err != nil {
		t.Fatal(err)
	}
	if s.Codes != 7 || s.LexicalBackend != "bleve" {
		t.Errorf("status = %+v", s)
	}
	err := postJSON(ts.URL+"/fail", map[string]string{"phrase": ""}, &s)
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want status 400", err)
	}
}
