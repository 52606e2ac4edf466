// Package main is the codematch CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/codematch/internal/cli"
	"github.com/hyperjump/codematch/internal/config"
	"github.com/hyperjump/codematch/internal/extract"
	"github.com/hyperjump/codematch/internal/models"
	"github.com/hyperjump/codematch/internal/pipeline"
	"github.com/hyperjump/codematch/internal/server"
	"github.com/hyperjump/codematch/internal/storage"
	"github.com/hyperjump/codematch/internal/watcher"
	"github.com/hyperjump/codematch/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/codematch/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	// engineGrace is how long a replaced engine stays alive for in-flight requests.
	engineGrace = 90 * time.Second
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory is preferred if it exists.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "match":
		runMatch()
	case "segment":
		runSegment()
	case "load":
		runLoad()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("codematch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads config, creates the logger and initializes components.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if src := cfg.Vocabulary.Source; src != "" {
		if n, err := components.Storage.CountEntries(ctx); err == nil && n == 0 {
			if _, _, err := components.LoadVocabulary(ctx, src, false); err != nil {
				logger.Fatal("Failed to load vocabulary", zap.String("source", src), zap.Error(err))
			}
		}
	}

	engine, err := components.NewEngine()
	if err != nil {
		logger.Fatal("Failed to build engine", zap.Error(err))
	}
	srv := server.NewServer(engine, &cfg.Server, logger, server.WithStorageConfig(&cfg.Storage))

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if cfg.Watch.Enabled && cfg.Vocabulary.Source != "" {
		w := watcher.NewWatcher(
			[]string{cfg.Vocabulary.Source, cfg.Vocabulary.AbbreviationFile},
			func(path string) { reloadEngine(watchCtx, cfg, components, srv, logger, path) },
			watcher.WithDebounce(cfg.Watch.Debounce),
			watcher.WithLogger(logger),
		)
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	srv.Engine().Matcher.Release()
}

// reloadEngine refreshes whichever source changed and swaps a new engine in.
func reloadEngine(ctx context.Context, cfg *config.Config, c *Components, srv *server.Server, logger *zap.Logger, path string) {
	var err error
	if samePath(path, cfg.Vocabulary.AbbreviationFile) {
		err = c.ReloadAbbreviations()
	} else {
		_, _, err = c.LoadVocabulary(ctx, path, true)
	}
	if err != nil {
		logger.Warn("reload failed, keeping current engine", zap.String("path", path), zap.Error(err))
		return
	}
	engine, err := c.NewEngine()
	if err != nil {
		logger.Warn("engine rebuild failed", zap.Error(err))
		return
	}
	old := srv.SetEngine(engine)
	logger.Info("engine swapped", zap.String("path", path))
	if old != nil {
		time.AfterFunc(engineGrace, old.Matcher.Release)
	}
}

// samePath reports whether a and b name the same file once made absolute.
func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' && a != "-" {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args so multi-word phrases work with or without quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// readPhrases returns the non-blank lines of r.
func readPhrases(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func runMatch() {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = match directly against local storage)")
	topK := fs.Int("top-k", 0, "retrieval depth (0 = config default)")
	topN := fs.Int("top-n", 0, "candidates calibrated into the prediction set (0 = config default)")
	risk := fs.Float64("risk", 0, "risk level in (0,1) (0 = config default)")
	batchFile := fs.String("file", "", "match every line of this file as a separate phrase (- for stdin)")
	outputFormat := fs.String("output", "", "output format: text, compact or json (default text on a terminal, compact otherwise)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := resolveFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}

	if *batchFile != "" {
		in, err := openInput(*batchFile)
		if err != nil {
			fatalf("Failed to open phrases: %v", err)
		}
		phrases, err := readPhrases(in)
		_ = in.Close()
		if err != nil {
			fatalf("Failed to read phrases: %v", err)
		}
		query := &models.BatchMatchQuery{Phrases: phrases, TopK: *topK, RiskLevel: *risk}
		var resp models.BatchMatchResponse
		if *serverURL != "" {
			err = postJSON(*serverURL+"/api/v1/match/batch", query, &resp)
		} else {
			err = withEngine(*configPath, func(ctx context.Context, m *pipeline.Matcher) error {
				start := time.Now()
				resp.Items = m.MatchBatch(ctx, query)
				resp.Failed = pipeline.FailedCount(resp.Items)
				resp.QueryTime = time.Since(start).Milliseconds()
				return nil
			})
		}
		if err != nil {
			fatalf("Match failed: %v", err)
		}
		if err := cli.WriteBatch(os.Stdout, &resp, format); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}

	phrase := joinArgs(fs.Args())
	if phrase == "" {
		fmt.Fprintln(os.Stderr, "Usage: codematch match [flags] <phrase>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	query := &models.MatchQuery{Phrase: phrase, TopK: *topK, TopN: *topN, RiskLevel: *risk}
	var resp models.MatchResponse
	if *serverURL != "" {
		err = postJSON(*serverURL+"/api/v1/match", query, &resp)
	} else {
		err = withEngine(*configPath, func(ctx context.Context, m *pipeline.Matcher) error {
			start := time.Now()
			result, err := m.Match(ctx, query)
			if err != nil {
				return err
			}
			resp.Result = result
			resp.QueryTime = time.Since(start).Milliseconds()
			return nil
		})
	}
	if err != nil {
		fatalf("Match failed: %v", err)
	}
	if err := cli.WriteMatch(os.Stdout, &resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func resolveFormat(s string) (cli.OutputFormat, error) {
	if s == "" {
		return cli.DefaultFormat(os.Stdout), nil
	}
	return cli.ParseOutputFormat(s)
}

func runSegment() {
	fs := flag.NewFlagSet("segment", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = match directly against local storage)")
	topK := fs.Int("top-k", 0, "candidates counted per phrase (0 = config default)")
	outputFormat := fs.String("output", "", "output format: text, compact or json (default text on a terminal, compact otherwise)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := resolveFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: codematch segment [flags] <report-file | ->")
		fs.PrintDefaults()
		os.Exit(1)
	}
	text, err := readReport(fs.Arg(0))
	if err != nil {
		fatalf("Failed to read report: %v", err)
	}

	query := &models.SegmentQuery{Text: text, TopK: *topK}
	var resp *models.SegmentResponse
	if *serverURL != "" {
		resp = &models.SegmentResponse{}
		err = postJSON(*serverURL+"/api/v1/segment", query, resp)
	} else {
		err = withEngine(*configPath, func(ctx context.Context, m *pipeline.Matcher) error {
			start := time.Now()
			r, err := m.MatchNarrative(ctx, query)
			if err != nil {
				return err
			}
			r.QueryTime = time.Since(start).Milliseconds()
			resp = r
			return nil
		})
	}
	if err != nil {
		fatalf("Segment failed: %v", err)
	}
	if err := cli.WriteSegment(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// readReport returns the text of a report file, or of stdin for "-".
func readReport(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	return extract.NewExtractor().Extract(path)
}

// withEngine runs fn against a locally assembled matcher.
func withEngine(configPath string, fn func(ctx context.Context, m *pipeline.Matcher) error) error {
	_, logger, components := setup(configPath, false)
	defer logger.Sync()
	defer components.Close()
	engine, err := components.NewEngine()
	if err != nil {
		return err
	}
	defer engine.Matcher.Release()
	return fn(context.Background(), engine.Matcher)
}

func runLoad() {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	prune := fs.Bool("prune", false, "remove stored codes that the file no longer lists")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	path := cfg.Vocabulary.Source
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		fatalf("Usage: codematch load [flags] <vocabulary.csv|.xlsx> (or set vocabulary.source)")
	}
	rec, stats, err := components.LoadVocabulary(context.Background(), path, *prune)
	if err != nil {
		fatalf("Load failed: %v", err)
	}
	fmt.Printf("Loaded %d codes from %s in %s (%d embedded, %d removed)\n",
		rec.Count, rec.Source, stats.Elapsed.Round(time.Millisecond), stats.Embedded, stats.Removed)
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Codes           int64              `json:"codes"`
	VectorIndexSize int                `json:"vector_index_size"`
	VectorIndexType string             `json:"vector_index_type"`
	LexicalBackend  string             `json:"lexical_backend"`
	LexicalDocs     uint64             `json:"lexical_docs,omitempty"`
	DiskUsageBytes  *int64             `json:"disk_usage_bytes,omitempty"`
	DiskUsage       *storage.Usage     `json:"disk_usage,omitempty"`
	LastLoad        *models.LoadRecord `json:"last_load,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		cfg, logger, c := setup(*configPath, false)
		defer logger.Sync()
		defer c.Close()
		s, err := localStatus(context.Background(), cfg, c)
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		status = *s
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fatalf("Output failed: %v", err)
		}
	case "text":
		writeStatusText(os.Stdout, &status)
	default:
		fatalf("Unknown output format %q; use text or json", *outputFormat)
	}
}

func localStatus(ctx context.Context, cfg *config.Config, c *Components) (*statusResponse, error) {
	count, err := c.Storage.CountEntries(ctx)
	if err != nil {
		return nil, err
	}
	s := &statusResponse{
		Codes:           count,
		VectorIndexSize: c.VectorIndex.Size(),
		VectorIndexType: c.VectorIndex.Type(),
		LexicalBackend:  c.Lexical.Backend(),
	}
	if n, err := c.Lexical.DocCount(); err == nil {
		s.LexicalDocs = n
	}
	if rec, err := c.Storage.LastLoad(ctx); err == nil {
		s.LastLoad = rec
	}
	if usage, err := storage.MeasureUsage(&cfg.Storage); err == nil {
		total := usage.Total()
		s.DiskUsageBytes = &total
		s.DiskUsage = usage
	}
	return s, nil
}

func writeStatusText(w io.Writer, s *statusResponse) {
	fmt.Fprintf(w, "codes:              %d   # vocabulary entries in storage\n", s.Codes)
	fmt.Fprintf(w, "vector_index_size:  %d   # embedded descriptions\n", s.VectorIndexSize)
	fmt.Fprintf(w, "vector_index_type:  %s\n", s.VectorIndexType)
	fmt.Fprintf(w, "lexical_backend:    %s\n", s.LexicalBackend)
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # storage + indices on disk\n", *s.DiskUsageBytes)
	}
	if u := s.DiskUsage; u != nil {
		fmt.Fprintf(w, "  database:         %d\n", u.Database)
		fmt.Fprintf(w, "  lexical:          %d\n", u.Lexical)
		fmt.Fprintf(w, "  vectors:          %d\n", u.Vectors)
	}
	if s.LastLoad != nil {
		fmt.Fprintf(w, "last_load:          %s (%d codes, %s)\n", s.LastLoad.Source, s.LastLoad.Count, s.LastLoad.LoadedAt.Format(time.RFC3339))
	}
}

func postJSON(url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Println(`codematch - Match clinical phrases to controlled vocabulary codes

Usage:
  codematch server [flags]             Start the HTTP server
  codematch match [flags] <phrase>     Match one phrase (or --file for one phrase per line)
  codematch segment [flags] <report>   Split a report into phrases and aggregate codes
  codematch load [flags] [file]        Import a vocabulary CSV/XLSX and build the indexes
  codematch status [flags]             Show storage and index status
  codematch version                    Show version
  codematch help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/codematch/config.yaml)
  --server string    Server URL for match/segment/status (default: http://localhost:8080).
                     Use --server "" to work directly on local storage.
  --output string    text, compact or json (status: text or json)

Match Flags:
  --top-k int        Retrieval depth
  --top-n int        Candidates calibrated into the prediction set
  --risk float       Risk level in (0,1)
  --file string      Batch mode: one phrase per line, - for stdin

Load Flags:
  --prune            Remove stored codes that the file no longer lists

Examples:
  codematch load codes.csv
  codematch match "akutní infarkt myokardu"
  codematch match --risk 0.1 --output json AMI
  codematch match --file phrases.txt --output compact
  codematch segment discharge.docx
  codematch status --server ""`)
}
