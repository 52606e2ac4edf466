package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/codematch/internal/models"
	"golang.org/x/text/unicode/norm"
)

const (
	descriptionAnalyzer = "code_description"
	descriptionField    = "description"
)

// BleveIndex implements LexicalIndex on a persistent Bleve index.
// Bleve keeps its own tf-idf scoring; use BM25Index where exact Okapi scores matter.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping in code, remove the index directory to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	im, err := newEntryMapping()
	if err != nil {
		return nil, err
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// newEntryMapping analyzes descriptions with a unicode word tokenizer plus lowercasing,
// close to Tokenize, and keeps code and chapter as exact keywords.
func newEntryMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(descriptionAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = descriptionAnalyzer
	docMapping.AddFieldMappingsAt(descriptionField, textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("code", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("chapter", keywordFieldMapping)
	im.AddDocumentMapping("code_entry", docMapping)
	im.DefaultType = "code_entry"
	im.DefaultMapping = docMapping
	return im, nil
}

// IndexEntries upserts entries in one batch, keyed by code.
func (b *BleveIndex) IndexEntries(ctx context.Context, entries []*models.CodeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, e := range entries {
		doc := map[string]interface{}{
			"code":           e.Code,
			descriptionField: norm.NFC.String(e.Description),
			"chapter":        e.Chapter,
		}
		if err := batch.Index(e.Code, doc); err != nil {
			return fmt.Errorf("failed to index code %s: %w", e.Code, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// DeleteEntries removes codes from the index.
func (b *BleveIndex) DeleteEntries(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, c := range codes {
		batch.Delete(c)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete codes: %w", err)
	}
	return nil
}

// Search runs a disjunction of term queries, one per token, over descriptions.
// Ties in score are broken by code so results are deterministic.
func (b *BleveIndex) Search(ctx context.Context, tokens []string, limit int) ([]*KeywordResult, error) {
	if len(tokens) == 0 || limit <= 0 {
		return []*KeywordResult{}, nil
	}
	queries := make([]blevequery.Query, 0, len(tokens))
	for _, tok := range tokens {
		tq := bleve.NewTermQuery(tok)
		tq.SetField(descriptionField)
		queries = append(queries, tq)
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = limit
	req.SortBy([]string{"-_score", "_id"})
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{Code: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of entries in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Backend returns BackendBleve.
func (b *BleveIndex) Backend() string { return BackendBleve }
