package indexer

import (
	"context"
	"fmt"

	"github.com/hyperjump/codematch/internal/keyword"
	"github.com/hyperjump/codematch/internal/models"
)

// OpenLexical returns the lexical index for backend over entries. BM25 is
// built in memory from entries; bleve is opened at path and filled when its
// document count differs from len(entries).
func OpenLexical(ctx context.Context, backend, path string, entries []*models.CodeEntry) (keyword.LexicalIndex, error) {
	switch backend {
	case keyword.BackendBM25, "":
		idx, err := keyword.NewBM25Index(entries, keyword.DefaultBM25Params())
		if err != nil {
			return nil, err
		}
		return idx, nil
	case keyword.BackendBleve:
		idx, err := keyword.NewBleveIndex(path)
		if err != nil {
			return nil, err
		}
		n, err := idx.DocCount()
		if err != nil {
			_ = idx.Close()
			return nil, err
		}
		if n != uint64(len(entries)) {
			if err := idx.IndexEntries(ctx, entries); err != nil {
				_ = idx.Close()
				return nil, err
			}
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported lexical backend: %s", backend)
	}
}
