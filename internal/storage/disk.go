package storage

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/codematch/internal/config"
)

// Usage is the on-disk footprint of each store, in bytes.
type Usage struct {
	Database int64 `json:"database"`
	Lexical  int64 `json:"lexical"`
	Vectors  int64 `json:"vectors"`
}

// Total sums all stores.
func (u *Usage) Total() int64 {
	return u.Database + u.Lexical + u.Vectors
}

// MeasureUsage sizes the stores named in cfg. The database includes its WAL
// and shared-memory files, the bleve index is summed over its directory, and
// the vector index includes the .meta sidecar written by the HNSW store.
// Stores that do not exist yet count as zero.
func MeasureUsage(cfg *config.StorageConfig) (*Usage, error) {
	var u Usage
	var err error
	if u.Database, err = sumFiles(withSuffixes(cfg.DatabasePath, "", "-wal", "-shm")...); err != nil {
		return nil, err
	}
	if u.Lexical, err = sumFiles(cfg.BleveIndexPath); err != nil {
		return nil, err
	}
	if u.Vectors, err = sumFiles(withSuffixes(cfg.VectorIndexPath, "", ".meta")...); err != nil {
		return nil, err
	}
	return &u, nil
}

func withSuffixes(path string, suffixes ...string) []string {
	if path == "" {
		return nil
	}
	out := make([]string, len(suffixes))
	for i, s := range suffixes {
		out[i] = path + s
	}
	return out
}

func sumFiles(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		// Files removed mid-walk (bleve segment merges) are skipped.
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
