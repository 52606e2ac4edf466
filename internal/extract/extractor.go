// Package extract pulls narrative text out of clinical report files.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for extensions with no extractor.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Extensions lists the report formats Extract understands.
var Extensions = []string{".txt", ".md", ".pdf", ".docx", ".odt", ".rtf"}

// Extractor extracts plain text from report files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot, any case) can be extracted.
func Supported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the given extension and
// normalizes it for segmentation. ext should include the leading dot (e.g.
// ".pdf"); an empty ext is read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	var extract func([]byte) (string, error)
	switch strings.ToLower(ext) {
	case ".pdf":
		extract = extractPDF
	case ".docx":
		extract = extractDOCX
	case ".odt", ".rtf":
		extract = extractCat
	case ".txt", ".md", "":
		extract = extractPlain
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	text, err := extract(content)
	if err != nil {
		return "", err
	}
	return normalizeReport(text), nil
}
