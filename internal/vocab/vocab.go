// Package vocab reads the code vocabulary from CSV and XLSX exports.
package vocab

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/codematch/internal/models"
)

// UnknownChapter is the chapter of codes that do not start with a letter.
const UnknownChapter = "UNKNOWN"

// Columns names the header cells holding each field. Category is optional.
// Sheet selects the XLSX worksheet; empty means the first.
type Columns struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Sheet       string `yaml:"sheet,omitempty"`
}

// DefaultColumns returns the column names of the national classification export.
func DefaultColumns() Columns {
	return Columns{Code: "Kod", Description: "Nazev", Category: "Kategorie"}
}

func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.Code == "" {
		c.Code = d.Code
	}
	if c.Description == "" {
		c.Description = d.Description
	}
	if c.Category == "" {
		c.Category = d.Category
	}
	return c
}

// Chapter returns the leading run of letters of code, uppercased
// ("I21.9" -> "I"), or UnknownChapter.
func Chapter(code string) string {
	end := 0
	for i, r := range code {
		if !unicode.IsLetter(r) {
			break
		}
		end = i + len(string(r))
	}
	if end == 0 {
		return UnknownChapter
	}
	return strings.ToUpper(code[:end])
}

// LoadFile reads path as CSV or XLSX depending on its extension.
func LoadFile(path string, cols Columns) ([]*models.CodeEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv", ".txt":
		return LoadCSV(f, cols)
	case ".xlsx", ".xlsm":
		return LoadXLSX(f, cols.Sheet, cols)
	default:
		return nil, fmt.Errorf("unsupported vocabulary format: %s", ext)
	}
}

// LoadCSV reads a delimited vocabulary. The delimiter is taken from the header
// line: tab or semicolon when present there, otherwise comma.
func LoadCSV(r io.Reader, cols Columns) ([]*models.CodeEntry, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(head)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return entriesFromRows(rows, cols)
}

func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	switch {
	case bytes.IndexByte(head, '\t') >= 0:
		return '\t'
	case bytes.IndexByte(head, ';') >= 0 && bytes.IndexByte(head, ',') < 0:
		return ';'
	default:
		return ','
	}
}

// LoadXLSX reads the named sheet, or the first sheet when sheet is empty.
func LoadXLSX(r io.Reader, sheet string, cols Columns) ([]*models.CodeEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	return entriesFromRows(rows, cols)
}

// entriesFromRows maps rows under a header row to entries. Rows missing a code
// or description are skipped; a repeated code keeps its first row.
func entriesFromRows(rows [][]string, cols Columns) ([]*models.CodeEntry, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	cols = cols.withDefaults()
	header := make(map[string]int, len(rows[0]))
	for i, cell := range rows[0] {
		key := strings.ToLower(cleanCell(cell))
		if _, dup := header[key]; !dup {
			header[key] = i
		}
	}
	codeCol, ok := header[strings.ToLower(cols.Code)]
	if !ok {
		return nil, fmt.Errorf("missing code column %q", cols.Code)
	}
	descCol, ok := header[strings.ToLower(cols.Description)]
	if !ok {
		return nil, fmt.Errorf("missing description column %q", cols.Description)
	}
	catCol, hasCat := header[strings.ToLower(cols.Category)]

	entries := make([]*models.CodeEntry, 0, len(rows)-1)
	seen := make(map[string]struct{}, len(rows)-1)
	for _, row := range rows[1:] {
		code := cell(row, codeCol)
		desc := cell(row, descCol)
		if code == "" || desc == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		e := &models.CodeEntry{Code: code, Description: desc, Chapter: Chapter(code)}
		if hasCat {
			e.Category = cell(row, catCol)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return cleanCell(row[i])
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}
