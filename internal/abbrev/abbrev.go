// Package abbrev expands clinical abbreviations in query phrases.
package abbrev

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type entry struct {
	alias        string // lowercased
	canonical    string // first casing seen in the file
	descriptions []string
}

// Expander replaces known abbreviations with their descriptions. It is
// immutable and safe for concurrent use.
type Expander struct {
	// sorted by alias length in runes, longest first; ties keep file order
	entries []*entry
}

// LoadFile reads an abbreviation CSV from path.
func LoadFile(path string) (*Expander, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open abbreviations: %w", err)
	}
	defer f.Close()
	return LoadAbbreviations(f)
}

// LoadAbbreviations reads a CSV with Abbreviation and Description columns.
// An Abbreviation cell may hold several comma-separated aliases. An alias
// listed on several rows collects every description in file order.
func LoadAbbreviations(r io.Reader) (*Expander, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read abbreviations: %w", err)
	}
	if len(rows) == 0 {
		return &Expander{}, nil
	}
	abbrCol, descCol := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimPrefix(strings.TrimSpace(h), "\ufeff") {
		case "Abbreviation":
			abbrCol = i
		case "Description":
			descCol = i
		}
	}
	if abbrCol < 0 || descCol < 0 {
		return nil, fmt.Errorf("abbreviation file needs Abbreviation and Description columns")
	}

	byAlias := make(map[string]*entry)
	var ordered []*entry
	for _, row := range rows[1:] {
		if abbrCol >= len(row) || descCol >= len(row) {
			continue
		}
		raw, desc := row[abbrCol], strings.TrimSpace(row[descCol])
		if raw == "" || desc == "" {
			continue
		}
		for _, alias := range strings.Split(raw, ",") {
			alias = strings.TrimSpace(alias)
			if alias == "" {
				continue
			}
			key := strings.ToLower(alias)
			e, ok := byAlias[key]
			if !ok {
				e = &entry{alias: key, canonical: alias}
				byAlias[key] = e
				ordered = append(ordered, e)
			}
			e.descriptions = append(e.descriptions, desc)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return utf8.RuneCountInString(ordered[i].alias) > utf8.RuneCountInString(ordered[j].alias)
	})
	return &Expander{entries: ordered}, nil
}

// Len returns the number of distinct aliases.
func (x *Expander) Len() int {
	if x == nil {
		return 0
	}
	return len(x.entries)
}

// Expand replaces each whole-token, case-insensitive occurrence of a known
// alias with its descriptions joined by " / ". At any position the longest
// alias wins. used maps each expanded abbreviation, in its canonical casing,
// to the inserted text.
func (x *Expander) Expand(text string) (expanded string, used map[string]string) {
	used = make(map[string]string)
	if x.Len() == 0 || text == "" {
		return text, used
	}
	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(text) {
		if e, n := x.matchAt(text, i); e != nil {
			repl := strings.Join(e.descriptions, " / ")
			used[e.canonical] = repl
			b.WriteString(repl)
			i += n
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		b.WriteString(text[i : i+size])
		i += size
	}
	return b.String(), used
}

// matchAt returns the longest alias matching text at byte offset i with word
// boundaries on both sides, and the matched length in bytes.
func (x *Expander) matchAt(text string, i int) (*entry, int) {
	if i > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:i])
		if isWord(prev) {
			return nil, 0
		}
	}
	rest := text[i:]
	for _, e := range x.entries {
		n := prefixFold(rest, e.alias)
		if n == 0 {
			continue
		}
		if n < len(rest) {
			next, _ := utf8.DecodeRuneInString(rest[n:])
			if isWord(next) {
				continue
			}
		}
		return e, n
	}
	return nil, 0
}

// prefixFold reports the byte length of the prefix of s that case-folds to
// the lowercase alias, or 0.
func prefixFold(s, alias string) int {
	n := 0
	for _, ar := range alias {
		if n >= len(s) {
			return 0
		}
		sr, size := utf8.DecodeRuneInString(s[n:])
		if unicode.ToLower(sr) != ar {
			return 0
		}
		n += size
	}
	return n
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
