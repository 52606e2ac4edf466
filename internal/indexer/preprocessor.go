package indexer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Preprocess canonicalizes a code description before it is stored and
// indexed. Text is NFC-composed, control characters are dropped, and any run
// of whitespace (including non-breaking spaces from spreadsheet exports)
// becomes one space.
func Preprocess(text string) string {
	fields := strings.FieldsFunc(norm.NFC.String(text), unicode.IsSpace)
	out := fields[:0]
	for _, f := range fields {
		f = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, f)
		if f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}
