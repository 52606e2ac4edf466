package keyword

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)

// Tokenize lowercases text and returns its maximal runs of letters and digits.
// Text is NFC-normalized first so precomposed and decomposed accents tokenize alike.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return tokenPattern.FindAllString(strings.ToLower(norm.NFC.String(text)), -1)
}
