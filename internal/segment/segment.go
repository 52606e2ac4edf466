// Package segment splits clinical narratives into short query phrases.
package segment

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// PhraseExtractor turns a narrative into phrases worth matching on their own.
type PhraseExtractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// DefaultMinLength is the rune count a phrase must exceed to be kept.
const DefaultMinLength = 3

var separators = regexp.MustCompile(`[.,;\n]+`)

// RuleExtractor splits on runs of '.', ',', ';' and newlines.
type RuleExtractor struct {
	// MinLength drops trimmed segments of MinLength runes or fewer.
	MinLength int
}

// NewRuleExtractor returns a RuleExtractor with DefaultMinLength.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{MinLength: DefaultMinLength}
}

// Extract returns the trimmed segments of text in order.
func (e *RuleExtractor) Extract(_ context.Context, text string) ([]string, error) {
	return e.Split(text), nil
}

// Split is Extract without a context.
func (e *RuleExtractor) Split(text string) []string {
	phrases := make([]string, 0)
	for _, seg := range separators.Split(text, -1) {
		seg = strings.TrimSpace(seg)
		if utf8.RuneCountInString(seg) > e.MinLength {
			phrases = append(phrases, seg)
		}
	}
	return phrases
}
