package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// hyphenBreak matches a word split across lines: "infark-\ntu".
	hyphenBreak = regexp.MustCompile(`(\p{L})-[ \t]*\n[ \t]*(\p{Ll})`)
	blankRun    = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	paraRun     = regexp.MustCompile(`\n{3,}`)
)

// extractPlain decodes a text report. Invalid UTF-8 is replaced with U+FFFD
// and a leading byte order mark is dropped.
func extractPlain(content []byte) (string, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\ufffd")
	}
	return strings.TrimPrefix(text, "\ufeff"), nil
}

// normalizeReport prepares extracted text for phrase segmentation. Line
// endings become "\n", words hyphenated across a line break are rejoined,
// runs of blanks collapse to one space, and more than one empty line
// collapses to one. Segment delimiters (".", ",", ";", "\n") are kept.
func normalizeReport(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(blankRun.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(paraRun.ReplaceAllString(text, "\n\n"))
}
