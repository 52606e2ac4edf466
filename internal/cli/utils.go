// Package cli renders match results for the codematch command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/hyperjump/codematch/internal/models"
	"github.com/hyperjump/codematch/pkg/utils"
)

// OutputFormat is the format for result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact prints one "code<TAB>description" line per set member.
	OutputCompact OutputFormat = "compact"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputJSON, OutputCompact:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or compact)", s)
	}
}

// DefaultFormat is text on a terminal and compact when output is piped.
func DefaultFormat(w io.Writer) OutputFormat {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return OutputText
	}
	return OutputCompact
}

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteMatch writes a single-phrase match response to w in the given format.
func WriteMatch(w io.Writer, response *models.MatchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		writeMembersCompact(w, response.Result)
		return nil
	default:
		fmt.Fprintf(w, "\nMatched in %dms\n", response.QueryTime)
		writeResultText(w, response.Result)
		return nil
	}
}

// WriteBatch writes a batch response to w in the given format.
func WriteBatch(w io.Writer, response *models.BatchMatchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, item := range response.Items {
			if item.Error != "" {
				fmt.Fprintf(w, "# %s: error: %s\n", item.Phrase, item.Error)
				continue
			}
			fmt.Fprintf(w, "# %s\n", item.Phrase)
			writeMembersCompact(w, item.Result)
		}
		return nil
	default:
		fmt.Fprintf(w, "\nMatched %d phrases in %dms (%d failed)\n", len(response.Items), response.QueryTime, response.Failed)
		for _, item := range response.Items {
			writeItemText(w, item)
		}
		return nil
	}
}

// WriteSegment writes a narrative segmentation response to w in the given format.
func WriteSegment(w io.Writer, response *models.SegmentResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, c := range response.Codes {
			fmt.Fprintf(w, "%s\t%d\t%s\n", c.Code, c.Count, c.Description)
		}
		return nil
	default:
		fmt.Fprintf(w, "\n%d phrases, %d codes in %dms\n\n", len(response.Phrases), len(response.Codes), response.QueryTime)
		for i, c := range response.Codes {
			fmt.Fprintf(w, "%2d. %-8s x%d  best %.4f  %s\n", i+1, c.Code, c.Count, c.BestScore, utils.Truncate(c.Description, 60))
			for _, reason := range c.Reasons {
				fmt.Fprintf(w, "      <- %s\n", utils.Truncate(reason, 70))
			}
		}
		for _, item := range response.Items {
			if item.Error != "" {
				fmt.Fprintf(w, "! %s: %s\n", item.Phrase, item.Error)
			}
		}
		return nil
	}
}

func writeItemText(w io.Writer, item *models.BatchItem) {
	if item.Error != "" {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Phrase: %s\nError: %s\n", item.Phrase, item.Error)
		return
	}
	writeResultText(w, item.Result)
}

func writeResultText(w io.Writer, result *models.MatchResult) {
	if result == nil {
		return
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Phrase: %s\n", result.Phrase)
	if result.Expanded != "" {
		fmt.Fprintf(w, "Expanded: %s\n", result.Expanded)
	}
	if result.Set != nil {
		fmt.Fprintf(w, "Prediction set (risk %.2f): %d of %d candidates\n", result.Set.RiskLevel, len(result.Members), len(result.Candidates))
	}
	for _, m := range result.Members {
		fmt.Fprintf(w, "  %-8s p=%.4f score=%.4f  %s\n", m.Code, m.Probability, m.Score, utils.Truncate(m.Description, 80))
	}
	fmt.Fprintln(w)
}

func writeMembersCompact(w io.Writer, result *models.MatchResult) {
	if result == nil {
		return
	}
	for _, m := range result.Members {
		fmt.Fprintf(w, "%s\t%s\n", m.Code, m.Description)
	}
}
