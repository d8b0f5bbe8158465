// Package cli provides output formatting for the documaster command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/documaster/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a QA result in the given format.
func WriteAnswer(w io.Writer, res *models.QAResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	fmt.Fprintf(w, "%s\n", res.Answer)
	if len(res.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nSources (%d):\n", len(res.Sources))
	for i, src := range res.Sources {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, Truncate(oneLine(src), 160))
	}
	return nil
}

// WriteChunks writes the chunks of one document in the given format.
func WriteChunks(w io.Writer, documentID string, chunks []models.DocumentChunk, format OutputFormat) error {
	if format == OutputJSON {
		if chunks == nil {
			chunks = []models.DocumentChunk{}
		}
		return WriteJSON(w, map[string]any{"document_id": documentID, "chunks": chunks})
	}
	fmt.Fprintf(w, "%d chunk(s) for %s\n", len(chunks), documentID)
	for _, c := range chunks {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "ID: %s | Page: %d\n", c.ID, c.Page)
		if sheet := c.Extra["sheet"]; sheet != "" {
			fmt.Fprintf(w, "Sheet: %s\n", sheet)
		}
		fmt.Fprintf(w, "\n%s\n\n", Truncate(c.Text, 400))
	}
	return nil
}

// WriteDocuments writes catalog records in the given format.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.Document{}
		}
		return WriteJSON(w, map[string]any{"documents": docs})
	}
	for _, d := range docs {
		title := d.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "%s  %-12s  %3d page(s)  %4d chunk(s)  %s\n", d.ID, d.Collection, d.Pages, d.Chunks, TruncateWords(title, 8))
	}
	return nil
}

// WriteEvalReport writes an evaluation run in the given format.
func WriteEvalReport(w io.Writer, report *models.EvalReport, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, map[string]any{
			"outcomes": report.Outcomes,
			"correct":  report.Correct,
			"total":    report.Total,
			"accuracy": report.Accuracy(),
		})
	}
	for i, o := range report.Outcomes {
		verdict := models.VerdictUnknown
		if o.Evaluation != nil {
			verdict = o.Evaluation.Verdict
		}
		if o.Error != "" {
			verdict = "ERROR"
		}
		fmt.Fprintf(w, "%3d. %-9s %s\n", i+1, verdict, Truncate(oneLine(o.Case.Question), 80))
		if o.Error != "" {
			fmt.Fprintf(w, "     error: %s\n", o.Error)
			continue
		}
		fmt.Fprintf(w, "     answer:    %s\n", Truncate(oneLine(o.Result.Answer), 120))
		fmt.Fprintf(w, "     reference: %s\n", Truncate(oneLine(o.Case.Reference), 120))
	}
	fmt.Fprintf(w, "\n%d/%d correct (%.1f%%)\n", report.Correct, report.Total, report.Accuracy()*100)
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
