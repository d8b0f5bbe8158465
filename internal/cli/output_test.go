package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/documaster/internal/models"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{" json ", OutputJSON, false},
		{"compact", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteAnswer_text(t *testing.T) {
	res := &models.QAResult{
		Answer:  "Yes, it is venomous.",
		Sources: []string{"The king cobra\nis a venomous snake.", "Cobras spread their hood."},
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, res, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Yes, it is venomous.", "Sources (2):", "[1] The king cobra is a venomous snake.", "[2] Cobras"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteAnswer_textNoSources(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, &models.QAResult{Answer: "I don't know.", Sources: []string{}}, OutputText); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "I don't know.\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	res := &models.QAResult{Answer: "I don't know.", Sources: []string{}}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, res, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"sources": []`) {
		t.Errorf("empty sources should encode as an array:\n%s", buf.String())
	}
	var decoded models.QAResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Answer != res.Answer {
		t.Errorf("answer = %q", decoded.Answer)
	}
}

func TestWriteChunks(t *testing.T) {
	chunks := []models.DocumentChunk{
		{ID: "doc_p0_c0", DocumentID: "doc", Page: 0, Text: "first"},
		{ID: "doc_p1_c0", DocumentID: "doc", Page: 1, Text: "second", Extra: map[string]string{"sheet": "Budget"}},
	}
	var buf bytes.Buffer
	if err := WriteChunks(&buf, "doc", chunks, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"2 chunk(s) for doc", "ID: doc_p1_c0 | Page: 1", "Sheet: Budget", "second"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteChunks(&buf, "empty", nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"chunks": []`) {
		t.Errorf("nil chunks should encode as an array:\n%s", buf.String())
	}
}

func TestWriteDocuments(t *testing.T) {
	docs := []*models.Document{{ID: "abc", Collection: "default", Title: "Snakes of the world", Pages: 2, Chunks: 5}}
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, docs, OutputText); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "abc") || !strings.Contains(out, "5 chunk(s)") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestWriteEvalReport(t *testing.T) {
	report := &models.EvalReport{
		Outcomes: []models.EvalOutcome{
			{
				Case:       models.EvalCase{Question: "Is the cobra venomous?", Reference: "Yes."},
				Result:     models.QAResult{Answer: "Yes, it is."},
				Evaluation: &models.Evaluation{Verdict: models.VerdictCorrect, Correct: true},
			},
			{Case: models.EvalCase{Question: "Who?"}, Error: "inference failed"},
		},
		Correct: 1,
		Total:   2,
	}
	var buf bytes.Buffer
	if err := WriteEvalReport(&buf, report, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"CORRECT", "ERROR", "inference failed", "1/2 correct (50.0%)"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteEvalReport(&buf, report, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Accuracy float64 `json:"accuracy"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Accuracy != 0.5 {
		t.Errorf("accuracy = %v", decoded.Accuracy)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"empty", "", 5, ""},
		{"short", "hi", 5, "hi"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 5, "hello..."},
		{"multibyte", "日本語のテキスト", 3, "日本語..."},
		{"maxLen zero", "ab", 0, "ab"},
		{"maxLen negative", "ab", -1, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.s, tt.maxLen); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		maxWords int
		want     string
	}{
		{"empty", "", 3, ""},
		{"few words", "one two", 3, "one two"},
		{"exact", "one two three", 3, "one two three"},
		{"more", "one two three four", 3, "one two three..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateWords(tt.s, tt.maxWords); got != tt.want {
				t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
			}
		})
	}
}
