package models

import (
	"fmt"
	"strings"
)

// QARequest is a question, optionally scoped to a set of documents.
type QARequest struct {
	Question    string   `json:"question"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	Collection  string   `json:"collection,omitempty"`
}

// Validate trims the question and rejects an empty one. Blank document ids are dropped.
func (r *QARequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	ids := r.DocumentIDs[:0]
	for _, id := range r.DocumentIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	r.DocumentIDs = ids
	return nil
}

// QAResult is the answer and the chunk texts it was grounded on.
// Sources is empty exactly when Answer is the no-evidence sentinel.
type QAResult struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Verdict values produced by answer evaluation.
const (
	VerdictCorrect   = "CORRECT"
	VerdictIncorrect = "INCORRECT"
	VerdictUnknown   = "UNKNOWN"
)

// Evaluation is a model judgement of an answer against a reference answer.
type Evaluation struct {
	Verdict   string `json:"verdict"`
	Correct   bool   `json:"correct"`
	Reasoning string `json:"reasoning"`
}

// EvalCase is one question with its reference answer.
type EvalCase struct {
	Question    string   `json:"question" yaml:"question"`
	Reference   string   `json:"reference" yaml:"reference"`
	DocumentIDs []string `json:"document_ids,omitempty" yaml:"document_ids,omitempty"`
}

// EvalOutcome is the result of running one EvalCase.
type EvalOutcome struct {
	Case       EvalCase    `json:"case"`
	Result     QAResult    `json:"result"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// EvalReport summarizes an evaluation run.
type EvalReport struct {
	Outcomes []EvalOutcome `json:"outcomes"`
	Correct  int           `json:"correct"`
	Total    int           `json:"total"`
}

// Accuracy is Correct/Total, or 0 for an empty report.
func (r *EvalReport) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total)
}
