// Package prompt holds versioned prompt templates with required input keys.
package prompt

import (
	"fmt"
	"slices"
	"strings"
)

// Input keys used by the built-in templates.
const (
	KeyContext   = "context"
	KeyQuestion  = "question"
	KeyAnswer    = "answer"
	KeyReference = "reference"
)

// OutputMarker precedes the model's answer in the built-in templates.
const OutputMarker = "Output:"

// QA asks for an answer to a question given retrieved context.
var QA = New("qa", "1", `Instruct: Given the context below:
{context}

Give a precise answer to the following question

Question: {question}

Output:
`, []string{KeyContext, KeyQuestion}, OutputMarker)

// Evaluation asks the model to grade an answer against a reference answer.
var Evaluation = New("evaluation", "1", `Instruct: Evaluate the correctness of the answer of a given question compared to the reference answer.

Question: {question}

Answer: {answer}

Reference Answer: {reference}

Write out the reasoning of the evaluation and finally answer "CORRECT" or "INCORRECT".

Output:
`, []string{KeyQuestion, KeyAnswer, KeyReference}, OutputMarker)

// MissingInputKeysError lists the required keys absent from a Render call.
type MissingInputKeysError struct {
	Template string
	Keys     []string
}

func (e *MissingInputKeysError) Error() string {
	return fmt.Sprintf("prompt %s: missing required input keys: %s", e.Template, strings.Join(e.Keys, ", "))
}

// Template is an immutable prompt. Placeholders are written {key}.
type Template struct {
	name         string
	version      string
	text         string
	inputKeys    []string
	outputMarker string
}

// New returns a template. Only the listed input keys are substituted.
func New(name, version, text string, inputKeys []string, outputMarker string) Template {
	return Template{
		name:         name,
		version:      version,
		text:         text,
		inputKeys:    slices.Clone(inputKeys),
		outputMarker: outputMarker,
	}
}

func (t Template) Name() string         { return t.name }
func (t Template) Version() string      { return t.version }
func (t Template) Text() string         { return t.text }
func (t Template) OutputMarker() string { return t.outputMarker }

// InputKeys returns a copy of the required keys.
func (t Template) InputKeys() []string {
	return slices.Clone(t.inputKeys)
}

// Render substitutes inputs into the template in a single pass, so values that
// contain placeholders are inserted literally. Extra inputs are ignored.
func (t Template) Render(inputs map[string]string) (string, error) {
	var missing []string
	pairs := make([]string, 0, 2*len(t.inputKeys))
	for _, k := range t.inputKeys {
		v, ok := inputs[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", &MissingInputKeysError{Template: t.name, Keys: slices.Compact(missing)}
	}
	return strings.NewReplacer(pairs...).Replace(t.text), nil
}
