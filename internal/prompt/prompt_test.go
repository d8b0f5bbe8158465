package prompt

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestQA_Render(t *testing.T) {
	got, err := QA.Render(map[string]string{"context": "Some context", "question": "Some question"})
	if err != nil {
		t.Fatal(err)
	}
	want := "Instruct: Given the context below:\nSome context\n\nGive a precise answer to the following question\n\nQuestion: Some question\n\nOutput:\n"
	if got != want {
		t.Errorf("Render =\n%q\nwant\n%q", got, want)
	}
}

func TestRender_MissingKeys(t *testing.T) {
	tests := []struct {
		name   string
		tmpl   Template
		inputs map[string]string
		want   []string
	}{
		{"qa nothing matching", QA, map[string]string{"incorrect": "prompt"}, []string{"context", "question"}},
		{"qa one missing", QA, map[string]string{"context": "c"}, []string{"question"}},
		{"evaluation", Evaluation, map[string]string{"answer": "a"}, []string{"question", "reference"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tmpl.Render(tt.inputs)
			var mk *MissingInputKeysError
			if !errors.As(err, &mk) {
				t.Fatalf("expected MissingInputKeysError, got %v", err)
			}
			if !reflect.DeepEqual(mk.Keys, tt.want) {
				t.Errorf("Keys = %v, want %v", mk.Keys, tt.want)
			}
			if mk.Template != tt.tmpl.Name() {
				t.Errorf("Template = %q", mk.Template)
			}
		})
	}
}

func TestRender_ExtraKeysIgnoredAndSinglePass(t *testing.T) {
	tmpl := New("t", "1", "Q: {question} / {other}", []string{"question"}, "")
	got, err := tmpl.Render(map[string]string{"question": "what is {other}?", "other": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Q: what is {other}? / {other}" {
		t.Errorf("got %q", got)
	}
}

func TestEvaluation_Render(t *testing.T) {
	got, err := Evaluation.Render(map[string]string{"question": "Q", "answer": "A", "reference": "R"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Question: Q\n", "Answer: A\n", "Reference Answer: R\n", `"CORRECT" or "INCORRECT"`} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered prompt missing %q", want)
		}
	}
	if !strings.HasSuffix(got, "Output:\n") {
		t.Errorf("prompt should end with the output marker: %q", got)
	}
}

func TestTemplate_Immutable(t *testing.T) {
	keys := []string{"a"}
	tmpl := New("t", "2", "{a}", keys, "Out:")
	keys[0] = "b"
	got := tmpl.InputKeys()
	got[0] = "c"
	if tmpl.InputKeys()[0] != "a" {
		t.Error("template keys should not alias caller slices")
	}
	if tmpl.Version() != "2" || tmpl.OutputMarker() != "Out:" || tmpl.Text() != "{a}" {
		t.Errorf("accessors: %+v", tmpl)
	}
}
