package llm

import (
	"context"
	"sync"
)

// StaticBackend returns a fixed text for every prompt and records the prompts
// it was given.
type StaticBackend struct {
	text string

	mu      sync.Mutex
	prompts []string
}

// NewStaticBackend returns a backend that always answers text.
func NewStaticBackend(text string) *StaticBackend {
	return &StaticBackend{text: text}
}

func (b *StaticBackend) Complete(ctx context.Context, prompt string, _ Options) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &InferenceError{Backend: "static", Err: err}
	}
	b.mu.Lock()
	b.prompts = append(b.prompts, prompt)
	b.mu.Unlock()
	text := b.text
	return &Response{Choices: []Choice{{Text: &text, FinishReason: "stop"}}}, nil
}

// Prompts returns the prompts received so far.
func (b *StaticBackend) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...)
}
