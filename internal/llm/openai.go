package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// OpenAIBackend generates completions through any OpenAI-compatible chat API.
type OpenAIBackend struct {
	model llms.Model
}

// NewOpenAIBackend creates a backend. An empty apiKey is replaced by a
// placeholder so local OpenAI-compatible servers work without one.
func NewOpenAIBackend(baseURL, model, apiKey string) (*OpenAIBackend, error) {
	if apiKey == "" {
		apiKey = "placeholder"
	}
	opts := []openai.Option{openai.WithToken(apiKey)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return &OpenAIBackend{model: client}, nil
}

// Complete sends prompt as a single user message.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, opts Options) (*Response, error) {
	msgs := []llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)}
	resp, err := b.model.GenerateContent(ctx, msgs, callOptions(opts)...)
	if err != nil {
		return nil, &InferenceError{Backend: "openai", Err: err}
	}
	out := &Response{Choices: make([]Choice, 0, len(resp.Choices))}
	for _, c := range resp.Choices {
		if c == nil {
			out.Choices = append(out.Choices, Choice{})
			continue
		}
		text := c.Content
		out.Choices = append(out.Choices, Choice{Text: &text, FinishReason: c.StopReason})
	}
	return out, nil
}

// callOptions maps the known generation keys onto langchaingo call options.
// Unknown keys and values of the wrong type are ignored.
func callOptions(opts Options) []llms.CallOption {
	var out []llms.CallOption
	if v, ok := asFloat(opts["temperature"]); ok {
		out = append(out, llms.WithTemperature(v))
	}
	if v, ok := asFloat(opts["top_p"]); ok {
		out = append(out, llms.WithTopP(v))
	}
	if v, ok := asFloat(opts["max_tokens"]); ok {
		out = append(out, llms.WithMaxTokens(int(v)))
	}
	if v, ok := asFloat(opts["seed"]); ok {
		out = append(out, llms.WithSeed(int(v)))
	}
	if stop := asStrings(opts["stop"]); len(stop) > 0 {
		out = append(out, llms.WithStopWords(stop))
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asStrings(v any) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
