// Package llm defines the inference backend abstraction and its implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/documaster/internal/config"
)

// Options is an opaque bag of generation parameters. Backends interpret the
// keys they know; the llama.cpp backend forwards them verbatim.
type Options map[string]any

// Merge returns a new Options with o overlaid by other.
func (o Options) Merge(other Options) Options {
	out := make(Options, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Choice is one generated completion.
type Choice struct {
	Text         *string `json:"text"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Response is a completion result in the OpenAI completions shape.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Backend produces completions for a prompt.
type Backend interface {
	Complete(ctx context.Context, prompt string, opts Options) (*Response, error)
}

// InferenceError wraps any failure of a backend call.
type InferenceError struct {
	Backend string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed (%s): %v", e.Backend, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// ResponseParsingError means the backend response had no usable text.
type ResponseParsingError struct {
	Reason string
}

func (e *ResponseParsingError) Error() string {
	return "could not parse model response: " + e.Reason
}

// GeneratedText returns the text of the first choice.
func GeneratedText(resp *Response) (string, error) {
	if resp == nil {
		return "", &ResponseParsingError{Reason: "empty response"}
	}
	if len(resp.Choices) == 0 {
		return "", &ResponseParsingError{Reason: "no choices"}
	}
	if resp.Choices[0].Text == nil {
		return "", &ResponseParsingError{Reason: "choice has no text"}
	}
	return *resp.Choices[0].Text, nil
}

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("unknown llm provider")

// New creates the backend named by cfg.Provider.
func New(cfg config.LLMConfig, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Provider {
	case "llamacpp", "":
		logger.Info("using llama.cpp backend", zap.String("base_url", cfg.BaseURL))
		return NewLlamaCppBackend(cfg.BaseURL,
			WithTimeout(timeout),
			WithRateLimit(cfg.RateLimit),
			WithModel(cfg.Model),
		), nil
	case "openai":
		logger.Info("using openai backend", zap.String("model", cfg.Model), zap.String("base_url", cfg.BaseURL))
		return NewOpenAIBackend(cfg.BaseURL, cfg.Model, cfg.APIKey)
	case "static":
		logger.Info("using static backend")
		return NewStaticBackend(cfg.StaticAnswer), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
