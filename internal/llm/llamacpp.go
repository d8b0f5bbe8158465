package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultLlamaCppTimeout = 120 * time.Second

// LlamaCppBackend talks to a llama.cpp server through its OpenAI-compatible
// /v1/completions endpoint. Requests are not retried.
type LlamaCppBackend struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// LlamaCppOption configures a LlamaCppBackend.
type LlamaCppOption func(*LlamaCppBackend)

// WithTimeout sets the HTTP client timeout. Zero keeps the default.
func WithTimeout(d time.Duration) LlamaCppOption {
	return func(b *LlamaCppBackend) {
		if d > 0 {
			b.httpClient.Timeout = d
		}
	}
}

// WithRateLimit caps requests per second. Zero or less disables limiting.
func WithRateLimit(perSecond float64) LlamaCppOption {
	return func(b *LlamaCppBackend) {
		if perSecond > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithModel sets the model field sent when the options do not name one.
func WithModel(model string) LlamaCppOption {
	return func(b *LlamaCppBackend) { b.model = model }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) LlamaCppOption {
	return func(b *LlamaCppBackend) {
		if c != nil {
			b.httpClient = c
		}
	}
}

// NewLlamaCppBackend returns a backend for the server at baseURL.
func NewLlamaCppBackend(baseURL string, opts ...LlamaCppOption) *LlamaCppBackend {
	b := &LlamaCppBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultLlamaCppTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Complete posts the prompt with opts merged into the request body.
func (b *LlamaCppBackend) Complete(ctx context.Context, prompt string, opts Options) (*Response, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, &InferenceError{Backend: "llama.cpp", Err: err}
	}

	body := make(map[string]any, len(opts)+2)
	for k, v := range opts {
		body[k] = v
	}
	body["prompt"] = prompt
	if _, ok := body["model"]; !ok && b.model != "" {
		body["model"] = b.model
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &InferenceError{Backend: "llama.cpp", Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/completions", bytes.NewReader(data))
	if err != nil {
		return nil, &InferenceError{Backend: "llama.cpp", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &InferenceError{Backend: "llama.cpp", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InferenceError{Backend: "llama.cpp", Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &InferenceError{
			Backend: "llama.cpp",
			Err:     fmt.Errorf("llama.cpp: /v1/completions returned %s: %s", resp.Status, strings.TrimSpace(string(raw))),
		}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ResponseParsingError{Reason: err.Error()}
	}
	return &out, nil
}
