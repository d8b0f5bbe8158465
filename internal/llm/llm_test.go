package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/documaster/internal/config"
)

func strPtr(s string) *string { return &s }

func TestGeneratedText(t *testing.T) {
	tests := []struct {
		name    string
		resp    *Response
		want    string
		wantErr bool
	}{
		{"first choice", &Response{Choices: []Choice{{Text: strPtr("Yes")}, {Text: strPtr("No")}}}, "Yes", false},
		{"empty text is valid", &Response{Choices: []Choice{{Text: strPtr("")}}}, "", false},
		{"nil response", nil, "", true},
		{"no choices", &Response{}, "", true},
		{"missing text", &Response{Choices: []Choice{{FinishReason: "stop"}}}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GeneratedText(tt.resp)
			if tt.wantErr {
				var pe *ResponseParsingError
				if !errors.As(err, &pe) {
					t.Fatalf("expected ResponseParsingError, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("got %q, %v", got, err)
			}
		})
	}
}

func TestLlamaCppBackend_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/completions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"text":"Output: Yes","finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	b := NewLlamaCppBackend(srv.URL+"/", WithModel("phi-2"))
	resp, err := b.Complete(context.Background(), "Question?", Options{"max_tokens": 16, "stop": []string{"\n\n"}, "mirostat": 2})
	if err != nil {
		t.Fatal(err)
	}
	text, err := GeneratedText(resp)
	if err != nil || text != "Output: Yes" {
		t.Errorf("text = %q, %v", text, err)
	}
	if body["prompt"] != "Question?" || body["max_tokens"] != float64(16) || body["mirostat"] != float64(2) {
		t.Errorf("options not forwarded verbatim: %v", body)
	}
	if body["model"] != "phi-2" {
		t.Errorf("model = %v", body["model"])
	}
}

func TestLlamaCppBackend_ServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewLlamaCppBackend(srv.URL).Complete(context.Background(), "p", nil)
	var ie *InferenceError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InferenceError, got %v", err)
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error should carry status and body: %v", err)
	}
	if calls != 1 {
		t.Errorf("requests = %d, want exactly one", calls)
	}
}

func TestLlamaCppBackend_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer srv.Close()

	_, err := NewLlamaCppBackend(srv.URL).Complete(context.Background(), "p", nil)
	var pe *ResponseParsingError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ResponseParsingError, got %v", err)
	}
}

func TestLlamaCppBackend_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLlamaCppBackend(srv.URL, WithRateLimit(1)).Complete(ctx, "p", nil)
	var ie *InferenceError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InferenceError, got %v", err)
	}
}

func TestOpenAIBackend_Complete(t *testing.T) {
	var req struct {
		Model       string   `json:"model"`
		Temperature float64  `json:"temperature"`
		MaxTokens   int      `json:"max_tokens"`
		Stop        []string `json:"stop"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Output: Paris"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(srv.URL, "m", "")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := b.Complete(context.Background(), "Where?", Options{"temperature": 0.5, "max_tokens": 32, "stop": []any{"Question:"}})
	if err != nil {
		t.Fatal(err)
	}
	text, err := GeneratedText(resp)
	if err != nil || text != "Output: Paris" {
		t.Errorf("text = %q, %v", text, err)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish reason = %q", resp.Choices[0].FinishReason)
	}
	if req.Model != "m" || req.Temperature != 0.5 || req.MaxTokens != 32 || len(req.Stop) != 1 {
		t.Errorf("options not mapped: %+v", req)
	}
}

func TestOpenAIBackend_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(srv.URL, "m", "k")
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Complete(context.Background(), "p", nil)
	var ie *InferenceError
	if !errors.As(err, &ie) || ie.Backend != "openai" {
		t.Fatalf("expected InferenceError, got %v", err)
	}
}

func TestStaticBackend(t *testing.T) {
	b := NewStaticBackend("Output: 42")
	resp, err := b.Complete(context.Background(), "What?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if text, _ := GeneratedText(resp); text != "Output: 42" {
		t.Errorf("text = %q", text)
	}
	if p := b.Prompts(); len(p) != 1 || p[0] != "What?" {
		t.Errorf("prompts = %v", p)
	}
}

func TestOptions_Merge(t *testing.T) {
	base := Options{"temperature": 0.0, "max_tokens": 256}
	got := base.Merge(Options{"max_tokens": 8})
	if got["max_tokens"] != 8 || got["temperature"] != 0.0 {
		t.Errorf("merge = %v", got)
	}
	if base["max_tokens"] != 256 {
		t.Error("merge must not modify the receiver")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"llamacpp", false},
		{"openai", false},
		{"static", false},
		{"gpt-local", true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			b, err := New(config.LLMConfig{Provider: tt.provider, BaseURL: "http://localhost:1"}, nil)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownProvider) {
					t.Errorf("expected ErrUnknownProvider, got %v", err)
				}
				return
			}
			if err != nil || b == nil {
				t.Errorf("New: %v", err)
			}
		})
	}
}
