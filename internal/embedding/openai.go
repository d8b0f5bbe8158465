package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/documaster/pkg/utils"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint (OpenAI, TEI,
// llama.cpp server, vLLM) through langchaingo.
type OpenAIEmbedder struct {
	embedder   *embeddings.EmbedderImpl
	dimensions int
}

// NewOpenAIEmbedder creates a remote embedder. apiKey may be empty for servers
// that do not check it.
func NewOpenAIEmbedder(baseURL, model, apiKey string, dimensions int) (*OpenAIEmbedder, error) {
	if model == "" {
		return nil, errors.New("embedding model is required")
	}
	if apiKey == "" {
		apiKey = "placeholder"
	}
	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithEmbeddingModel(model),
		openai.WithToken(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	e, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return &OpenAIEmbedder{embedder: e, dimensions: dimensions}, nil
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch embeds texts in as few requests as the client allows.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	if len(embs) != len(texts) {
		return nil, fmt.Errorf("embedding documents: got %d vectors for %d texts", len(embs), len(texts))
	}
	for _, emb := range embs {
		utils.NormalizeL2(emb)
	}
	return embs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
