package embedding

import (
	"fmt"
	"strings"

	"github.com/hyperjump/documaster/internal/config"
	"go.uber.org/zap"
)

// New builds the embedder selected by cfg.Provider, wrapped in an LRU cache
// when cfg.CacheSize > 0. An ONNX model that cannot be loaded falls back to the
// hash embedder with a warning.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var e Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		e = NewHashEmbedder(cfg.Dimensions)
	case "onnx":
		onnx, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, using hash embedder",
				zap.String("model_path", cfg.ModelPath), zap.Error(err))
			e = NewHashEmbedder(cfg.Dimensions)
		} else {
			e = onnx
		}
	case "openai":
		remote, err := NewOpenAIEmbedder(cfg.BaseURL, cfg.Model, cfg.APIKey, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		e = remote
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		e = NewCached(e, cfg.CacheSize)
	}
	return e, nil
}
