package embedding

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemFunc adapts e to chromem's embedding function type.
func ChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.Embed(ctx, text)
	}
}
