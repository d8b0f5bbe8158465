package embedding

import (
	"context"
	"hash/fnv"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"

	"github.com/hyperjump/documaster/pkg/utils"
)

// HashEmbedder embeds text by feature hashing its lowercased word terms into a
// fixed number of buckets. It needs no model, is deterministic, and texts that
// share content words have high cosine similarity, which makes it the offline
// and test default.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder with the given dimensions (384 when <= 0).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the L2-normalized term histogram of text. Text without content
// words maps to a single fixed bucket.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	terms := 0
	for _, term := range Terms(text) {
		if isStopWord(term) {
			continue
		}
		emb[bucket(term, e.dimensions)]++
		terms++
	}
	if terms == 0 {
		emb[0] = 1
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}

func bucket(term string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(term))
	return int(h.Sum32() % uint32(n))
}

// stopWords is bleve's English stop list.
var stopWords = loadStopWords()

func loadStopWords() analysis.TokenMap {
	m := analysis.NewTokenMap()
	if err := m.LoadBytes(en.EnglishStopWords); err != nil {
		panic("embedding: load english stop words: " + err.Error())
	}
	return m
}

func isStopWord(term string) bool {
	return stopWords[term]
}
