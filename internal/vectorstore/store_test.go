package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/documaster/internal/embedding"
	"github.com/hyperjump/documaster/internal/models"
	"github.com/hyperjump/documaster/internal/storage"
)

func newCatalog(t *testing.T) *storage.SQLiteCatalog {
	t.Helper()
	c, err := storage.NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newStore(t *testing.T, catalog storage.Catalog, embedder embedding.Embedder) *Store {
	t.Helper()
	if catalog == nil {
		catalog = newCatalog(t)
	}
	if embedder == nil {
		embedder = embedding.NewHashEmbedder(384)
	}
	s, err := New(context.Background(), Config{}, catalog, embedder)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func snakeChunks() []models.DocumentChunk {
	return []models.DocumentChunk{
		{ID: "snakes_p0_c0", DocumentID: "snakes", Page: 0, Text: "The king cobra is a venomous snake.", Extra: map[string]string{"title": "Snakes"}},
		{ID: "snakes_p0_c1", DocumentID: "snakes", Page: 0, Text: "Cobras spread their hood when threatened."},
		{ID: "snakes_p1_c0", DocumentID: "snakes", Page: 1, Text: "Pythons squeeze their prey."},
		{ID: "paris_p1_c0", DocumentID: "paris", Page: 1, Text: "The Eiffel Tower stands in Paris."},
	}
}

func TestSearch_MissingCollection(t *testing.T) {
	s := newStore(t, nil, nil)
	_, err := s.Search(context.Background(), "anything", 3, "", nil)
	var nf *CollectionNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected CollectionNotFoundError, got %v", err)
	}
	if nf.Name != "default" {
		t.Errorf("name = %q", nf.Name)
	}
}

func TestSearch_EmptyCollection(t *testing.T) {
	s := newStore(t, nil, nil)
	ctx := context.Background()
	if _, err := s.GetOrCreateCollection(ctx, ""); err != nil {
		t.Fatal(err)
	}
	got, err := s.Search(ctx, "cobra", 3, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}

func TestSearch_ThresholdAndOrder(t *testing.T) {
	s := newStore(t, nil, nil)
	ctx := context.Background()
	if err := s.AddChunks(ctx, snakeChunks(), ""); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	got, err := s.Search(ctx, "Is the cobra venomous?", 10, "", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected results")
	}
	if got[0].Chunk.ID != "snakes_p0_c0" {
		t.Errorf("best match = %s", got[0].Chunk.ID)
	}
	if got[0].Chunk.Extra["title"] != "Snakes" || got[0].Chunk.DocumentID != "snakes" {
		t.Errorf("metadata not restored: %+v", got[0].Chunk)
	}
	for i, sc := range got {
		if sc.Distance >= 0.75 {
			t.Errorf("result %s distance %f not below threshold", sc.Chunk.ID, sc.Distance)
		}
		if i > 0 && got[i-1].Distance > sc.Distance {
			t.Errorf("results not ascending at %d", i)
		}
		if sc.Chunk.DocumentID == "paris" {
			t.Errorf("unrelated chunk returned: %+v", sc)
		}
	}

	one, err := s.Search(ctx, "Is the cobra venomous?", 1, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].Chunk.ID != got[0].Chunk.ID {
		t.Errorf("n=1 should return the best match, got %v", one)
	}
}

func TestSearch_DocumentFilterPrecedesRanking(t *testing.T) {
	s := newStore(t, nil, nil)
	ctx := context.Background()
	chunks := []models.DocumentChunk{
		{ID: "a_p0_c0", DocumentID: "a", Text: "cobra venomous"},
		{ID: "a_p0_c1", DocumentID: "a", Text: "cobra venomous snake"},
		{ID: "b_p0_c0", DocumentID: "b", Text: "a cobra hood is wide and the cobra is venomous to people"},
	}
	if err := s.AddChunks(ctx, chunks, "zoo"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Search(ctx, "cobra venomous", 1, "zoo", []string{"b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Chunk.DocumentID != "b" {
		t.Fatalf("expected the chunk of b, got %+v", got)
	}

	got, err = s.Search(ctx, "cobra venomous", 5, "zoo", []string{"a", "b", "a", " "})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected all 3 chunks, got %d", len(got))
	}

	got, err = s.Search(ctx, "cobra venomous", 5, "zoo", []string{"missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("unknown document should match nothing, got %v", got)
	}
}

func TestAddChunks_InvalidBatch(t *testing.T) {
	tests := []struct {
		name   string
		chunks []models.DocumentChunk
	}{
		{"duplicate id", []models.DocumentChunk{
			{ID: "x", DocumentID: "d", Text: "one"},
			{ID: "x", DocumentID: "d", Text: "two"},
		}},
		{"blank text", []models.DocumentChunk{{ID: "x", DocumentID: "d", Text: "  "}}},
		{"missing document", []models.DocumentChunk{{ID: "x", Text: "one"}}},
		{"missing id", []models.DocumentChunk{{DocumentID: "d", Text: "one"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, nil, nil)
			err := s.AddChunks(context.Background(), tt.chunks, "")
			var vse *VectorStoreError
			if !errors.As(err, &vse) || !errors.Is(err, ErrInvalidBatch) {
				t.Fatalf("expected VectorStoreError wrapping ErrInvalidBatch, got %v", err)
			}
			if vse.Op != "add" || vse.Collection != "default" {
				t.Errorf("unexpected error fields %+v", vse)
			}
			if _, err := s.Count(context.Background(), ""); err == nil {
				t.Error("nothing should have been created")
			}
		})
	}
}

type failingEmbedder struct {
	*embedding.HashEmbedder
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model offline")
}

func TestAddChunks_EmbedFailure(t *testing.T) {
	s := newStore(t, nil, failingEmbedder{embedding.NewHashEmbedder(8)})
	err := s.AddChunks(context.Background(), snakeChunks(), "")
	var vse *VectorStoreError
	if !errors.As(err, &vse) {
		t.Fatalf("expected VectorStoreError, got %v", err)
	}
}

type commitFailingCatalog struct {
	storage.Catalog
	err error
}

func (c *commitFailingCatalog) StageChunks(ctx context.Context, collection string, chunks []models.DocumentChunk, publish func() error) error {
	return c.Catalog.StageChunks(ctx, collection, chunks, func() error {
		if err := publish(); err != nil {
			return err
		}
		return c.err
	})
}

func TestAddChunks_RollsBackBothSides(t *testing.T) {
	inner := newCatalog(t)
	boom := errors.New("disk full")
	s := newStore(t, &commitFailingCatalog{Catalog: inner, err: boom}, nil)
	ctx := context.Background()

	err := s.AddChunks(ctx, snakeChunks(), "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped catalog error, got %v", err)
	}
	if n, _ := s.Count(ctx, ""); n != 0 {
		t.Errorf("vectors should be removed, %d remain", n)
	}
	if n, _ := inner.CountChunks(ctx, ""); n != 0 {
		t.Errorf("catalog should be rolled back, %d rows remain", n)
	}
}

// cancellingEmbedder cancels the caller's context once a batch is embedded.
type cancellingEmbedder struct {
	*embedding.HashEmbedder
	cancel context.CancelFunc
}

func (e *cancellingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embs, err := e.HashEmbedder.EmbedBatch(ctx, texts)
	if e.cancel != nil {
		e.cancel()
	}
	return embs, err
}

func assertSnakesSearchable(t *testing.T, s *Store, catalog storage.Catalog) {
	t.Helper()
	ctx := context.Background()
	if n, _ := catalog.CountChunksByDocumentID(ctx, "default", "snakes"); n != 3 {
		t.Errorf("catalog chunks for snakes = %d, want 3", n)
	}
	if n, _ := s.Count(ctx, ""); n != 4 {
		t.Errorf("vector count = %d, want 4", n)
	}
	got, err := s.Search(ctx, "Is the cobra venomous?", 1, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Chunk.ID != "snakes_p0_c0" {
		t.Errorf("stored chunks no longer searchable: %v", got)
	}
}

func TestAddChunks_CancelledReAddKeepsStoredVectors(t *testing.T) {
	catalog := newCatalog(t)
	embedder := &cancellingEmbedder{HashEmbedder: embedding.NewHashEmbedder(384)}
	s := newStore(t, catalog, embedder)
	if err := s.AddChunks(context.Background(), snakeChunks(), ""); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	embedder.cancel = cancel
	err := s.AddChunks(ctx, snakeChunks(), "")
	embedder.cancel = nil
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assertSnakesSearchable(t, s, catalog)
}

func TestAddChunks_FailedReAddRestoresReplacedVectors(t *testing.T) {
	inner := newCatalog(t)
	catalog := &commitFailingCatalog{Catalog: inner}
	s := newStore(t, catalog, nil)
	ctx := context.Background()
	if err := s.AddChunks(ctx, snakeChunks(), ""); err != nil {
		t.Fatal(err)
	}

	catalog.err = errors.New("disk full")
	changed := snakeChunks()
	changed[0].Text = "Eiffel Tower Paris"
	if err := s.AddChunks(ctx, changed, ""); !errors.Is(err, catalog.err) {
		t.Fatalf("expected wrapped catalog error, got %v", err)
	}
	catalog.err = nil
	assertSnakesSearchable(t, s, inner)
}

func TestGetAndDeleteByDocumentID(t *testing.T) {
	s := newStore(t, nil, nil)
	ctx := context.Background()

	if _, err := s.GetChunksByDocumentID(ctx, "snakes", ""); err == nil {
		t.Error("expected CollectionNotFoundError before any write")
	}
	if _, err := s.DeleteByDocumentID(ctx, "snakes", ""); err == nil {
		t.Error("expected CollectionNotFoundError before any write")
	}

	if err := s.AddChunks(ctx, snakeChunks(), ""); err != nil {
		t.Fatal(err)
	}
	chunks, err := s.GetChunksByDocumentID(ctx, "snakes", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 || chunks[0].ID != "snakes_p0_c0" || chunks[2].ID != "snakes_p1_c0" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}

	n, err := s.DeleteByDocumentID(ctx, "snakes", "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("deleted %d, want 3", n)
	}
	if c, _ := s.Count(ctx, ""); c != 1 {
		t.Errorf("vector count = %d, want 1", c)
	}
	got, err := s.Search(ctx, "cobra venomous snake", 5, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("deleted chunks still returned: %v", got)
	}
	chunks, _ = s.GetChunksByDocumentID(ctx, "snakes", "")
	if len(chunks) != 0 {
		t.Errorf("catalog still lists %d chunks", len(chunks))
	}
	if n, _ := s.DeleteByDocumentID(ctx, "snakes", ""); n != 0 {
		t.Errorf("second delete removed %d", n)
	}
}

func TestNew_RehydratesFromCatalog(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()
	first := newStore(t, catalog, nil)
	if err := first.AddChunks(ctx, snakeChunks(), "zoo"); err != nil {
		t.Fatal(err)
	}

	second := newStore(t, catalog, nil)
	n, err := second.Count(ctx, "zoo")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("rehydrated %d vectors, want 4", n)
	}
	got, err := second.Search(ctx, "king cobra", 1, "zoo", nil)
	if err != nil || len(got) != 1 || got[0].Chunk.ID != "snakes_p0_c0" {
		t.Errorf("search after rehydrate: %v, %v", got, err)
	}
}

func TestRank(t *testing.T) {
	in := []models.ScoredChunk{
		{Chunk: models.DocumentChunk{ID: "c"}, Distance: 0.2},
		{Chunk: models.DocumentChunk{ID: "b"}, Distance: 0.2},
		{Chunk: models.DocumentChunk{ID: "a"}, Distance: 0.5},
		{Chunk: models.DocumentChunk{ID: "edge"}, Distance: 0.75},
		{Chunk: models.DocumentChunk{ID: "far"}, Distance: 1.3},
	}
	got := rank(in, 4, 0.75)
	want := []string{"b", "c", "a"}
	if len(got) != len(want) {
		t.Fatalf("got %d results: %v", len(got), got)
	}
	for i, id := range want {
		if got[i].Chunk.ID != id {
			t.Errorf("result %d = %s, want %s", i, got[i].Chunk.ID, id)
		}
	}

	if got := rank(in, 1, 0.75); len(got) != 1 || got[0].Chunk.ID != "b" {
		t.Errorf("n=1: %v", got)
	}
}
