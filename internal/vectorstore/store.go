// Package vectorstore stores chunk embeddings in chromem-go collections and
// answers threshold-filtered similarity searches, optionally restricted to a
// set of documents. A storage.Catalog mirrors every chunk for exact-match
// listing and deletion.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/hyperjump/documaster/internal/embedding"
	"github.com/hyperjump/documaster/internal/models"
	"github.com/hyperjump/documaster/internal/storage"
)

var tracer = otel.Tracer("documaster.vectorstore")

// Defaults applied by New for zero Config fields.
const (
	DefaultCollection        = "default"
	DefaultDistanceThreshold = 0.75
	DefaultNResults          = 3
)

const rehydrateBatch = 64

// Config configures a Store. An empty Path keeps vectors in memory; they are
// rebuilt from the catalog when the store is created.
type Config struct {
	Path              string
	Compress          bool
	DefaultCollection string
	DistanceThreshold float32
	DefaultNResults   int
}

// Collection is a named set of chunk embeddings.
type Collection struct {
	Name string
	coll *chromem.Collection
}

// Count returns the number of chunks in the collection.
func (c *Collection) Count() int {
	return c.coll.Count()
}

// Store is the vector store adapter. Writes are serialized; reads run concurrently.
type Store struct {
	db       *chromem.DB
	catalog  storage.Catalog
	embedder embedding.Embedder
	embed    chromem.EmbeddingFunc
	cfg      Config
	logger   *zap.Logger
	writeMu  sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New opens the chromem database described by cfg. When it is in memory, chunks
// already in the catalog are re-embedded into it before New returns.
func New(ctx context.Context, cfg Config, catalog storage.Catalog, embedder embedding.Embedder, opts ...Option) (*Store, error) {
	if cfg.DefaultCollection == "" {
		cfg.DefaultCollection = DefaultCollection
	}
	if cfg.DistanceThreshold == 0 {
		cfg.DistanceThreshold = DefaultDistanceThreshold
	}
	if cfg.DefaultNResults <= 0 {
		cfg.DefaultNResults = DefaultNResults
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening vector database at %s: %w", cfg.Path, err)
		}
	}

	s := &Store{
		db:       db,
		catalog:  catalog,
		embedder: embedder,
		embed:    embedding.ChromemFunc(embedder),
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Path == "" {
		if _, err := s.Rehydrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DefaultCollection returns the collection used when callers pass an empty name.
func (s *Store) DefaultCollection() string {
	return s.cfg.DefaultCollection
}

// DistanceThreshold returns the exclusive upper bound on result distance.
func (s *Store) DistanceThreshold() float32 {
	return s.cfg.DistanceThreshold
}

func (s *Store) collectionName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return s.cfg.DefaultCollection
	}
	return name
}

// GetOrCreateCollection returns the named collection, creating it if needed.
func (s *Store) GetOrCreateCollection(ctx context.Context, name string) (*Collection, error) {
	name = s.collectionName(name)
	if err := s.catalog.CreateCollection(ctx, name); err != nil {
		return nil, fmt.Errorf("recording collection %s: %w", name, err)
	}
	coll, err := s.db.GetOrCreateCollection(name, nil, s.embed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return &Collection{Name: name, coll: coll}, nil
}

// GetCollection returns the named collection or a *CollectionNotFoundError.
func (s *Store) GetCollection(_ context.Context, name string) (*Collection, error) {
	name = s.collectionName(name)
	coll := s.db.GetCollection(name, s.embed)
	if coll == nil {
		return nil, &CollectionNotFoundError{Name: name}
	}
	return &Collection{Name: name, coll: coll}, nil
}

// AddChunks embeds and stores a batch of chunks. Either the whole batch is
// written or none of it is: on failure the catalog transaction is rolled back
// and any vectors already written are removed.
func (s *Store) AddChunks(ctx context.Context, chunks []models.DocumentChunk, collection string) (err error) {
	name := s.collectionName(collection)
	ctx, span := tracer.Start(ctx, "Store.AddChunks")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("chunk_count", len(chunks)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			operationErrors.WithLabelValues("add").Inc()
		}
	}()

	if len(chunks) == 0 {
		return nil
	}
	if err := validateBatch(chunks); err != nil {
		return &VectorStoreError{Op: "add", Collection: name, Err: err}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return &VectorStoreError{Op: "add", Collection: name, Err: fmt.Errorf("embedding chunks: %w", err)}
	}
	if len(embs) != len(chunks) {
		return &VectorStoreError{Op: "add", Collection: name,
			Err: fmt.Errorf("embedder returned %d vectors for %d chunks", len(embs), len(chunks))}
	}

	coll, err := s.db.GetOrCreateCollection(name, nil, s.embed)
	if err != nil {
		return &VectorStoreError{Op: "add", Collection: name, Err: err}
	}
	docs := make([]chromem.Document, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		docs[i] = chromem.Document{
			ID:        c.ID,
			Metadata:  c.Metadata(),
			Embedding: embs[i],
			Content:   c.Text,
		}
	}

	// Vectors that already exist under the batch ids are restored if the write aborts.
	var previous []chromem.Document
	for _, id := range ids {
		if prev, getErr := coll.GetByID(ctx, id); getErr == nil {
			previous = append(previous, prev)
		}
	}

	published := false
	err = s.catalog.StageChunks(ctx, name, chunks, func() error {
		published = true
		if err := ctx.Err(); err != nil {
			return err
		}
		return coll.AddDocuments(ctx, docs, runtime.NumCPU())
	})
	if err != nil {
		if published {
			s.restore(context.WithoutCancel(ctx), coll, name, ids, previous)
		}
		return &VectorStoreError{Op: "add", Collection: name, Err: err}
	}

	chunksAdded.WithLabelValues(name).Add(float64(len(chunks)))
	s.logger.Debug("chunks added", zap.String("collection", name), zap.Int("count", len(chunks)))
	return nil
}

// restore undoes a published batch: the batch ids are removed and the vectors
// they replaced are put back.
func (s *Store) restore(ctx context.Context, coll *chromem.Collection, name string, ids []string, previous []chromem.Document) {
	if err := coll.Delete(ctx, nil, nil, ids...); err != nil {
		s.logger.Warn("failed to remove vectors after aborted write",
			zap.String("collection", name), zap.Error(err))
	}
	if len(previous) == 0 {
		return
	}
	if err := coll.AddDocuments(ctx, previous, runtime.NumCPU()); err != nil {
		s.logger.Warn("failed to restore replaced vectors after aborted write",
			zap.String("collection", name), zap.Int("count", len(previous)), zap.Error(err))
	}
}

func validateBatch(chunks []models.DocumentChunk) error {
	seen := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: chunk %d: %v", ErrInvalidBatch, i, err)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate chunk id %q", ErrInvalidBatch, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// Search returns up to n chunks most similar to query, nearest first, keeping
// only those with distance strictly below the threshold. Distance is one minus
// cosine similarity. A non-empty documentIDs restricts the search to chunks of
// those documents before ranking. n <= 0 uses the configured default.
func (s *Store) Search(ctx context.Context, query string, n int, collection string, documentIDs []string) (result []models.ScoredChunk, err error) {
	name := s.collectionName(collection)
	if n <= 0 {
		n = s.cfg.DefaultNResults
	}
	ctx, span := tracer.Start(ctx, "Store.Search")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("n", n),
		attribute.Int("document_filter", len(documentIDs)))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var notFound *CollectionNotFoundError
			if !errors.As(err, &notFound) {
				operationErrors.WithLabelValues("search").Inc()
			}
			return
		}
		searchDuration.Observe(time.Since(start).Seconds())
		searchResults.Observe(float64(len(result)))
	}()

	coll := s.db.GetCollection(name, s.embed)
	if coll == nil {
		return nil, &CollectionNotFoundError{Name: name}
	}
	total := coll.Count()
	if total == 0 {
		return []models.ScoredChunk{}, nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &VectorStoreError{Op: "search", Collection: name, Err: fmt.Errorf("embedding query: %w", err)}
	}

	var hits []chromem.Result
	ids := uniqueIDs(documentIDs)
	if len(ids) == 0 {
		hits, err = coll.QueryEmbedding(ctx, emb, min(n, total), nil, nil)
		if err != nil {
			return nil, &VectorStoreError{Op: "search", Collection: name, Err: err}
		}
	} else {
		for _, id := range ids {
			count, err := s.catalog.CountChunksByDocumentID(ctx, name, id)
			if err != nil {
				return nil, &VectorStoreError{Op: "search", Collection: name, Err: err}
			}
			if count == 0 {
				continue
			}
			res, err := coll.QueryEmbedding(ctx, emb, min(n, count, total), map[string]string{models.MetaDocumentID: id}, nil)
			if err != nil {
				return nil, &VectorStoreError{Op: "search", Collection: name, Err: err}
			}
			hits = append(hits, res...)
		}
	}

	scored := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		chunk, err := models.ChunkFromMetadata(h.ID, h.Content, h.Metadata)
		if err != nil {
			return nil, &VectorStoreError{Op: "search", Collection: name, Err: err}
		}
		scored = append(scored, models.ScoredChunk{Chunk: chunk, Distance: 1 - h.Similarity})
	}
	result = rank(scored, n, s.cfg.DistanceThreshold)
	s.logger.Debug("search completed",
		zap.String("collection", name),
		zap.Int("candidates", len(scored)),
		zap.Int("results", len(result)))
	return result, nil
}

// rank orders by ascending distance (ties by id), keeps the first n and drops
// anything at or beyond threshold.
func rank(scored []models.ScoredChunk, n int, threshold float32) []models.ScoredChunk {
	slices.SortStableFunc(scored, func(a, b models.ScoredChunk) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return strings.Compare(a.Chunk.ID, b.Chunk.ID)
		}
	})
	if len(scored) > n {
		scored = scored[:n]
	}
	out := make([]models.ScoredChunk, 0, len(scored))
	for _, sc := range scored {
		if sc.Distance < threshold {
			out = append(out, sc)
		}
	}
	return out
}

func uniqueIDs(ids []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// GetChunksByDocumentID returns every chunk of a document in ingestion order.
func (s *Store) GetChunksByDocumentID(ctx context.Context, documentID, collection string) ([]models.DocumentChunk, error) {
	name := s.collectionName(collection)
	ok, err := s.catalog.CollectionExists(ctx, name)
	if err != nil {
		return nil, &VectorStoreError{Op: "get", Collection: name, Err: err}
	}
	if !ok {
		return nil, &CollectionNotFoundError{Name: name}
	}
	chunks, err := s.catalog.GetChunksByDocumentID(ctx, name, documentID)
	if err != nil {
		return nil, &VectorStoreError{Op: "get", Collection: name, Err: err}
	}
	return chunks, nil
}

// DeleteByDocumentID removes every chunk of a document and returns how many were removed.
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID, collection string) (n int, err error) {
	name := s.collectionName(collection)
	ctx, span := tracer.Start(ctx, "Store.DeleteByDocumentID")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.String("document_id", documentID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			operationErrors.WithLabelValues("delete").Inc()
		}
	}()

	ok, err := s.catalog.CollectionExists(ctx, name)
	if err != nil {
		return 0, &VectorStoreError{Op: "delete", Collection: name, Err: err}
	}
	if !ok {
		return 0, &CollectionNotFoundError{Name: name}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	coll := s.db.GetCollection(name, s.embed)
	n, err = s.catalog.DeleteChunksByDocumentID(ctx, name, documentID, func([]string) error {
		if coll == nil {
			return nil
		}
		return coll.Delete(ctx, map[string]string{models.MetaDocumentID: documentID}, nil)
	})
	if err != nil {
		return 0, &VectorStoreError{Op: "delete", Collection: name, Err: err}
	}
	chunksDeleted.WithLabelValues(name).Add(float64(n))
	s.logger.Debug("document chunks deleted",
		zap.String("collection", name), zap.String("document_id", documentID), zap.Int("count", n))
	return n, nil
}

// Rehydrate re-embeds catalog chunks into collections whose vector count does
// not match the catalog. It returns the number of chunks written.
func (s *Store) Rehydrate(ctx context.Context) (int, error) {
	names, err := s.catalog.ListCollections(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing collections: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	written := 0
	for _, name := range names {
		chunks, err := s.catalog.ListChunks(ctx, name)
		if err != nil {
			return written, fmt.Errorf("listing chunks of %s: %w", name, err)
		}
		coll, err := s.db.GetOrCreateCollection(name, nil, s.embed)
		if err != nil {
			return written, fmt.Errorf("getting/creating collection %s: %w", name, err)
		}
		if coll.Count() == len(chunks) {
			continue
		}
		for batch := range slices.Chunk(chunks, rehydrateBatch) {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			embs, err := s.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return written, fmt.Errorf("embedding chunks of %s: %w", name, err)
			}
			docs := make([]chromem.Document, len(batch))
			for i, c := range batch {
				docs[i] = chromem.Document{ID: c.ID, Metadata: c.Metadata(), Embedding: embs[i], Content: c.Text}
			}
			if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
				return written, fmt.Errorf("restoring vectors of %s: %w", name, err)
			}
			written += len(batch)
		}
		s.logger.Info("collection rehydrated from catalog",
			zap.String("collection", name), zap.Int("chunks", len(chunks)))
	}
	return written, nil
}

// Count returns the number of chunks in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	c, err := s.GetCollection(ctx, collection)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// Collections lists collection names.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	return s.catalog.ListCollections(ctx)
}
