package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/documaster/internal/chunker"
	"github.com/hyperjump/documaster/internal/config"
	"github.com/hyperjump/documaster/internal/embedding"
	"github.com/hyperjump/documaster/internal/indexer"
	"github.com/hyperjump/documaster/internal/ingest"
	"github.com/hyperjump/documaster/internal/llm"
	"github.com/hyperjump/documaster/internal/qa"
	"github.com/hyperjump/documaster/internal/storage"
	"github.com/hyperjump/documaster/internal/vectorstore"
)

// Components holds initialized services.
type Components struct {
	Catalog  *storage.SQLiteCatalog
	Embedder embedding.Embedder
	Store    *vectorstore.Store
	Indexer  *indexer.Indexer
	Backend  llm.Backend
	QA       *qa.Service
}

func (c *Components) Close() {
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	c.Catalog, err = storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	c.Embedder, err = embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c.Store, err = vectorstore.New(ctx, vectorstore.Config{
		Path:              cfg.Storage.VectorPath,
		Compress:          cfg.Storage.CompressVector,
		DefaultCollection: cfg.VectorStore.DefaultCollection,
		DistanceThreshold: cfg.VectorStore.DistanceThreshold,
		DefaultNResults:   cfg.VectorStore.NResults,
	}, c.Catalog, c.Embedder, vectorstore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	// Questions against an empty install answer "I don't know." rather than failing.
	if _, err := c.Store.GetOrCreateCollection(ctx, ""); err != nil {
		return nil, err
	}
	logger.Info("vector store initialized",
		zap.String("path", cfg.Storage.VectorPath),
		zap.String("default_collection", c.Store.DefaultCollection()),
		zap.Float32("distance_threshold", c.Store.DistanceThreshold()))

	chk, err := chunker.New(chunker.Range(cfg.Chunking.Min, cfg.Chunking.Max))
	if err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}
	scheme, err := ingest.ParseIDScheme(cfg.Chunking.IDScheme)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}
	ing := ingest.New(chk, ingest.WithIDScheme(scheme), ingest.WithLogger(logger))
	c.Indexer = indexer.NewIndexer(ing, c.Store, c.Catalog,
		indexer.WithLogger(logger),
		indexer.WithExtensions(cfg.Watch.Extensions))

	c.Backend, err = llm.New(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm backend: %w", err)
	}
	c.QA = qa.NewService(c.Store, c.Backend,
		qa.WithNResults(cfg.VectorStore.NResults),
		qa.WithCollection(cfg.VectorStore.DefaultCollection),
		qa.WithCompletionOptions(cfg.LLM.Options),
		qa.WithLogger(logger))
	return c, nil
}
