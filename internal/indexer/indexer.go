// Package indexer ingests documents into the vector store and keeps their
// catalog records up to date.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/documaster/internal/extract"
	"github.com/hyperjump/documaster/internal/fileid"
	"github.com/hyperjump/documaster/internal/ingest"
	"github.com/hyperjump/documaster/internal/models"
	"github.com/hyperjump/documaster/internal/storage"
	"github.com/hyperjump/documaster/internal/vectorstore"
)

const (
	metaKeyTitle       = "title"
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// Indexer parses documents into chunks, writes them to the vector store and
// records each document in the catalog.
type Indexer struct {
	ingestor   *ingest.Ingestor
	store      *vectorstore.Store
	catalog    storage.Catalog
	extensions []string
	logger     *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithExtensions restricts IndexFile and IndexDirectory to the given
// extensions (case-insensitive, with or without the dot).
func WithExtensions(exts []string) IndexerOption {
	return func(idx *Indexer) { idx.extensions = exts }
}

// NewIndexer creates an indexer. store and catalog must share the same catalog.
func NewIndexer(ingestor *ingest.Ingestor, store *vectorstore.Store, catalog storage.Catalog, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		ingestor: ingestor,
		store:    store,
		catalog:  catalog,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexReader parses the content of r, named name, as document documentID and
// stores it in collection. Any chunks previously stored for the document are
// replaced. The format is chosen by the extension of name.
func (idx *Indexer) IndexReader(ctx context.Context, name string, r io.Reader, documentID, collection string) (*models.Document, error) {
	return idx.index(ctx, name, r, documentID, collection, nil)
}

func (idx *Indexer) index(ctx context.Context, name string, r io.Reader, documentID, collection string, meta map[string]string) (*models.Document, error) {
	if collection == "" {
		collection = idx.store.DefaultCollection()
	}
	format, err := extract.FormatOf(name)
	if err != nil {
		return nil, &ingest.DocumentParsingError{DocumentID: documentID, Page: -1, Err: err}
	}
	chunks, err := idx.ingestor.ParseFile(ctx, name, r, documentID)
	if err != nil {
		return nil, err
	}

	if _, err := idx.removeChunks(ctx, documentID, collection); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		if _, err := idx.store.GetOrCreateCollection(ctx, collection); err != nil {
			return nil, err
		}
	} else if err := idx.store.AddChunks(ctx, chunks, collection); err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:          documentID,
		Collection:  collection,
		Title:       filepath.Base(name),
		Source:      name,
		ContentType: format.ContentType(),
		Pages:       models.PageCount(chunks),
		Chunks:      len(chunks),
		Metadata:    documentMetadata(chunks, meta),
	}
	if t := doc.Metadata[metaKeyTitle]; t != "" {
		doc.Title = t
	}
	if err := idx.catalog.PutDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to record document: %w", err)
	}
	idx.logger.Debug("indexer document indexed",
		zap.String("id", documentID),
		zap.String("collection", collection),
		zap.Int("chunks", len(chunks)))
	return doc, nil
}

// documentMetadata returns the document-level metadata shared by every chunk,
// overlaid with extra.
func documentMetadata(chunks []models.DocumentChunk, extra map[string]string) map[string]string {
	var m map[string]string
	if len(chunks) > 0 && len(chunks[0].Extra) > 0 {
		m = maps.Clone(chunks[0].Extra)
		delete(m, ingest.MetaSheet)
	}
	if len(extra) > 0 {
		if m == nil {
			m = make(map[string]string, len(extra))
		}
		maps.Copy(m, extra)
	}
	return m
}

// removeChunks deletes a document's chunks from the collection it was last
// indexed into, falling back to collection for documents without a record.
func (idx *Indexer) removeChunks(ctx context.Context, documentID, collection string) (int, error) {
	if prev, err := idx.catalog.GetDocument(ctx, documentID); err == nil && prev.Collection != "" {
		collection = prev.Collection
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	n, err := idx.store.DeleteByDocumentID(ctx, documentID, collection)
	var notFound *vectorstore.CollectionNotFoundError
	if errors.As(err, &notFound) {
		return 0, nil
	}
	return n, err
}

// IndexFile reads a file from path and indexes it into collection. The
// document ID is derived from the absolute path so re-indexing updates the same
// document. A file already indexed with the same mtime and size is skipped and
// its existing record returned.
func (idx *Indexer) IndexFile(ctx context.Context, path, collection string) (*models.Document, error) {
	idx.logger.Debug("indexer indexing file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(idx.extensions) > 0 && !extensionAllowed(ext, idx.extensions) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	docID := fileid.FileDocID(absPath)
	if doc, ok := idx.unchanged(ctx, absPath, docID, info); ok {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return doc, nil
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	doc, err := idx.index(ctx, absPath, f, docID, collection, map[string]string{
		metaKeySourcePath:  absPath,
		metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
		metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
	})
	if err != nil {
		return nil, err
	}
	idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.String("doc_id", docID))
	return doc, nil
}

// unchanged returns the existing record if the file is already indexed with the
// same mtime and size.
func (idx *Indexer) unchanged(ctx context.Context, absPath, docID string, info os.FileInfo) (*models.Document, bool) {
	doc, err := idx.catalog.GetDocument(ctx, docID)
	if err != nil || doc.Metadata == nil {
		return nil, false
	}
	if doc.Metadata[metaKeySourcePath] != absPath {
		return nil, false
	}
	// Stored as strings: UnixNano exceeds float64 precision.
	mtime, _ := strconv.ParseInt(doc.Metadata[metaKeySourceMtime], 10, 64)
	size, _ := strconv.ParseInt(doc.Metadata[metaKeySourceSize], 10, 64)
	if mtime != info.ModTime().UnixNano() || size != info.Size() {
		return nil, false
	}
	return doc, true
}

// IndexDirectory walks dir recursively and indexes each regular file with a
// supported format (and allowed extension, when configured). Files that fail
// are logged and skipped; their errors are joined into the returned error.
// Returns the number of files indexed or found unchanged.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir, collection string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	var fileErrs []error
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(idx.extensions) > 0 && !extensionAllowed(ext, idx.extensions) {
			return nil
		}
		if _, err := extract.FormatOf(path); err != nil {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, indexErr := idx.IndexFile(ctx, path, collection); indexErr != nil {
			idx.logger.Warn("indexer failed to index file", zap.String("path", path), zap.Error(indexErr))
			fileErrs = append(fileErrs, fmt.Errorf("%s: %w", path, indexErr))
			return nil
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, errors.Join(fileErrs...)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document's chunks and its catalog record. An empty
// collection means the collection recorded for the document, or the default.
// Returns the number of chunks removed, or an error wrapping
// storage.ErrNotFound if neither a record nor chunks existed.
func (idx *Indexer) DeleteDocument(ctx context.Context, id, collection string) (int, error) {
	idx.logger.Debug("indexer deleting document", zap.String("id", id))
	doc, err := idx.catalog.GetDocument(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	if collection == "" {
		if doc != nil && doc.Collection != "" {
			collection = doc.Collection
		} else {
			collection = idx.store.DefaultCollection()
		}
	}
	n, err := idx.store.DeleteByDocumentID(ctx, id, collection)
	var notFound *vectorstore.CollectionNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return 0, err
	}
	if doc == nil && n == 0 {
		return 0, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	if err := idx.catalog.DeleteDocument(ctx, id); err != nil {
		return n, fmt.Errorf("failed to delete document: %w", err)
	}
	idx.logger.Debug("indexer document deleted", zap.String("id", id), zap.Int("chunks", n))
	return n, nil
}

// DeleteFile removes the document indexed from path, if any.
func (idx *Indexer) DeleteFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	return idx.DeleteDocument(ctx, fileid.FileDocID(absPath), "")
}
