// Package storage defines the catalog of collections, documents and chunks that
// backs exact-match listing and deletion next to the vector index.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/documaster/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Catalog persists collections, chunk records and document records.
//
// StageChunks and DeleteChunksByDocumentID run publish inside the catalog
// transaction, before commit. A publish error rolls the transaction back, which
// lets callers keep another index in step with the catalog.
type Catalog interface {
	// Collection operations
	CreateCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	ListCollections(ctx context.Context) ([]string, error)

	// Chunk operations
	StageChunks(ctx context.Context, collection string, chunks []models.DocumentChunk, publish func() error) error
	GetChunksByDocumentID(ctx context.Context, collection, documentID string) ([]models.DocumentChunk, error)
	CountChunksByDocumentID(ctx context.Context, collection, documentID string) (int, error)
	DeleteChunksByDocumentID(ctx context.Context, collection, documentID string, publish func(ids []string) error) (int, error)
	ListChunks(ctx context.Context, collection string) ([]models.DocumentChunk, error)

	// Document operations
	PutDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context, collection string) (int64, error)

	Close() error
}
