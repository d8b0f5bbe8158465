package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/documaster/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunks (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		page INTEGER NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(collection, document_id);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		title TEXT,
		source TEXT,
		content_type TEXT,
		pages INTEGER NOT NULL DEFAULT 0,
		chunks INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateCollection records a collection. It is a no-op if the collection exists.
func (s *SQLiteCatalog) CreateCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name) VALUES (?)`, name)
	return err
}

// CollectionExists reports whether a collection has been recorded.
func (s *SQLiteCatalog) CollectionExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE name = ?`, name).Scan(&n)
	return n > 0, err
}

// ListCollections returns collection names in alphabetical order.
func (s *SQLiteCatalog) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// StageChunks writes chunks (replacing same-id rows) in one transaction and
// calls publish before committing.
func (s *SQLiteCatalog) StageChunks(ctx context.Context, collection string, chunks []models.DocumentChunk, publish func() error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name) VALUES (?)`, collection); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks (collection, id, document_id, page, text, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta, err := marshalMetadata(c.Extra)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, c.ID, c.DocumentID, c.Page, c.Text, meta); err != nil {
			return err
		}
	}
	if publish != nil {
		if err := publish(); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetChunksByDocumentID returns a document's chunks in the order they were stored.
func (s *SQLiteCatalog) GetChunksByDocumentID(ctx context.Context, collection, documentID string) ([]models.DocumentChunk, error) {
	return s.queryChunks(ctx,
		`SELECT id, document_id, page, text, metadata FROM chunks
		 WHERE collection = ? AND document_id = ? ORDER BY rowid`,
		collection, documentID)
}

// ListChunks returns every chunk of a collection in the order they were stored.
func (s *SQLiteCatalog) ListChunks(ctx context.Context, collection string) ([]models.DocumentChunk, error) {
	return s.queryChunks(ctx,
		`SELECT id, document_id, page, text, metadata FROM chunks
		 WHERE collection = ? ORDER BY rowid`,
		collection)
}

func (s *SQLiteCatalog) queryChunks(ctx context.Context, query string, args ...any) ([]models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		var c models.DocumentChunk
		var meta sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Page, &c.Text, &meta); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &c.Extra); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata of chunk %s: %w", c.ID, err)
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunksByDocumentID returns the number of chunks stored for a document.
func (s *SQLiteCatalog) CountChunksByDocumentID(ctx context.Context, collection, documentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE collection = ? AND document_id = ?`,
		collection, documentID,
	).Scan(&n)
	return n, err
}

// DeleteChunksByDocumentID removes a document's chunks in one transaction,
// calling publish with the removed ids before committing. It returns the number removed.
func (s *SQLiteCatalog) DeleteChunksByDocumentID(ctx context.Context, collection, documentID string, publish func(ids []string) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM chunks WHERE collection = ? AND document_id = ?`,
		collection, documentID)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE collection = ? AND document_id = ?`,
		collection, documentID); err != nil {
		return 0, err
	}
	if publish != nil {
		if err := publish(ids); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// PutDocument inserts or replaces a document record. A zero CreatedAt is set to now.
func (s *SQLiteCatalog) PutDocument(ctx context.Context, doc *models.Document) error {
	meta, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, collection, title, source, content_type, pages, chunks, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Collection, doc.Title, doc.Source, doc.ContentType, doc.Pages, doc.Chunks, meta, doc.CreatedAt,
	)
	return err
}

// GetDocument returns a document record by ID, or an error wrapping ErrNotFound.
func (s *SQLiteCatalog) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, collection, title, source, content_type, pages, chunks, metadata, created_at
		 FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document record. Chunks are removed separately.
func (s *SQLiteCatalog) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns document records, newest first.
func (s *SQLiteCatalog) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection, title, source, content_type, pages, chunks, metadata, created_at
		 FROM documents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	var title, source, contentType, meta sql.NullString
	if err := row.Scan(&doc.ID, &doc.Collection, &title, &source, &contentType,
		&doc.Pages, &doc.Chunks, &meta, &doc.CreatedAt); err != nil {
		return nil, err
	}
	doc.Title, doc.Source, doc.ContentType = title.String, source.String, contentType.String
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// CountDocuments returns the total number of documents.
func (s *SQLiteCatalog) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the number of chunks in a collection, or in all
// collections when collection is empty.
func (s *SQLiteCatalog) CountChunks(ctx context.Context, collection string) (int64, error) {
	var count int64
	var err error
	if collection == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, collection).Scan(&count)
	}
	return count, err
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
