// Package models defines core data structures for chunks, documents, and answers.
package models

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Metadata keys every stored chunk carries.
const (
	MetaDocumentID = "document_id"
	MetaPage       = "page"
)

var (
	// ErrEmptyChunkText is returned for a chunk whose text is blank after trimming.
	ErrEmptyChunkText = errors.New("chunk text is empty")
	// ErrMissingDocumentID is returned for a chunk without a document id.
	ErrMissingDocumentID = errors.New("chunk has no document_id")
)

// DocumentChunk is a fragment of a document's text, the unit of indexing and retrieval.
// Extra holds document-level metadata (title, author, ...) merged in at ingestion.
type DocumentChunk struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	DocumentID string            `json:"document_id"`
	Page       int               `json:"page"`
	Extra      map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fields the vector store relies on.
func (c DocumentChunk) Validate() error {
	if c.ID == "" {
		return errors.New("chunk has no id")
	}
	if c.DocumentID == "" {
		return ErrMissingDocumentID
	}
	if c.Page < 0 {
		return fmt.Errorf("chunk %s: negative page %d", c.ID, c.Page)
	}
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("chunk %s: %w", c.ID, ErrEmptyChunkText)
	}
	return nil
}

// Metadata flattens the chunk into the string map stored next to its embedding.
// document_id and page always win over same-named Extra keys.
func (c DocumentChunk) Metadata() map[string]string {
	m := make(map[string]string, len(c.Extra)+2)
	maps.Copy(m, c.Extra)
	m[MetaDocumentID] = c.DocumentID
	m[MetaPage] = strconv.Itoa(c.Page)
	return m
}

// ChunkFromMetadata rebuilds a chunk from stored id, text and flattened metadata.
func ChunkFromMetadata(id, text string, meta map[string]string) (DocumentChunk, error) {
	docID, ok := meta[MetaDocumentID]
	if !ok || docID == "" {
		return DocumentChunk{}, fmt.Errorf("chunk %s: %w", id, ErrMissingDocumentID)
	}
	page, err := strconv.Atoi(meta[MetaPage])
	if err != nil || page < 0 {
		return DocumentChunk{}, fmt.Errorf("chunk %s: invalid page %q", id, meta[MetaPage])
	}
	var extra map[string]string
	for k, v := range meta {
		if k == MetaDocumentID || k == MetaPage {
			continue
		}
		if extra == nil {
			extra = make(map[string]string, len(meta)-2)
		}
		extra[k] = v
	}
	return DocumentChunk{ID: id, Text: text, DocumentID: docID, Page: page, Extra: extra}, nil
}

// ScoredChunk pairs a chunk with its embedding distance to a query.
// Lower distance means more similar.
type ScoredChunk struct {
	Chunk    DocumentChunk `json:"chunk"`
	Distance float32       `json:"distance"`
}
