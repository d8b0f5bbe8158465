// Package ingest maps raw documents to chunk records ready for the vector store.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/documaster/internal/chunker"
	"github.com/hyperjump/documaster/internal/extract"
	"github.com/hyperjump/documaster/internal/models"
	"go.uber.org/zap"
)

// MetaSheet is the Extra key naming the spreadsheet sheet a chunk came from.
const MetaSheet = "sheet"

// IDScheme selects how chunk ids are generated.
type IDScheme string

const (
	// IDDeterministic derives ids from document id, page and position, so
	// re-ingesting a document reproduces the same ids.
	IDDeterministic IDScheme = "deterministic"
	// IDRandom assigns a fresh UUID per chunk. Re-ingestion cannot be detected.
	IDRandom IDScheme = "random"
)

// ParseIDScheme parses a configured scheme name. Empty means deterministic.
func ParseIDScheme(s string) (IDScheme, error) {
	switch IDScheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", IDDeterministic:
		return IDDeterministic, nil
	case IDRandom:
		return IDRandom, nil
	default:
		return "", fmt.Errorf("unknown chunk id scheme %q", s)
	}
}

// DocumentParsingError reports a document that could not be turned into chunks.
// Page is -1 when the failure is not tied to a page (e.g. the file cannot be opened).
type DocumentParsingError struct {
	DocumentID string
	Page       int
	Err        error
}

func (e *DocumentParsingError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("parse document %q: %v", e.DocumentID, e.Err)
	}
	return fmt.Sprintf("parse document %q page %d: %v", e.DocumentID, e.Page, e.Err)
}

func (e *DocumentParsingError) Unwrap() error { return e.Err }

// Ingestor splits extracted pages into chunks. It keeps no per-call state.
type Ingestor struct {
	chunker *chunker.Chunker
	scheme  IDScheme
	logger  *zap.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithIDScheme sets the chunk id scheme.
func WithIDScheme(s IDScheme) Option {
	return func(in *Ingestor) { in.scheme = s }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingestor) {
		if l != nil {
			in.logger = l
		}
	}
}

// New returns an Ingestor that chunks with c.
func New(c *chunker.Chunker, opts ...Option) *Ingestor {
	in := &Ingestor{chunker: c, scheme: IDDeterministic, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Chunker returns the chunker in use.
func (in *Ingestor) Chunker() *chunker.Chunker {
	return in.chunker
}

// ParsePDF chunks every page of a PDF. Pages are 0-indexed and document info
// (title, author, ...) is copied into each chunk's Extra.
func (in *Ingestor) ParsePDF(ctx context.Context, r io.Reader, documentID string) ([]models.DocumentChunk, error) {
	return in.parse(ctx, r, documentID, extract.PDF)
}

// ParseSpreadsheet chunks every sheet of an .xlsx workbook as one page.
func (in *Ingestor) ParseSpreadsheet(ctx context.Context, r io.Reader, documentID string) ([]models.DocumentChunk, error) {
	return in.parse(ctx, r, documentID, extract.Spreadsheet)
}

// ParseText chunks text as a single page with index 1.
func (in *Ingestor) ParseText(ctx context.Context, text, documentID string) ([]models.DocumentChunk, error) {
	if documentID == "" {
		return nil, &DocumentParsingError{Page: -1, Err: models.ErrMissingDocumentID}
	}
	doc := &extract.Document{
		Format: extract.FormatText,
		Pages:  []extract.Page{{Index: extract.TextPageIndex, Text: text}},
	}
	return in.chunkDocument(ctx, documentID, doc)
}

// ParseFile dispatches on the extension of name.
func (in *Ingestor) ParseFile(ctx context.Context, name string, r io.Reader, documentID string) ([]models.DocumentChunk, error) {
	format, err := extract.FormatOf(name)
	if err != nil {
		return nil, &DocumentParsingError{DocumentID: documentID, Page: -1, Err: err}
	}
	return in.parse(ctx, r, documentID, func(content []byte) (*extract.Document, error) {
		return extract.ExtractBytes(content, format)
	})
}

func (in *Ingestor) parse(ctx context.Context, r io.Reader, documentID string, fn func([]byte) (*extract.Document, error)) ([]models.DocumentChunk, error) {
	if documentID == "" {
		return nil, &DocumentParsingError{Page: -1, Err: models.ErrMissingDocumentID}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, &DocumentParsingError{DocumentID: documentID, Page: -1, Err: fmt.Errorf("read: %w", err)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fn(buf.Bytes())
	if err != nil {
		page := -1
		var pe *extract.PageError
		if errors.As(err, &pe) {
			page = pe.Page
		}
		return nil, &DocumentParsingError{DocumentID: documentID, Page: page, Err: err}
	}
	return in.chunkDocument(ctx, documentID, doc)
}

func (in *Ingestor) chunkDocument(ctx context.Context, documentID string, doc *extract.Document) ([]models.DocumentChunk, error) {
	var chunks []models.DocumentChunk
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frags, err := in.chunker.Split(page.Text)
		if err != nil {
			return nil, &DocumentParsingError{DocumentID: documentID, Page: page.Index, Err: err}
		}
		local := 0
		for frag := range frags {
			chunks = append(chunks, models.DocumentChunk{
				ID:         in.chunkID(documentID, page.Index, local),
				Text:       frag,
				DocumentID: documentID,
				Page:       page.Index,
				Extra:      pageExtra(doc.Metadata, page),
			})
			local++
		}
	}
	in.logger.Debug("document chunked",
		zap.String("document_id", documentID),
		zap.String("format", string(doc.Format)),
		zap.Int("pages", len(doc.Pages)),
		zap.Int("chunks", len(chunks)))
	return chunks, nil
}

func (in *Ingestor) chunkID(documentID string, page, local int) string {
	if in.scheme == IDRandom {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s_p%d_c%d", documentID, page, local)
}

func pageExtra(meta map[string]string, page extract.Page) map[string]string {
	if len(meta) == 0 && page.Label == "" {
		return nil
	}
	extra := maps.Clone(meta)
	if extra == nil {
		extra = make(map[string]string, 1)
	}
	if page.Label != "" {
		extra[MetaSheet] = page.Label
	}
	return extra
}
