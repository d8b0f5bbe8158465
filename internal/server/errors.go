package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/hyperjump/documaster/internal/chunker"
	"github.com/hyperjump/documaster/internal/extract"
	"github.com/hyperjump/documaster/internal/ingest"
	"github.com/hyperjump/documaster/internal/llm"
	"github.com/hyperjump/documaster/internal/prompt"
	"github.com/hyperjump/documaster/internal/storage"
	"github.com/hyperjump/documaster/internal/vectorstore"
)

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error    string   `json:"error"`
	Messages []string `json:"messages"`
}

// classify maps an error to the class name reported to clients and an HTTP status.
func classify(err error) (string, int) {
	var (
		missingKeys *prompt.MissingInputKeysError
		inference   *llm.InferenceError
		parsing     *llm.ResponseParsingError
		document    *ingest.DocumentParsingError
		chunking    *chunker.ChunkingError
		collection  *vectorstore.CollectionNotFoundError
		vectorStore *vectorstore.VectorStoreError
	)
	switch {
	case errors.As(err, &collection):
		return "CollectionNotFoundError", http.StatusNotFound
	case errors.Is(err, storage.ErrNotFound):
		return "NotFoundError", http.StatusNotFound
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return "ValidationError", http.StatusBadRequest
	case errors.As(err, &document):
		return "DocumentParsingError", http.StatusInternalServerError
	case errors.As(err, &chunking):
		return "ChunkingError", http.StatusInternalServerError
	case errors.As(err, &missingKeys):
		return "MissingInputKeysError", http.StatusInternalServerError
	case errors.As(err, &inference):
		return "InferenceError", http.StatusInternalServerError
	case errors.As(err, &parsing):
		return "ResponseParsingError", http.StatusInternalServerError
	case errors.As(err, &vectorStore):
		return "VectorStoreError", http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError", http.StatusGatewayTimeout
	default:
		return "InternalServerError", http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	class, status := classify(err)
	s.respondError(w, status, class, err.Error())
}
