package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/documaster/internal/config"
	"github.com/hyperjump/documaster/internal/models"
	"github.com/hyperjump/documaster/internal/storage"
)

type uploadResponse struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Collection string `json:"collection"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.Server.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "file is required")
		return
	}
	defer file.Close()

	id := uuid.NewString()
	collection := strings.TrimSpace(r.FormValue("collection"))
	s.logger.Debug("upload request",
		zap.String("filename", header.Filename), zap.Int64("size", header.Size), zap.String("document_id", id))
	doc, err := s.indexer.IndexReader(r.Context(), header.Filename, file, id, collection)
	if err != nil {
		s.logger.Error("indexing failed", zap.String("filename", header.Filename), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, uploadResponse{DocumentID: doc.ID, Chunks: doc.Chunks, Collection: doc.Collection})
}

func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	var req models.QARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}
	s.logger.Debug("qa request", zap.String("question", req.Question), zap.Strings("document_ids", req.DocumentIDs))

	var (
		res *models.QAResult
		err error
	)
	if req.Collection == "" {
		res, err = s.qa.Answer(r.Context(), req.Question, req.DocumentIDs)
	} else {
		res, err = s.qa.AnswerIn(r.Context(), req.Question, req.Collection, req.DocumentIDs)
	}
	if err != nil {
		s.logger.Error("qa failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

type evaluateRequest struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Reference string `json:"reference"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"question", req.Question}, {"answer", req.Answer}, {"reference", req.Reference},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name+" is required")
		}
	}
	if len(missing) > 0 {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "ValidationError", Messages: missing})
		return
	}
	ev, err := s.qa.Evaluate(r.Context(), req.Question, req.Answer, req.Reference)
	if err != nil {
		s.logger.Error("evaluation failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ev)
}

type searchRequest struct {
	Query       string   `json:"query"`
	N           int      `json:"n_results,omitempty"`
	Collection  string   `json:"collection,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "query is required")
		return
	}
	results, err := s.store.Search(r.Context(), req.Query, req.N, req.Collection, req.DocumentIDs)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	docs, err := s.catalog.ListDocuments(r.Context(), max(offset, 0), limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.catalog.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	collection := r.URL.Query().Get("collection")
	if collection == "" {
		doc, err := s.catalog.GetDocument(r.Context(), id)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		collection = doc.Collection
	}
	chunks, err := s.store.GetChunksByDocumentID(r.Context(), id, collection)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if chunks == nil {
		chunks = []models.DocumentChunk{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"document_id": id, "collection": collection, "chunks": chunks})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	n, err := s.indexer.DeleteDocument(r.Context(), id, r.URL.Query().Get("collection"))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("deletion failed", zap.Error(err))
		}
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"document_id": id, "deleted_chunks": n, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.catalog.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	chunkCount, err := s.catalog.CountChunks(ctx, "")
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	names, err := s.store.Collections(ctx)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	collections := make(map[string]int, len(names))
	for _, name := range names {
		n, err := s.store.Count(ctx, name)
		if err != nil {
			n = 0
		}
		collections[name] = n
	}

	resp := map[string]any{
		"documents":   docCount,
		"chunks":      chunkCount,
		"collections": collections,
		"config": map[string]any{
			"default_collection": s.store.DefaultCollection(),
			"distance_threshold": s.store.DistanceThreshold(),
			"n_results":          s.config.VectorStore.NResults,
			"embedding_provider": s.config.Embedding.Provider,
			"llm_provider":       s.config.LLM.Provider,
			"chunk_min":          s.config.Chunking.Min,
			"chunk_max":          s.config.Chunking.Max,
			"database_path":      s.config.Storage.DatabasePath,
			"vector_path":        s.config.Storage.VectorPath,
		},
	}
	if usage, err := storage.DiskUsage(s.config.Storage.DatabasePath, s.config.Storage.VectorPath); err == nil {
		resp["disk_usage_bytes"] = usage.Bytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "NotImplementedError", "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "NotImplementedError", "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "NotFoundError", "directory not found")
			return
		}
		s.respondErr(w, err)
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "NotImplementedError", "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "ValidationError", "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories writes the current watch roots back to the config file.
func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, class string, messages ...string) {
	s.respondJSON(w, status, errorResponse{Error: class, Messages: messages})
}
