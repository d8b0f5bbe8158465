// Package server provides the HTTP API for documaster.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/documaster/internal/config"
	"github.com/hyperjump/documaster/internal/indexer"
	"github.com/hyperjump/documaster/internal/qa"
	"github.com/hyperjump/documaster/internal/storage"
	"github.com/hyperjump/documaster/internal/vectorstore"
)

// WatchService manages watched inbox directories. *watcher.Watcher implements it.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the documaster API.
type Server struct {
	qa         *qa.Service
	indexer    *indexer.Indexer
	store      *vectorstore.Store
	catalog    storage.Catalog
	config     *config.Config
	configPath string
	configMu   sync.Mutex
	watch      WatchService
	qaLimiter  *rate.Limiter
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies. watch may be nil when
// no inbox is configured; configPath, when set, receives watch directory changes.
func NewServer(
	svc *qa.Service,
	idx *indexer.Indexer,
	store *vectorstore.Store,
	catalog storage.Catalog,
	cfg *config.Config,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		qa:         svc,
		indexer:    idx,
		store:      store,
		catalog:    catalog,
		config:     cfg,
		configPath: configPath,
		watch:      watch,
		logger:     logger,
	}
	if cfg.Server.QARateLimit > 0 {
		s.qaLimiter = rate.NewLimiter(rate.Limit(cfg.Server.QARateLimit), max(cfg.Server.QABurst, 1))
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	timeout := time.Duration(s.config.Server.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Post("/upload/", s.handleUpload)
	r.With(s.limitQA).Post("/qa", s.handleQA)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.handleUpload)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/documents/{id}/chunks", s.handleGetChunks)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Post("/search", s.handleSearch)
		r.With(s.limitQA).Post("/qa", s.handleQA)
		r.With(s.limitQA).Post("/evaluate", s.handleEvaluate)
		r.Get("/status", s.handleStatus)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// limitQA rejects requests beyond the configured QA rate with 429.
func (s *Server) limitQA(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.qaLimiter != nil && !s.qaLimiter.Allow() {
			s.respondError(w, http.StatusTooManyRequests, "RateLimitExceeded", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
