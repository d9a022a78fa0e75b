// Package server provides the HTTP API for chartsearch.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/clinsearch/chartsearch/internal/categories"
	"github.com/clinsearch/chartsearch/internal/clinical"
	"github.com/clinsearch/chartsearch/internal/config"
	"github.com/clinsearch/chartsearch/internal/index"
	"github.com/clinsearch/chartsearch/internal/indexer"
	"github.com/clinsearch/chartsearch/internal/search"
	"github.com/clinsearch/chartsearch/internal/storage"
	"github.com/clinsearch/chartsearch/internal/synonyms"
)

// Server is the HTTP server for the chartsearch API.
type Server struct {
	searcher   *search.Searcher
	indexer    *indexer.Indexer
	synonyms   *synonyms.Store
	categories *categories.Registry
	storage    storage.Store
	clinical   clinical.Source
	index      index.PatientIndex
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server

	// One bulk reindex job runs at a time; a second start conflicts.
	jobMu      sync.Mutex
	jobRunning bool
	jobCancel  context.CancelFunc
	tracker    *indexer.JobTracker
}

// NewServer creates a server with the given dependencies.
func NewServer(
	searcher *search.Searcher,
	idx *indexer.Indexer,
	syn *synonyms.Store,
	cats *categories.Registry,
	store storage.Store,
	clin clinical.Source,
	patientIndex index.PatientIndex,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		searcher:   searcher,
		indexer:    idx,
		synonyms:   syn,
		categories: cats,
		storage:    store,
		clinical:   clin,
		index:      patientIndex,
		config:     cfg,
		logger:     logger,
		tracker:    indexer.NewJobTracker(),
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)

	r.Route("/api/v1/patients/{patientID}", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/suggestions", s.handleSuggestions)
		r.Post("/index", s.handleIndexPatient)
	})

	r.Route("/api/v1/reindex", func(r chi.Router) {
		r.Post("/", s.handleReindexStart)
		r.Get("/", s.handleReindexStatus)
		r.Delete("/", s.handleReindexCancel)
	})

	r.Route("/api/v1/synonym-groups", func(r chi.Router) {
		r.Post("/", s.handleSaveSynonymGroup)
		r.Get("/", s.handleListSynonymGroups)
		r.Get("/count", s.handleCountSynonymGroups)
		r.Get("/{id}", s.handleGetSynonymGroup)
		r.Post("/{id}/void", s.handleVoidSynonymGroup)
		r.Post("/{id}/unvoid", s.handleUnvoidSynonymGroup)
		r.Delete("/{id}", s.handlePurgeSynonymGroup)
		r.Get("/{id}/synonyms", s.handleListSynonyms)
		r.Post("/{id}/synonyms", s.handleSaveSynonym)
	})
	r.Route("/api/v1/synonyms/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSynonym)
		r.Post("/void", s.handleVoidSynonym)
		r.Delete("/", s.handlePurgeSynonym)
	})

	r.Route("/api/v1/category-filters", func(r chi.Router) {
		r.Post("/", s.handleSaveCategoryFilter)
		r.Get("/", s.handleListCategoryFilters)
		r.Get("/{id}", s.handleGetCategoryFilter)
		r.Delete("/{id}", s.handleDeleteCategoryFilter)
	})

	r.Route("/api/v1/bookmarks", func(r chi.Router) {
		r.Post("/", s.handleSaveBookmark)
		r.Get("/", s.handleListBookmarks)
		r.Get("/{id}", s.handleGetBookmark)
		r.Delete("/{id}", s.handleDeleteBookmark)
	})
	r.Route("/api/v1/history", func(r chi.Router) {
		r.Get("/", s.handleListHistory)
		r.Delete("/{id}", s.handleDeleteHistory)
	})
	r.Route("/api/v1/notes", func(r chi.Router) {
		r.Post("/", s.handleSaveNote)
		r.Get("/", s.handleListNotes)
		r.Delete("/{id}", s.handleDeleteNote)
	})
	r.Route("/api/v1/preferences", func(r chi.Router) {
		r.Post("/", s.handleSavePreference)
		r.Get("/", s.handleGetPreferenceByUser)
		r.Delete("/{id}", s.handleDeletePreference)
	})

	r.Get("/api/v1/providers", s.handleListProviders)
	r.Get("/api/v1/locations", s.handleListLocations)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and cancels any running reindex job.
func (s *Server) Stop(ctx context.Context) error {
	s.jobMu.Lock()
	if s.jobCancel != nil {
		s.jobCancel()
	}
	s.jobMu.Unlock()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
