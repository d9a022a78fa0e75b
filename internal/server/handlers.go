package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/pkg/utils"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	patientID, err := urlID(r, "patientID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid patient id")
		return
	}
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.PatientID = patientID
	s.logger.Debug("search request",
		zap.Int64("patient_id", patientID),
		zap.String("phrase", utils.Truncate(req.Phrase, 120)),
		zap.Strings("categories", req.Categories))
	response, err := s.searcher.Search(r.Context(), &req)
	if err != nil {
		s.respondStoreError(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	patientID, err := urlID(r, "patientID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid patient id")
		return
	}
	terms, err := s.searcher.Suggestions(r.Context(), patientID)
	if err != nil {
		s.respondStoreError(w, "suggestions failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"terms": terms})
}

func (s *Server) handleIndexPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := urlID(r, "patientID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid patient id")
		return
	}
	s.logger.Debug("index patient request", zap.Int64("patient_id", patientID))
	if err := s.indexer.IndexPatientData(r.Context(), patientID); err != nil {
		s.respondStoreError(w, "patient indexing failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"patient_id": patientID, "status": "indexed"})
}

type reindexRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Server) handleReindexStart(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = s.config.Reindex.DefaultLimit
	}

	s.jobMu.Lock()
	if s.jobRunning {
		s.jobMu.Unlock()
		s.respondError(w, http.StatusConflict, "a reindex job is already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.jobRunning = true
	s.jobCancel = cancel
	s.jobMu.Unlock()

	s.logger.Info("bulk reindex started", zap.Int("limit", req.Limit))
	go func() {
		defer cancel()
		if err := s.indexer.IndexAllPatientData(ctx, req.Limit, s.tracker); err != nil {
			s.logger.Warn("bulk reindex ended with error", zap.Error(err))
		}
		s.jobMu.Lock()
		s.jobRunning = false
		s.jobCancel = nil
		s.jobMu.Unlock()
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleReindexStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleReindexCancel(w http.ResponseWriter, r *http.Request) {
	s.jobMu.Lock()
	running := s.jobRunning
	if s.jobCancel != nil {
		s.jobCancel()
	}
	s.jobMu.Unlock()
	if !running {
		s.respondError(w, http.StatusNotFound, "no reindex job is running")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "canceling"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.index.DocCount()
	if err != nil {
		s.logger.Error("status: index doc count failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	groupCount, err := s.synonyms.CountGroups(ctx, false)
	if err != nil {
		s.logger.Error("status: count synonym groups failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	filters, err := s.categories.List(ctx)
	if err != nil {
		s.logger.Error("status: list category filters failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"indexed_documents": docCount,
		"synonym_groups":    groupCount,
		"category_filters":  len(filters),
		"reindex":           s.tracker.Snapshot(),
		"config": map[string]interface{}{
			"database_path":    s.config.Storage.DatabasePath,
			"bleve_index_path": s.config.Storage.BleveIndexPath,
			"facet_fields":     s.config.Search.FacetFields,
			"reindex_workers":  s.config.Reindex.Workers,
		},
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.clinical.AllProviders(r.Context())
	if err != nil {
		s.respondStoreError(w, "list providers failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"providers": providers})
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.clinical.AllLocations(r.Context())
	if err != nil {
		s.respondStoreError(w, "list locations failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"locations": locations})
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps domain errors to HTTP statuses: validation to 400,
// not-found to 404, anything else to 500.
func (s *Server) respondStoreError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error(msg, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}
