package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/clinsearch/chartsearch/internal/models"
)

func (s *Server) handleSaveSynonymGroup(w http.ResponseWriter, r *http.Request) {
	var group models.SynonymGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := s.synonyms.SaveGroup(r.Context(), &group)
	if err != nil {
		s.respondStoreError(w, "save synonym group failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListSynonymGroups(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("is_category"); v != "" {
		isCategory, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid is_category")
			return
		}
		groups, err := s.synonyms.ListGroupsByCategory(r.Context(), isCategory)
		if err != nil {
			s.respondStoreError(w, "list synonym groups failed", err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
		return
	}
	groups, err := s.synonyms.ListGroups(r.Context())
	if err != nil {
		s.respondStoreError(w, "list synonym groups failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

func (s *Server) handleCountSynonymGroups(w http.ResponseWriter, r *http.Request) {
	onlyCategories, _ := strconv.ParseBool(r.URL.Query().Get("only_categories"))
	count, err := s.synonyms.CountGroups(r.Context(), onlyCategories)
	if err != nil {
		s.respondStoreError(w, "count synonym groups failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *Server) handleGetSynonymGroup(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		group, gerr := s.synonyms.GetGroupByUUID(r.Context(), urlParam(r, "id"))
		if gerr != nil {
			s.respondStoreError(w, "get synonym group failed", gerr)
			return
		}
		s.respondJSON(w, http.StatusOK, group)
		return
	}
	group, err := s.synonyms.GetGroup(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get synonym group failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, group)
}

func (s *Server) handleVoidSynonymGroup(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.synonyms.VoidGroup(r.Context(), id); err != nil {
		s.respondStoreError(w, "void synonym group failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "voided"})
}

func (s *Server) handleUnvoidSynonymGroup(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.synonyms.UnvoidGroup(r.Context(), id); err != nil {
		s.respondStoreError(w, "unvoid synonym group failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "unvoided"})
}

func (s *Server) handlePurgeSynonymGroup(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	s.logger.Debug("purge synonym group request", zap.Int64("id", id))
	if err := s.synonyms.PurgeGroup(r.Context(), id); err != nil {
		s.respondStoreError(w, "purge synonym group failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

func (s *Server) handleListSynonyms(w http.ResponseWriter, r *http.Request) {
	groupID, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	syns, err := s.synonyms.ListSynonymsByGroup(r.Context(), groupID)
	if err != nil {
		s.respondStoreError(w, "list synonyms failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"synonyms": syns})
}

func (s *Server) handleSaveSynonym(w http.ResponseWriter, r *http.Request) {
	groupID, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	var syn models.Synonym
	if err := json.NewDecoder(r.Body).Decode(&syn); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	syn.GroupID = groupID
	saved, err := s.synonyms.SaveSynonym(r.Context(), &syn)
	if err != nil {
		s.respondStoreError(w, "save synonym failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleGetSynonym(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	syn, err := s.synonyms.GetSynonym(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get synonym failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, syn)
}

func (s *Server) handleVoidSynonym(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.synonyms.VoidSynonym(r.Context(), id); err != nil {
		s.respondStoreError(w, "void synonym failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "voided"})
}

func (s *Server) handlePurgeSynonym(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.synonyms.PurgeSynonym(r.Context(), id); err != nil {
		s.respondStoreError(w, "purge synonym failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

func (s *Server) handleSaveCategoryFilter(w http.ResponseWriter, r *http.Request) {
	var filter models.CategoryFilter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := s.categories.Save(r.Context(), &filter)
	if err != nil {
		s.respondStoreError(w, "save category filter failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListCategoryFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := s.categories.List(r.Context())
	if err != nil {
		s.respondStoreError(w, "list category filters failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"filters": filters})
}

func (s *Server) handleGetCategoryFilter(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		filter, gerr := s.categories.GetByUUID(r.Context(), urlParam(r, "id"))
		if gerr != nil {
			s.respondStoreError(w, "get category filter failed", gerr)
			return
		}
		s.respondJSON(w, http.StatusOK, filter)
		return
	}
	filter, err := s.categories.Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get category filter failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, filter)
}

func (s *Server) handleDeleteCategoryFilter(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.categories.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete category filter failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSaveBookmark(w http.ResponseWriter, r *http.Request) {
	var b models.Bookmark
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := s.storage.SaveBookmark(r.Context(), &b)
	if err != nil {
		s.respondStoreError(w, "save bookmark failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	userID := queryInt64(r, "user_id")
	if userID <= 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	bookmarks, err := s.storage.ListBookmarks(r.Context(), userID)
	if err != nil {
		s.respondStoreError(w, "list bookmarks failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"bookmarks": bookmarks})
}

func (s *Server) handleGetBookmark(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	b, err := s.storage.GetBookmark(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get bookmark failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.storage.DeleteBookmark(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete bookmark failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	userID := queryInt64(r, "user_id")
	if userID <= 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	entries, err := s.storage.ListHistory(r.Context(), userID)
	if err != nil {
		s.respondStoreError(w, "list history failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.storage.DeleteHistory(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete history failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSaveNote(w http.ResponseWriter, r *http.Request) {
	var n models.Note
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := s.storage.SaveNote(r.Context(), &n)
	if err != nil {
		s.respondStoreError(w, "save note failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	patientID := queryInt64(r, "patient_id")
	if patientID <= 0 {
		s.respondError(w, http.StatusBadRequest, "patient_id is required")
		return
	}
	notes, err := s.storage.ListNotes(r.Context(), patientID)
	if err != nil {
		s.respondStoreError(w, "list notes failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.storage.DeleteNote(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete note failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSavePreference(w http.ResponseWriter, r *http.Request) {
	var p models.Preference
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := s.storage.SavePreference(r.Context(), &p)
	if err != nil {
		s.respondStoreError(w, "save preference failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleGetPreferenceByUser(w http.ResponseWriter, r *http.Request) {
	userID := queryInt64(r, "user_id")
	if userID <= 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	p, err := s.storage.GetPreferenceByUser(r.Context(), userID)
	if err != nil {
		s.respondStoreError(w, "get preference failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePreference(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.storage.DeletePreference(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete preference failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
