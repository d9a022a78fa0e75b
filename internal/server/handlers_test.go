package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clinsearch/chartsearch/internal/categories"
	"github.com/clinsearch/chartsearch/internal/clinical"
	"github.com/clinsearch/chartsearch/internal/config"
	"github.com/clinsearch/chartsearch/internal/index"
	"github.com/clinsearch/chartsearch/internal/indexer"
	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/internal/query"
	"github.com/clinsearch/chartsearch/internal/search"
	"github.com/clinsearch/chartsearch/internal/storage"
	"github.com/clinsearch/chartsearch/internal/synonyms"
)

type testServer struct {
	server   *Server
	router   http.Handler
	clinical *clinical.SQLiteSource
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithConfig(t, nil)
}

func newTestServerWithConfig(t *testing.T, tweak func(*config.Config)) *testServer {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	sqlStore, err := storage.NewSQLiteStore(filepath.Join(dir, "chartsearch.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlStore.Close() })

	clin, err := clinical.NewSQLiteSource(filepath.Join(dir, "clinical.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { clin.Close() })

	idx, err := index.NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	logger := zap.NewNop()
	syn, err := synonyms.NewStore(ctx, sqlStore, logger)
	if err != nil {
		t.Fatal(err)
	}
	cats, err := categories.NewRegistry(ctx, sqlStore, logger)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if tweak != nil {
		tweak(cfg)
	}

	searcher := search.NewSearcher(query.NewExpander(syn, cats), idx, sqlStore, search.Options{
		FacetFields:  cfg.Search.FacetFields,
		FacetSize:    cfg.Search.FacetSize,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	}, logger)
	ix := indexer.NewIndexer(clin, idx, indexer.WithWorkers(2))

	srv := NewServer(searcher, ix, syn, cats, sqlStore, clin, idx, cfg, logger)
	return &testServer{server: srv, router: srv.Router(), clinical: clin}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func seedClinicalPatient(t *testing.T, clin *clinical.SQLiteSource) int64 {
	t.Helper()
	ctx := context.Background()
	patientID, err := clin.AddPatient(ctx, "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := clin.AddObs(ctx, models.Obs{
		PatientID: patientID, ConceptName: "fever", ValueText: "38.9", Datatype: "numeric",
	}, 0); err != nil {
		t.Fatal(err)
	}
	return patientID
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status: %d", rec.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	ts := newTestServer(t)
	patientID := seedClinicalPatient(t, ts.clinical)

	rec := ts.do(t, http.MethodPost, "/api/v1/patients/"+itoa(patientID)+"/index", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("index status: %d body %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/patients/"+itoa(patientID)+"/search",
		&models.SearchRequest{Phrase: "fever"})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status: %d body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Items []map[string]interface{} `json:"items"`
		Total int                      `json:"total"`
	}
	decode(t, rec, &resp)
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("search response: %s", rec.Body.String())
	}
	if resp.Items[0]["document_type"] != models.DocTypeObs {
		t.Errorf("items must carry a type tag: %v", resp.Items[0])
	}
}

func TestHandleSearchHonorsConfiguredLimits(t *testing.T) {
	ts := newTestServerWithConfig(t, func(cfg *config.Config) {
		cfg.Search.DefaultLimit = 3
		cfg.Search.MaxLimit = 3
	})
	ctx := context.Background()

	patientID, err := ts.clinical.AddPatient(ctx, "Alice")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if _, err := ts.clinical.AddObs(ctx, models.Obs{
			PatientID: patientID, ConceptName: "fever", ValueText: itoa(int64(i)),
		}, 0); err != nil {
			t.Fatal(err)
		}
	}
	if rec := ts.do(t, http.MethodPost, "/api/v1/patients/"+itoa(patientID)+"/index", nil); rec.Code != http.StatusOK {
		t.Fatalf("index status: %d", rec.Code)
	}

	var resp struct {
		Items []map[string]interface{} `json:"items"`
		Total int                      `json:"total"`
	}

	// No limit in the request: the configured default applies.
	rec := ts.do(t, http.MethodPost, "/api/v1/patients/"+itoa(patientID)+"/search",
		&models.SearchRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status: %d body %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &resp)
	if len(resp.Items) != 3 || resp.Total != 10 {
		t.Errorf("default limit: got %d items (total %d), want 3 of 10", len(resp.Items), resp.Total)
	}

	// A requested limit above the configured maximum is capped.
	rec = ts.do(t, http.MethodPost, "/api/v1/patients/"+itoa(patientID)+"/search",
		&models.SearchRequest{Limit: 100})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status: %d body %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &resp)
	if len(resp.Items) != 3 {
		t.Errorf("max limit: got %d items, want 3", len(resp.Items))
	}
}

func TestHandleSearchBadRequests(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodPost, "/api/v1/patients/abc/search",
		&models.SearchRequest{Phrase: "fever"}); rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric patient id: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/1/search",
		bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: %d", rec.Code)
	}
}

func TestHandleSuggestions(t *testing.T) {
	ts := newTestServer(t)
	seedClinicalPatient(t, ts.clinical)
	ts.do(t, http.MethodPost, "/api/v1/patients/1/index", nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/patients/1/suggestions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("suggestions status: %d", rec.Code)
	}
	var resp struct {
		Terms []string `json:"terms"`
	}
	decode(t, rec, &resp)
	found := false
	for _, term := range resp.Terms {
		if term == "fever" {
			found = true
		}
	}
	if !found {
		t.Errorf("suggestions missing fever: %v", resp.Terms)
	}
}

func TestSynonymGroupLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/synonym-groups/", &models.SynonymGroup{
		Name:     "fever",
		Synonyms: []models.Synonym{{Term: "fever"}, {Term: "pyrexia"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status: %d body %s", rec.Code, rec.Body.String())
	}
	var group models.SynonymGroup
	decode(t, rec, &group)
	if group.ID == 0 || group.UUID == "" || len(group.Synonyms) != 2 {
		t.Fatalf("created group: %+v", group)
	}

	groupPath := "/api/v1/synonym-groups/" + itoa(group.ID)
	if rec := ts.do(t, http.MethodGet, groupPath, nil); rec.Code != http.StatusOK {
		t.Errorf("get by id: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/synonym-groups/"+group.UUID, nil); rec.Code != http.StatusOK {
		t.Errorf("get by uuid: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, groupPath+"/synonyms", &models.Synonym{Term: "febrile"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add synonym: %d body %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodGet, groupPath+"/synonyms", nil)
	var listResp struct {
		Synonyms []models.Synonym `json:"synonyms"`
	}
	decode(t, rec, &listResp)
	if len(listResp.Synonyms) != 3 {
		t.Errorf("synonyms after add: %d", len(listResp.Synonyms))
	}

	if rec := ts.do(t, http.MethodPost, groupPath+"/void", nil); rec.Code != http.StatusOK {
		t.Fatalf("void: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, groupPath, nil); rec.Code != http.StatusNotFound {
		t.Errorf("voided group should 404, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, groupPath+"/unvoid", nil); rec.Code != http.StatusOK {
		t.Fatalf("unvoid: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, groupPath, nil); rec.Code != http.StatusOK {
		t.Errorf("unvoided group should be readable, got %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodDelete, groupPath, nil); rec.Code != http.StatusOK {
		t.Fatalf("purge: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, groupPath, nil); rec.Code != http.StatusNotFound {
		t.Errorf("purged group should 404, got %d", rec.Code)
	}
}

func TestSynonymGroupValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/synonym-groups/", &models.SynonymGroup{
		Name:     "fever",
		Synonyms: []models.Synonym{{Term: "fever"}, {Term: "Fever"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate term in group: %d body %s", rec.Code, rec.Body.String())
	}

	if rec := ts.do(t, http.MethodPost, "/api/v1/synonym-groups/",
		&models.SynonymGroup{}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing name: %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodPost, "/api/v1/synonym-groups/999/void", nil); rec.Code != http.StatusNotFound {
		t.Errorf("void missing group: %d", rec.Code)
	}
}

func TestCategoryFilterEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/category-filters/", &models.CategoryFilter{
		Name: "Diagnoses", Fields: []string{models.FieldConceptName}, Enabled: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status: %d body %s", rec.Code, rec.Body.String())
	}
	var filter models.CategoryFilter
	decode(t, rec, &filter)

	rec = ts.do(t, http.MethodPost, "/api/v1/category-filters/", &models.CategoryFilter{
		Name: "diagnoses", Fields: []string{models.FieldValueText}, Enabled: true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate enabled name: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/category-filters/", &models.CategoryFilter{
		Name: "Broken", Fields: []string{"no_such_field"}, Enabled: true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field: %d", rec.Code)
	}

	path := "/api/v1/category-filters/" + itoa(filter.ID)
	if rec := ts.do(t, http.MethodGet, path, nil); rec.Code != http.StatusOK {
		t.Errorf("get: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, path, nil); rec.Code != http.StatusOK {
		t.Errorf("delete: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
		t.Errorf("deleted filter should 404, got %d", rec.Code)
	}
}

func TestBookmarkEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/bookmarks/", &models.Bookmark{
		UserID: 3, PatientID: 1, SearchPhrase: "fever", Name: "fever check",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status: %d body %s", rec.Code, rec.Body.String())
	}
	var b models.Bookmark
	decode(t, rec, &b)

	if rec := ts.do(t, http.MethodGet, "/api/v1/bookmarks/", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("list without user_id: %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/v1/bookmarks/?user_id=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var listResp struct {
		Bookmarks []models.Bookmark `json:"bookmarks"`
	}
	decode(t, rec, &listResp)
	if len(listResp.Bookmarks) != 1 {
		t.Errorf("bookmarks: %+v", listResp.Bookmarks)
	}

	if rec := ts.do(t, http.MethodDelete, "/api/v1/bookmarks/"+itoa(b.ID), nil); rec.Code != http.StatusOK {
		t.Errorf("delete: %d", rec.Code)
	}
}

func TestPreferenceEndpoints(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/api/v1/preferences/?user_id=3", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing preference should 404, got %d", rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/preferences/", &models.Preference{
		UserID: 3, EnableHistory: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status: %d body %s", rec.Code, rec.Body.String())
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/preferences/?user_id=3", nil); rec.Code != http.StatusOK {
		t.Errorf("get: %d", rec.Code)
	}
}

func TestReindexEndpoints(t *testing.T) {
	ts := newTestServer(t)
	seedClinicalPatient(t, ts.clinical)

	if rec := ts.do(t, http.MethodDelete, "/api/v1/reindex/", nil); rec.Code != http.StatusNotFound {
		t.Errorf("cancel with no job: %d", rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/reindex/", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status: %d body %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	var status indexer.JobStatus
	for {
		rec = ts.do(t, http.MethodGet, "/api/v1/reindex/", nil)
		decode(t, rec, &status)
		if !status.Running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("reindex did not finish: %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.Indexed != 1 || status.Failed != 0 {
		t.Errorf("final status: %+v", status)
	}
}

func TestReindexConflict(t *testing.T) {
	ts := newTestServer(t)

	ts.server.jobMu.Lock()
	ts.server.jobRunning = true
	ts.server.jobMu.Unlock()

	if rec := ts.do(t, http.MethodPost, "/api/v1/reindex/", nil); rec.Code != http.StatusConflict {
		t.Errorf("concurrent start should conflict, got %d", rec.Code)
	}

	ts.server.jobMu.Lock()
	ts.server.jobRunning = false
	ts.server.jobMu.Unlock()
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp map[string]interface{}
	decode(t, rec, &resp)
	for _, key := range []string{"indexed_documents", "synonym_groups", "category_filters", "reindex", "config"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("status response missing %q: %v", key, resp)
		}
	}
}

func TestProviderAndLocationEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	if _, err := ts.clinical.AddProvider(ctx, "Dr Jones"); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.clinical.AddLocation(ctx, "Ward A"); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/providers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("providers: %d", rec.Code)
	}
	var provResp struct {
		Providers []models.Provider `json:"providers"`
	}
	decode(t, rec, &provResp)
	if len(provResp.Providers) != 1 || provResp.Providers[0].Name != "Dr Jones" {
		t.Errorf("providers: %+v", provResp.Providers)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/locations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("locations: %d", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
