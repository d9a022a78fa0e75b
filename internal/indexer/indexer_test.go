package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/panjf2000/ants/v2"

	"github.com/clinsearch/chartsearch/internal/clinical"
	"github.com/clinsearch/chartsearch/internal/index"
	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/internal/query"
)

func newTestIndexer(t *testing.T) (*Indexer, *clinical.SQLiteSource, *index.BleveIndex) {
	t.Helper()
	src, err := clinical.NewSQLiteSource(filepath.Join(t.TempDir(), "clinical.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { src.Close() })

	idx, err := index.NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	return NewIndexer(src, idx), src, idx
}

// seedPatient inserts one patient with an encounter, a form, an obs group
// with two members, and a standalone obs. Returns the patient id.
func seedPatient(t *testing.T, src *clinical.SQLiteSource, name string) int64 {
	t.Helper()
	ctx := context.Background()

	patientID, err := src.AddPatient(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	providerID, _ := src.AddProvider(ctx, "Dr Jones "+name)
	locationID, _ := src.AddLocation(ctx, "Ward A "+name)
	formID, _ := src.AddForm(ctx, "Admission "+name)

	if _, err := src.AddEncounter(ctx, models.Encounter{
		PatientID: patientID,
		Type:      "admission",
		Provider:  models.Provider{ID: providerID},
		Location:  models.Location{ID: locationID},
	}, formID); err != nil {
		t.Fatal(err)
	}

	groupID, err := src.AddObs(ctx, models.Obs{
		PatientID: patientID, ConceptName: "vital signs",
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.AddObs(ctx, models.Obs{
		PatientID: patientID, ConceptName: "temperature", ValueText: "38.9",
		Units: "C", Datatype: "numeric", Provider: models.Provider{ID: providerID},
	}, groupID); err != nil {
		t.Fatal(err)
	}
	if _, err := src.AddObs(ctx, models.Obs{
		PatientID: patientID, ConceptName: "pulse", ValueText: "80", Datatype: "numeric",
	}, groupID); err != nil {
		t.Fatal(err)
	}
	if _, err := src.AddObs(ctx, models.Obs{
		PatientID: patientID, ConceptName: "weight", ValueText: "70", Units: "kg", Datatype: "numeric",
	}, 0); err != nil {
		t.Fatal(err)
	}
	return patientID
}

func docTypeCounts(t *testing.T, idx *index.BleveIndex, patientID int64) map[string]int {
	t.Helper()
	res, err := idx.Query(context.Background(),
		&query.Expanded{PatientID: patientID, MatchAll: true}, index.QueryOptions{Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	counts := make(map[string]int)
	for _, hit := range res.Hits {
		counts[hit.DocumentType]++
	}
	return counts
}

func TestIndexPatientDataProjection(t *testing.T) {
	ix, src, idx := newTestIndexer(t)
	patientID := seedPatient(t, src, "Alice")

	if err := ix.IndexPatientData(context.Background(), patientID); err != nil {
		t.Fatal(err)
	}

	counts := docTypeCounts(t, idx, patientID)
	want := map[string]int{
		models.DocTypeEncounter: 1,
		models.DocTypeForm:      1,
		models.DocTypeObsGroup:  1,
		models.DocTypeObs:       3,
		models.DocTypeProvider:  1,
		models.DocTypeLocation:  1,
		models.DocTypeDatatype:  1,
	}
	for docType, n := range want {
		if counts[docType] != n {
			t.Errorf("%s documents: got %d, want %d (all: %v)", docType, counts[docType], n, counts)
		}
	}
}

func TestIndexPatientDataIsIdempotent(t *testing.T) {
	ix, src, idx := newTestIndexer(t)
	patientID := seedPatient(t, src, "Alice")
	ctx := context.Background()

	if err := ix.IndexPatientData(ctx, patientID); err != nil {
		t.Fatal(err)
	}
	first, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.IndexPatientData(ctx, patientID); err != nil {
		t.Fatal(err)
	}
	second, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("reindex changed doc count: %d -> %d", first, second)
	}
}

func TestIndexPatientDataLeavesOthersUntouched(t *testing.T) {
	ix, src, idx := newTestIndexer(t)
	ctx := context.Background()

	alice := seedPatient(t, src, "Alice")
	bob := seedPatient(t, src, "Bob")
	if err := ix.IndexPatientData(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if err := ix.IndexPatientData(ctx, bob); err != nil {
		t.Fatal(err)
	}

	bobBefore := docTypeCounts(t, idx, bob)
	if err := ix.IndexPatientData(ctx, alice); err != nil {
		t.Fatal(err)
	}
	bobAfter := docTypeCounts(t, idx, bob)
	for docType, n := range bobBefore {
		if bobAfter[docType] != n {
			t.Errorf("other patient disturbed: %s %d -> %d", docType, n, bobAfter[docType])
		}
	}
}

func TestIndexAllPatientData(t *testing.T) {
	ix, src, idx := newTestIndexer(t)
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		seedPatient(t, src, name)
	}

	tracker := NewJobTracker()
	if err := ix.IndexAllPatientData(context.Background(), 0, tracker); err != nil {
		t.Fatal(err)
	}

	status := tracker.Snapshot()
	if status.Running {
		t.Error("tracker still running after completion")
	}
	if status.Total != 3 || status.Indexed != 3 || status.Failed != 0 {
		t.Errorf("status: %+v", status)
	}

	count, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Error("bulk reindex left the index empty")
	}
}

func TestIndexAllPatientDataHonorsLimit(t *testing.T) {
	ix, src, _ := newTestIndexer(t)
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		seedPatient(t, src, name)
	}

	tracker := NewJobTracker()
	if err := ix.IndexAllPatientData(context.Background(), 2, tracker); err != nil {
		t.Fatal(err)
	}
	if status := tracker.Snapshot(); status.Total != 2 || status.Indexed != 2 {
		t.Errorf("status: %+v", status)
	}
}

// fakeSource drives the bulk loop without a database.
type fakeSource struct {
	ids      []int64
	failIDs  map[int64]bool
	patients map[int64]*models.Patient
}

func (f *fakeSource) ListPatientIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit > 0 && limit < len(f.ids) {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}

func (f *fakeSource) GetPatient(ctx context.Context, id int64) (*models.Patient, error) {
	if p, ok := f.patients[id]; ok {
		return p, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeSource) Encounters(ctx context.Context, patientID int64) ([]models.Encounter, error) {
	if f.failIDs[patientID] {
		return nil, fmt.Errorf("synthetic encounter failure for %d", patientID)
	}
	return nil, nil
}

func (f *fakeSource) Observations(ctx context.Context, patientID int64) ([]models.Obs, error) {
	return []models.Obs{{ID: patientID*100 + 1, PatientID: patientID, ConceptName: "fever"}}, nil
}

func (f *fakeSource) Forms(ctx context.Context, patientID int64) ([]models.Form, error) {
	return nil, nil
}

func (f *fakeSource) AllProviders(ctx context.Context) ([]models.Provider, error) { return nil, nil }
func (f *fakeSource) AllLocations(ctx context.Context) ([]models.Location, error) { return nil, nil }
func (f *fakeSource) Close() error                                                { return nil }

func TestIndexAllPatientDataReportsFailures(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	src := &fakeSource{ids: []int64{1, 2, 3}, failIDs: map[int64]bool{2: true}}
	ix := NewIndexer(src, idx, WithWorkers(2))

	tracker := NewJobTracker()
	if err := ix.IndexAllPatientData(context.Background(), 0, tracker); err != nil {
		t.Fatal(err)
	}

	status := tracker.Snapshot()
	if status.Indexed != 2 || status.Failed != 1 {
		t.Errorf("status: %+v", status)
	}
	if len(status.FailedPatients) != 1 || status.FailedPatients[0] != 2 {
		t.Errorf("failed patients: %v", status.FailedPatients)
	}
}

func TestIndexPatientDataWrapsProjectionErrors(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	src := &fakeSource{failIDs: map[int64]bool{7: true}}
	ix := NewIndexer(src, idx)

	indexErr := ix.IndexPatientData(context.Background(), 7)
	if !errors.Is(indexErr, models.ErrIndexing) {
		t.Errorf("projection failure should wrap the indexing sentinel, got %v", indexErr)
	}
}

func TestIndexAllPatientDataCancellation(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	src := &fakeSource{ids: []int64{1, 2, 3}}
	ix := NewIndexer(src, idx)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tracker := NewJobTracker()
	runErr := ix.IndexAllPatientData(ctx, 0, tracker)
	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("canceled run should return the context error, got %v", runErr)
	}
	status := tracker.Snapshot()
	if !status.Canceled {
		t.Errorf("status should record cancellation: %+v", status)
	}
	if status.Running {
		t.Errorf("canceled run must still finish the tracker: %+v", status)
	}
	if status.Indexed != 0 {
		t.Errorf("no patient should index after cancellation, got %d", status.Indexed)
	}
}

func TestIndexAllPatientDataSubmitFailureFinishesRun(t *testing.T) {
	idx, err := index.NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	src := &fakeSource{ids: []int64{1, 2, 3}}
	ix := NewIndexer(src, idx, WithWorkers(1))

	schedErr := errors.New("pool saturated")
	calls := 0
	ix.submit = func(pool *ants.Pool, task func()) error {
		calls++
		if calls > 1 {
			return schedErr
		}
		return pool.Submit(task)
	}

	tracker := NewJobTracker()
	runErr := ix.IndexAllPatientData(context.Background(), 0, tracker)
	if !errors.Is(runErr, schedErr) {
		t.Fatalf("scheduling failure should surface, got %v", runErr)
	}

	status := tracker.Snapshot()
	if status.Running {
		t.Errorf("tracker still running after scheduling failure: %+v", status)
	}
	if status.Indexed != 1 || status.Failed != 0 {
		t.Errorf("the already-scheduled patient should complete: %+v", status)
	}
}
