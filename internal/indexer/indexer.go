// Package indexer projects clinical records into patient documents and
// submits them to the full-text index.
package indexer

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/clinsearch/chartsearch/internal/clinical"
	"github.com/clinsearch/chartsearch/internal/index"
	"github.com/clinsearch/chartsearch/internal/models"
)

// defaultWorkers bounds bulk reindex concurrency when unconfigured.
const defaultWorkers = 4

// Indexer converts a patient's clinical records into typed documents and
// keeps the index fresh. The index is a rebuildable projection: no
// two-phase commit is attempted between the clinical store and the index.
type Indexer struct {
	source  clinical.Source
	index   index.PatientIndex
	workers int
	logger  *zap.Logger

	// patientLocks serializes concurrent reindexes of the same patient so
	// two runs can never interleave documents; different patients proceed
	// in parallel.
	patientLocks sync.Map

	// submit schedules one bulk task on the pool; replaced in tests to
	// exercise scheduling failures.
	submit func(pool *ants.Pool, task func()) error
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for per-patient debug output.
func WithLogger(l *zap.Logger) Option {
	return func(ix *Indexer) { ix.logger = l }
}

// WithWorkers sets the bulk reindex worker pool size.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// NewIndexer creates an indexer reading from source and writing to idx.
func NewIndexer(source clinical.Source, idx index.PatientIndex, opts ...Option) *Indexer {
	ix := &Indexer{
		source:  source,
		index:   idx,
		workers: defaultWorkers,
		submit:  func(pool *ants.Pool, task func()) error { return pool.Submit(task) },
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

func (ix *Indexer) lockPatient(patientID int64) *sync.Mutex {
	mu, _ := ix.patientLocks.LoadOrStore(patientID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// IndexPatientData deletes the patient's existing documents and submits a
// fresh set derived from current clinical data. Idempotent: repeated calls
// with unchanged data yield the same index state.
func (ix *Indexer) IndexPatientData(ctx context.Context, patientID int64) error {
	mu := ix.lockPatient(patientID)
	mu.Lock()
	defer mu.Unlock()

	docs, err := ix.projectPatient(ctx, patientID)
	if err != nil {
		return fmt.Errorf("%w: project patient %d: %v", models.ErrIndexing, patientID, err)
	}
	if err := ix.index.DeletePatientDocuments(ctx, patientID); err != nil {
		return fmt.Errorf("delete patient %d documents: %w", patientID, err)
	}
	if err := ix.index.SubmitDocuments(ctx, docs); err != nil {
		return fmt.Errorf("submit patient %d documents: %w", patientID, err)
	}
	if ix.logger != nil {
		ix.logger.Debug("patient indexed",
			zap.Int64("patient_id", patientID), zap.Int("documents", len(docs)))
	}
	return nil
}

// IndexAllPatientData reindexes all patients (or the first limit by id)
// through a bounded worker pool. A failure for one patient is reported to
// the sink and does not abort the run. Cancellation is checked at patient
// boundaries; in-flight patients complete their atomic delete-then-submit.
func (ix *Indexer) IndexAllPatientData(ctx context.Context, limit int, sink ProgressSink) error {
	ids, err := ix.source.ListPatientIDs(ctx, limit)
	if err != nil {
		return fmt.Errorf("list patients: %w", err)
	}
	if sink != nil {
		sink.Started(len(ids))
	}

	pool, err := ants.NewPool(ix.workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		indexed   int
		failed    int
		canceled  bool
		submitErr error
	)
	for _, patientID := range ids {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		patientID := patientID
		wg.Add(1)
		submitErr = ix.submit(pool, func() {
			defer wg.Done()
			indexErr := ix.IndexPatientData(ctx, patientID)
			if indexErr != nil && ix.logger != nil {
				ix.logger.Warn("bulk reindex patient failed",
					zap.Int64("patient_id", patientID), zap.Error(indexErr))
			}
			mu.Lock()
			if indexErr != nil {
				failed++
			} else {
				indexed++
			}
			mu.Unlock()
			if sink != nil {
				sink.PatientDone(patientID, indexErr)
			}
		})
		if submitErr != nil {
			// The task never ran; undo its Add and stop scheduling. In-flight
			// patients still drain and the sink is still told the run ended.
			wg.Done()
			break
		}
	}
	wg.Wait()

	if sink != nil {
		sink.Finished(indexed, failed, canceled)
	}
	if ix.logger != nil {
		ix.logger.Info("bulk reindex finished",
			zap.Int("indexed", indexed), zap.Int("failed", failed), zap.Bool("canceled", canceled))
	}
	if submitErr != nil {
		return fmt.Errorf("submit reindex task: %w", submitErr)
	}
	if canceled {
		return ctx.Err()
	}
	return nil
}

// projectPatient derives the full document set for a patient: one document
// per encounter, per distinct form, per flattened observation (plus a marker
// per obs-group), per referenced provider and location, and per distinct
// observation datatype.
func (ix *Indexer) projectPatient(ctx context.Context, patientID int64) ([]*models.PatientDocument, error) {
	encounters, err := ix.source.Encounters(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load encounters: %w", err)
	}
	observations, err := ix.source.Observations(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	forms, err := ix.source.Forms(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load forms: %w", err)
	}

	// byID dedupes reference documents shared across records.
	byID := make(map[string]*models.PatientDocument)
	var docs []*models.PatientDocument
	add := func(doc *models.PatientDocument) {
		if _, dup := byID[doc.ID]; dup {
			return
		}
		byID[doc.ID] = doc
		docs = append(docs, doc)
	}

	providers := make(map[int64]string)
	locations := make(map[int64]string)
	datatypes := make(map[string]struct{})

	for _, e := range encounters {
		add(&models.PatientDocument{
			ID:           models.DocumentID(patientID, models.DocTypeEncounter, e.ID),
			PatientID:    patientID,
			DocumentType: models.DocTypeEncounter,
			RecordID:     e.ID,
			Fields: map[string]string{
				models.FieldEncounterType: e.Type,
			},
			Facets: facetValues(e.Provider.Name, e.Location.Name, ""),
		})
		if e.Provider.ID != 0 {
			providers[e.Provider.ID] = e.Provider.Name
		}
		if e.Location.ID != 0 {
			locations[e.Location.ID] = e.Location.Name
		}
	}

	for _, f := range forms {
		add(&models.PatientDocument{
			ID:           models.DocumentID(patientID, models.DocTypeForm, f.ID),
			PatientID:    patientID,
			DocumentType: models.DocTypeForm,
			RecordID:     f.ID,
			Fields: map[string]string{
				models.FieldFormName: f.Name,
			},
		})
	}

	var walk func(obs models.Obs)
	walk = func(obs models.Obs) {
		if obs.Provider.ID != 0 {
			providers[obs.Provider.ID] = obs.Provider.Name
		}
		if obs.Location.ID != 0 {
			locations[obs.Location.ID] = obs.Location.Name
		}
		if obs.IsGroup() {
			add(&models.PatientDocument{
				ID:           models.DocumentID(patientID, models.DocTypeObsGroup, obs.ID),
				PatientID:    patientID,
				DocumentType: models.DocTypeObsGroup,
				RecordID:     obs.ID,
				Fields: map[string]string{
					models.FieldConceptName: obs.ConceptName,
				},
			})
			for _, member := range obs.GroupMembers {
				walk(member)
			}
			return
		}
		if obs.Datatype != "" {
			datatypes[obs.Datatype] = struct{}{}
		}
		add(&models.PatientDocument{
			ID:           models.DocumentID(patientID, models.DocTypeObs, obs.ID),
			PatientID:    patientID,
			DocumentType: models.DocTypeObs,
			RecordID:     obs.ID,
			Fields: map[string]string{
				models.FieldConceptName: obs.ConceptName,
				models.FieldValueText:   obs.ValueText,
				models.FieldUnits:       obs.Units,
			},
			Facets: facetValues(obs.Provider.Name, obs.Location.Name, obs.Datatype),
		})
	}
	for _, obs := range observations {
		walk(obs)
	}

	for id, name := range providers {
		add(&models.PatientDocument{
			ID:           models.DocumentID(patientID, models.DocTypeProvider, id),
			PatientID:    patientID,
			DocumentType: models.DocTypeProvider,
			RecordID:     id,
			Fields: map[string]string{
				models.FieldProviderName: name,
			},
		})
	}
	for id, name := range locations {
		add(&models.PatientDocument{
			ID:           models.DocumentID(patientID, models.DocTypeLocation, id),
			PatientID:    patientID,
			DocumentType: models.DocTypeLocation,
			RecordID:     id,
			Fields: map[string]string{
				models.FieldLocationName: name,
			},
		})
	}
	for datatype := range datatypes {
		add(&models.PatientDocument{
			ID:           models.DatatypeDocumentID(patientID, datatype),
			PatientID:    patientID,
			DocumentType: models.DocTypeDatatype,
			Fields: map[string]string{
				models.FieldDatatype: datatype,
			},
		})
	}
	return docs, nil
}

// facetValues builds the facet map, omitting empty values so facet counts
// only cover documents that expose a value.
func facetValues(provider, location, datatype string) map[string]string {
	m := make(map[string]string, 3)
	if provider != "" {
		m[models.FieldProviderName] = provider
	}
	if location != "" {
		m[models.FieldLocationName] = location
	}
	if datatype != "" {
		m[models.FieldDatatype] = datatype
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
