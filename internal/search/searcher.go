// Package search executes chart searches: phrase expansion, index query,
// and mapping of raw hits into typed chart list items.
package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clinsearch/chartsearch/internal/index"
	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/internal/query"
	"github.com/clinsearch/chartsearch/internal/storage"
)

// Searcher runs patient chart searches end to end. History recording is
// best effort; a storage failure never fails the search itself.
type Searcher struct {
	expander     *query.Expander
	index        index.PatientIndex
	store        storage.Store
	facetFields  []string
	facetSize    int
	defaultLimit int
	maxLimit     int
	logger       *zap.Logger
}

// Options carries the configured query settings: facet fields and size, and
// the default/maximum result limits applied to every request.
type Options struct {
	FacetFields  []string
	FacetSize    int
	DefaultLimit int
	MaxLimit     int
}

// NewSearcher wires the expander, index, and storage collaborators. Zero
// option values fall back to the standard defaults.
func NewSearcher(expander *query.Expander, idx index.PatientIndex, store storage.Store, opts Options, logger *zap.Logger) *Searcher {
	if len(opts.FacetFields) == 0 {
		opts.FacetFields = models.FacetEligibleFields
	}
	if opts.FacetSize <= 0 {
		opts.FacetSize = 10
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 500
	}
	return &Searcher{
		expander:     expander,
		index:        idx,
		store:        store,
		facetFields:  opts.FacetFields,
		facetSize:    opts.FacetSize,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		logger:       logger,
	}
}

// Search validates and executes a search request. Hits whose document type
// is unrecognized are skipped and counted, never fatal: the index may hold
// documents written by a newer version.
func (s *Searcher) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = s.defaultLimit
	}
	if req.Limit > s.maxLimit {
		req.Limit = s.maxLimit
	}
	start := time.Now()

	expanded := s.expander.Expand(req.PatientID, req.Phrase, req.Categories)
	result, err := s.index.Query(ctx, expanded, index.QueryOptions{
		Limit:       req.Limit,
		FacetFields: s.facetFields,
		FacetSize:   s.facetSize,
	})
	if err != nil {
		return nil, err
	}

	resp := &models.SearchResponse{
		Items:     make([]models.ChartListItem, 0, len(result.Hits)),
		Facets:    result.Facets,
		Total:     result.Total,
		Phrase:    req.Phrase,
		QueryTime: time.Since(start).Milliseconds(),
	}
	for _, hit := range result.Hits {
		item, err := itemFromHit(hit)
		if err != nil {
			resp.Skipped++
			if s.logger != nil {
				s.logger.Warn("skipping hit with unknown document type",
					zap.String("doc_id", hit.ID), zap.String("document_type", hit.DocumentType))
			}
			continue
		}
		resp.Items = append(resp.Items, item)
	}

	s.recordHistory(ctx, req)
	return resp, nil
}

// Suggestions returns typeahead terms drawn from the patient's own indexed
// documents.
func (s *Searcher) Suggestions(ctx context.Context, patientID int64) ([]string, error) {
	return s.index.SuggestTerms(ctx, patientID)
}

// recordHistory writes a history entry unless the user has disabled history
// in their preferences. A missing preference row means the default applies:
// history on.
func (s *Searcher) recordHistory(ctx context.Context, req *models.SearchRequest) {
	if s.store == nil || req.UserID <= 0 || req.Phrase == "" {
		return
	}
	if pref, err := s.store.GetPreferenceByUser(ctx, req.UserID); err == nil && !pref.EnableHistory {
		return
	}
	_, err := s.store.SaveHistory(ctx, &models.HistoryEntry{
		SearchPhrase: req.Phrase,
		PatientID:    req.PatientID,
		UserID:       req.UserID,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("failed to record search history",
			zap.Int64("user_id", req.UserID), zap.Int64("patient_id", req.PatientID), zap.Error(err))
	}
}

// itemFromHit maps one raw index hit to its typed item variant. The switch
// is exhaustive over the closed document type set.
func itemFromHit(hit index.Hit) (models.ChartListItem, error) {
	f := hit.Fields
	switch hit.DocumentType {
	case models.DocTypeEncounter:
		return &models.EncounterItem{
			EncounterID:   hit.RecordID,
			EncounterType: f[models.FieldEncounterType],
			ProviderName:  f[models.FieldProviderName],
			LocationName:  f[models.FieldLocationName],
			Relevance:     hit.Score,
		}, nil
	case models.DocTypeForm:
		return &models.FormItem{
			FormID:    hit.RecordID,
			FormName:  f[models.FieldFormName],
			Relevance: hit.Score,
		}, nil
	case models.DocTypeObs:
		return &models.ObsItem{
			ObsID:       hit.RecordID,
			ConceptName: f[models.FieldConceptName],
			ValueText:   f[models.FieldValueText],
			Units:       f[models.FieldUnits],
			Datatype:    f[models.FieldDatatype],
			Relevance:   hit.Score,
		}, nil
	case models.DocTypeObsGroup:
		return &models.ObsGroupItem{
			ObsGroupID:  hit.RecordID,
			ConceptName: f[models.FieldConceptName],
			Relevance:   hit.Score,
		}, nil
	case models.DocTypeProvider:
		return &models.ProviderItem{
			ProviderID:   hit.RecordID,
			ProviderName: f[models.FieldProviderName],
			Relevance:    hit.Score,
		}, nil
	case models.DocTypeLocation:
		return &models.LocationItem{
			LocationID:   hit.RecordID,
			LocationName: f[models.FieldLocationName],
			Relevance:    hit.Score,
		}, nil
	case models.DocTypeDatatype:
		return &models.DatatypeItem{
			Datatype:  f[models.FieldDatatype],
			Relevance: hit.Score,
		}, nil
	default:
		return nil, models.ErrUnknownDocumentType
	}
}
