// Package index defines the boundary to the full-text index service and
// provides the Bleve implementation. The index is a rebuildable projection
// of clinical data, never a system of record.
package index

import (
	"context"

	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/internal/query"
)

// Hit is one raw search result from the index.
type Hit struct {
	// ID is the stable external document id.
	ID string
	// DocumentType tags which result item variant the hit maps to.
	DocumentType string
	// RecordID is the clinical record id carried at index time.
	RecordID int64
	Score    float64
	// Fields holds the stored field values of the document.
	Fields map[string]string
}

// Result couples ordered hits with the facet counts computed during the
// same query execution, so facets never reflect stale query state.
type Result struct {
	Hits   []Hit
	Total  int
	Facets []models.FacetField
}

// QueryOptions configures a single query execution.
type QueryOptions struct {
	Limit int
	// FacetFields names the facet-eligible fields to count; the list is
	// fixed at configuration time.
	FacetFields []string
	// FacetSize caps distinct values returned per facet field.
	FacetSize int
}

// PatientIndex is the external full-text index collaborator.
type PatientIndex interface {
	// SubmitDocuments adds or replaces documents in one batch.
	SubmitDocuments(ctx context.Context, docs []*models.PatientDocument) error
	// DeletePatientDocuments removes every document of a patient.
	DeletePatientDocuments(ctx context.Context, patientID int64) error
	// Query executes an expanded query and returns ordered hits plus facets.
	Query(ctx context.Context, q *query.Expanded, opts QueryOptions) (*Result, error)
	// SuggestTerms returns the distinct searchable terms present in a
	// patient's documents, for typeahead suggestions.
	SuggestTerms(ctx context.Context, patientID int64) ([]string, error)
	// DocCount returns the total number of indexed documents.
	DocCount() (uint64, error)
	Close() error
}
