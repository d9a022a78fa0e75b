package index

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/internal/query"
)

const (
	fieldRecordID = "record_id"

	// exactSuffix names the keyword-analyzed shadow of a facet field, so
	// facet counts are per value ("outpatient clinic") not per token.
	exactSuffix = "_exact"

	// deleteBatchSize bounds each delete-before-replace sweep.
	deleteBatchSize = 1000
)

// BleveIndex implements PatientIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// opened and reused; if the mapping changes in code, remove the index
// directory and run a full reindex.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		idx, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: idx}, nil
	}

	idx, err := bleve.New(path, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: idx}, nil
}

// NewMemoryIndex creates an in-memory Bleve index, used by tests.
func NewMemoryIndex() (*BleveIndex, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	return &BleveIndex{index: idx}, nil
}

// buildIndexMapping maps filter fields (patient_id, document_type,
// record_id) with the keyword analyzer, searchable fields with the standard
// analyzer (lowercase + tokenize, no stemming so clinical terms match
// exactly), and facet-eligible fields twice: analyzed for search plus a
// keyword "_exact" shadow for faceting.
func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(models.FieldPatientID, keywordField)
	docMapping.AddFieldMappingsAt(models.FieldDocumentType, keywordField)
	docMapping.AddFieldMappingsAt(fieldRecordID, keywordField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name

	facetEligible := make(map[string]bool, len(models.FacetEligibleFields))
	for _, f := range models.FacetEligibleFields {
		facetEligible[f] = true
	}
	for _, field := range models.IndexFields() {
		if facetEligible[field] {
			exact := bleve.NewTextFieldMapping()
			exact.Analyzer = keyword.Name
			exact.Name = field + exactSuffix
			docMapping.AddFieldMappingsAt(field, textField, exact)
			continue
		}
		docMapping.AddFieldMappingsAt(field, textField)
	}

	im.DefaultMapping = docMapping
	return im
}

// indexable flattens a PatientDocument into the map Bleve indexes. Facet
// values live on the same property as their searchable field; the mapping
// fans them out into analyzed and exact variants.
func indexable(doc *models.PatientDocument) map[string]interface{} {
	m := map[string]interface{}{
		models.FieldPatientID:    strconv.FormatInt(doc.PatientID, 10),
		models.FieldDocumentType: doc.DocumentType,
		fieldRecordID:            strconv.FormatInt(doc.RecordID, 10),
	}
	for field, value := range doc.Fields {
		m[field] = value
	}
	for field, value := range doc.Facets {
		m[field] = value
	}
	return m
}

// SubmitDocuments adds or replaces documents in one batch.
func (b *BleveIndex) SubmitDocuments(ctx context.Context, docs []*models.PatientDocument) error {
	if len(docs) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, indexable(doc)); err != nil {
			return fmt.Errorf("%w: batch document %s: %v", models.ErrIndexing, doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexing, err)
	}
	return nil
}

// DeletePatientDocuments removes every document of a patient, sweeping in
// batches until the patient term query returns no hits.
func (b *BleveIndex) DeletePatientDocuments(ctx context.Context, patientID int64) error {
	for {
		req := bleve.NewSearchRequest(patientTermQuery(patientID))
		req.Size = deleteBatchSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("%w: patient delete query: %v", models.ErrIndexing, err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("%w: patient delete batch: %v", models.ErrIndexing, err)
		}
	}
}

func patientTermQuery(patientID int64) blevequery.Query {
	tq := bleve.NewTermQuery(strconv.FormatInt(patientID, 10))
	tq.SetField(models.FieldPatientID)
	return tq
}

/// buildQuery converts the expanded AND-of-ORs structure into a Bleve query:
// the patient term filter conjoined with one disjunction per phrase position.
func buildQuery(q *query.Expanded) blevequery.Query {
	conjuncts := []blevequery.Query{patientTermQuery(q.PatientID)}
	if q.MatchAll {
		// An empty phrase returns the whole chart even when categories are
		// selected. Category fields restrict where terms may match, and with
		// no terms there is nothing to restrict.
		return bleve.NewConjunctionQuery(conjuncts...)
	}

	fields := q.Fields
	if len(fields) == 0 {
		fields = models.IndexFields()
	}
	for _, position := range q.Positions {
		disjuncts := make([]blevequery.Query, 0, len(position)*len(fields))
		for _, term := range position {
			for _, field := range fields {
				mq := bleve.NewMatchQuery(term)
				mq.SetField(field)
				disjuncts = append(disjuncts, mq)
			}
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(disjuncts...))
	}
	return bleve.NewConjunctionQuery(conjuncts...)
}

// Query executes an expanded query, returning relevance-ordered hits plus
// facet counts from the same execution.
func (b *BleveIndex) Query(ctx context.Context, q *query.Expanded, opts QueryOptions) (*Result, error) {
	req := bleve.NewSearchRequest(buildQuery(q))
	req.Size = opts.Limit
	if req.Size <= 0 {
		req.Size = 50
	}
	req.Fields = []string{"*"}
	facetSize := opts.FacetSize
	if facetSize <= 0 {
		facetSize = 100
	}
	for _, field := range opts.FacetFields {
		req.AddFacet(field, bleve.NewFacetRequest(field+exactSuffix, facetSize))
	}

	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", models.ErrIndexing, err)
	}

	out := &Result{
		Hits:  make([]Hit, 0, len(results.Hits)),
		Total: int(results.Total),
	}
	for _, hit := range results.Hits {
		h := Hit{ID: hit.ID, Score: hit.Score, Fields: make(map[string]string, len(hit.Fields))}
		for field, value := range hit.Fields {
			s, ok := value.(string)
			if !ok {
				continue
			}
			switch field {
			case models.FieldDocumentType:
				h.DocumentType = s
			case fieldRecordID:
				h.RecordID, _ = strconv.ParseInt(s, 10, 64)
			default:
				h.Fields[field] = s
			}
		}
		out.Hits = append(out.Hits, h)
	}

	// Facet order follows the index (count-descending); keep the requested
	// field order for the field list itself.
	for _, field := range opts.FacetFields {
		fr, ok := results.Facets[field]
		if !ok {
			continue
		}
		facet := models.FacetField{Field: field}
		for _, term := range fr.Terms.Terms() {
			facet.Values = append(facet.Values, models.FacetValue{Value: term.Term, Count: term.Count})
		}
		out.Facets = append(out.Facets, facet)
	}
	return out, nil
}

// SuggestTerms returns the distinct searchable terms in a patient's
// documents, sorted, for typeahead suggestions.
func (b *BleveIndex) SuggestTerms(ctx context.Context, patientID int64) ([]string, error) {
	req := bleve.NewSearchRequest(patientTermQuery(patientID))
	req.Size = deleteBatchSize
	req.Fields = []string{"*"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: suggest query: %v", models.ErrIndexing, err)
	}

	seen := make(map[string]struct{})
	for _, hit := range results.Hits {
		for field, value := range hit.Fields {
			if !models.IsIndexField(field) {
				continue
			}
			s, ok := value.(string)
			if !ok {
				continue
			}
			for _, term := range strings.Fields(strings.ToLower(s)) {
				seen[term] = struct{}{}
			}
		}
	}
	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms, nil
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
