package models

import "fmt"

// Document types carried by every indexed document and used to map search
// hits back to typed result items. The set is closed; the searcher treats
// anything else as a data-integrity error.
const (
	DocTypeEncounter = "encounter"
	DocTypeForm      = "form"
	DocTypeObs       = "obs"
	DocTypeObsGroup  = "obs_group"
	DocTypeProvider  = "provider"
	DocTypeLocation  = "location"
	DocTypeDatatype  = "datatype"
)

// Index field identifiers. FieldPatientID and FieldDocumentType are filter
// fields; the rest are searchable text fields, some of which are also
// facet-eligible.
const (
	FieldPatientID     = "patient_id"
	FieldDocumentType  = "document_type"
	FieldConceptName   = "concept_name"
	FieldValueText     = "value_text"
	FieldUnits         = "units"
	FieldEncounterType = "encounter_type"
	FieldFormName      = "form_name"
	FieldProviderName  = "provider_name"
	FieldLocationName  = "location_name"
	FieldDatatype      = "datatype"
)

// searchableFields is the closed set of fields a category filter may activate.
var searchableFields = map[string]struct{}{
	FieldConceptName:   {},
	FieldValueText:     {},
	FieldUnits:         {},
	FieldEncounterType: {},
	FieldFormName:      {},
	FieldProviderName:  {},
	FieldLocationName:  {},
	FieldDatatype:      {},
}

// IndexFields returns the searchable field identifiers known to the document
// schema. Category filters must reference only these.
func IndexFields() []string {
	out := make([]string, 0, len(searchableFields))
	for f := range searchableFields {
		out = append(out, f)
	}
	return out
}

// IsIndexField reports whether name is a searchable field in the schema.
func IsIndexField(name string) bool {
	_, ok := searchableFields[name]
	return ok
}

// FacetEligibleFields are the fields whose distinct values may be faceted.
var FacetEligibleFields = []string{FieldProviderName, FieldLocationName, FieldDatatype}

// PatientDocument is one searchable projection of a clinical artifact.
// ID is stable across reindexes of the same record so delete-before-replace
// never leaves duplicates.
type PatientDocument struct {
	ID           string `json:"id"`
	PatientID    int64  `json:"patient_id"`
	DocumentType string `json:"document_type"`
	// RecordID is the clinical record id needed for later detail lookup.
	RecordID int64 `json:"record_id"`
	// Fields holds searchable text keyed by index field identifier.
	Fields map[string]string `json:"fields"`
	// Facets holds facet-eligible values keyed by index field identifier.
	// Facet fields are searchable as well.
	Facets map[string]string `json:"facets,omitempty"`
}

// DocumentID builds the stable external id for a record of the given type.
// The patient id is part of the key: reference documents (providers,
// locations) are projected per patient, and deleting one patient's document
// set must never remove another's.
func DocumentID(patientID int64, docType string, recordID int64) string {
	return fmt.Sprintf("%d:%s:%d", patientID, docType, recordID)
}

// DatatypeDocumentID builds the stable external id for a datatype tag
// document, which has no numeric record id of its own.
func DatatypeDocumentID(patientID int64, datatype string) string {
	return fmt.Sprintf("%d:%s:%s", patientID, DocTypeDatatype, datatype)
}
