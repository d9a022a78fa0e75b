package models

import (
	"fmt"
	"strings"
)

// SearchRequest is a chart search over a single patient's documents.
// An empty phrase means "match all documents for this patient".
type SearchRequest struct {
	PatientID int64 `json:"patient_id"`
	// Phrase is the raw user input; it is normalized before expansion.
	Phrase string `json:"phrase"`
	// Categories are selected category filter names; empty means no field
	// restriction.
	Categories []string `json:"categories,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	// UserID, when set, attributes the search for history recording.
	UserID int64 `json:"user_id,omitempty"`
}

// Validate normalizes the request and rejects requests without a patient.
// Limit defaulting and capping are the searcher's concern; the bounds are
// configuration, not schema.
func (r *SearchRequest) Validate() error {
	if r.PatientID <= 0 {
		return fmt.Errorf("%w: patient id is required", ErrValidation)
	}
	r.Phrase = NormalizePhrase(r.Phrase)
	return nil
}

// NormalizePhrase trims and case-folds a raw search phrase, collapsing runs
// of whitespace. The empty string is a valid phrase meaning "match all".
func NormalizePhrase(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// PhraseTerms splits a normalized phrase into its term positions.
func PhraseTerms(phrase string) []string {
	return strings.Fields(phrase)
}
