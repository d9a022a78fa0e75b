// Package query builds expanded, field-scoped queries from raw search
// phrases. The expanded value is opaque to callers; only the index package
// consumes it.
package query

import (
	"github.com/clinsearch/chartsearch/internal/models"
)

// SynonymExpander supplies clinically-equivalent terms for a single term.
type SynonymExpander interface {
	// Expand returns the synonym set of term, excluding the term itself.
	// Unknown terms yield an empty set.
	Expand(term string) []string
}

// CategoryResolver turns selected category names into index fields.
type CategoryResolver interface {
	// Resolve returns the union of fields the named categories activate.
	// Unrecognized names are skipped.
	Resolve(names []string) []string
}

// Expanded is the AND-of-ORs query structure built from a phrase. Each
// position holds the original term plus its synonym-equivalent terms; any
// term at a position may match, but every position must match somewhere.
type Expanded struct {
	PatientID int64
	// MatchAll is set for the empty phrase: every document of the patient
	// matches.
	MatchAll bool
	// Positions holds one disjunctive term set per phrase token, original
	// term first.
	Positions [][]string
	// Fields restricts matching to the named index fields; empty means all
	// searchable fields participate.
	Fields []string
}

// Expander rewrites search phrases using synonym groups and category filters.
type Expander struct {
	synonyms   SynonymExpander
	categories CategoryResolver
}

// NewExpander creates an expander with the given synonym and category sources.
func NewExpander(synonyms SynonymExpander, categories CategoryResolver) *Expander {
	return &Expander{synonyms: synonyms, categories: categories}
}

// Expand builds the expanded query for a patient, phrase, and selected
// categories. The patient scope is a hard filter; synonym expansion never
// relaxes it. A phrase with no tokens becomes a match-all over the patient's
// documents rather than a query with zero positions.
func (e *Expander) Expand(patientID int64, phrase string, categories []string) *Expanded {
	exp := &Expanded{PatientID: patientID}
	if len(categories) > 0 {
		exp.Fields = e.categories.Resolve(categories)
	}

	terms := models.PhraseTerms(models.NormalizePhrase(phrase))
	if len(terms) == 0 {
		exp.MatchAll = true
		return exp
	}

	exp.Positions = make([][]string, 0, len(terms))
	for _, term := range terms {
		position := []string{term}
		for _, syn := range e.synonyms.Expand(term) {
			if syn != term {
				position = append(position, syn)
			}
		}
		exp.Positions = append(exp.Positions, position)
	}
	return exp
}
