package models

import (
	"fmt"
	"strings"
)

// SynonymGroup is a named set of interchangeable search terms. Groups are
// voided rather than deleted so audit history survives; purge is reserved
// for accidental or duplicate data.
type SynonymGroup struct {
	ID   int64  `json:"id"`
	UUID string `json:"uuid"`
	Name string `json:"name"`
	// IsCategory flags groups that double as category groupings in the UI.
	IsCategory bool      `json:"is_category"`
	Voided     bool      `json:"voided"`
	Synonyms   []Synonym `json:"synonyms,omitempty"`
}

// Validate rejects malformed groups before any write.
func (g *SynonymGroup) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("%w: synonym group name is required", ErrValidation)
	}
	seen := make(map[string]struct{}, len(g.Synonyms))
	for _, s := range g.Synonyms {
		if s.Voided {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(s.Term))
		if key == "" {
			return fmt.Errorf("%w: synonym term is required", ErrValidation)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate term %q in group %q", ErrValidation, s.Term, g.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Synonym is a single term belonging to exactly one synonym group.
type Synonym struct {
	ID      int64  `json:"id"`
	UUID    string `json:"uuid"`
	GroupID int64  `json:"group_id"`
	Term    string `json:"term"`
	Voided  bool   `json:"voided"`
}

// CategoryFilter maps a UI-facing category label to the index fields it
// activates. Field identifiers must belong to the document schema; an
// unknown field reference is a configuration error caught at save time.
type CategoryFilter struct {
	ID      int64    `json:"id"`
	UUID    string   `json:"uuid"`
	Name    string   `json:"name"`
	Fields  []string `json:"fields"`
	Enabled bool     `json:"enabled"`
}

// Validate rejects filters with empty names or unknown field references.
func (f *CategoryFilter) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: category filter name is required", ErrValidation)
	}
	for _, field := range f.Fields {
		if !IsIndexField(field) {
			return fmt.Errorf("%w: unknown index field %q in category filter %q", ErrValidation, field, f.Name)
		}
	}
	return nil
}
