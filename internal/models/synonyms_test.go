package models

import (
	"errors"
	"testing"
)

func TestSynonymGroupValidate(t *testing.T) {
	tests := []struct {
		name    string
		group   SynonymGroup
		wantErr bool
	}{
		{"valid", SynonymGroup{Name: "pain", Synonyms: []Synonym{{Term: "ache"}, {Term: "soreness"}}}, false},
		{"empty name", SynonymGroup{Name: "  "}, true},
		{"duplicate term case-insensitive", SynonymGroup{Name: "pain", Synonyms: []Synonym{{Term: "Ache"}, {Term: "ache"}}}, true},
		{"voided duplicate allowed", SynonymGroup{Name: "pain", Synonyms: []Synonym{{Term: "ache"}, {Term: "ache", Voided: true}}}, false},
		{"empty term", SynonymGroup{Name: "pain", Synonyms: []Synonym{{Term: " "}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.group.Validate()
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Errorf("want validation error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCategoryFilterValidate(t *testing.T) {
	valid := CategoryFilter{Name: "Diagnoses", Fields: []string{FieldConceptName, FieldValueText}}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid filter rejected: %v", err)
	}

	unknown := CategoryFilter{Name: "Broken", Fields: []string{"no_such_field"}}
	if err := unknown.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown field should fail validation, got %v", err)
	}

	unnamed := CategoryFilter{Fields: []string{FieldConceptName}}
	if err := unnamed.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("missing name should fail validation, got %v", err)
	}

	// Zero fields is a legal no-op filter.
	empty := CategoryFilter{Name: "Everything"}
	if err := empty.Validate(); err != nil {
		t.Errorf("empty field set rejected: %v", err)
	}
}
