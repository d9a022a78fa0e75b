package query

import (
	"reflect"
	"testing"
)

type mapExpander map[string][]string

func (m mapExpander) Expand(term string) []string { return m[term] }

type mapResolver map[string][]string

func (m mapResolver) Resolve(names []string) []string {
	var out []string
	for _, name := range names {
		out = append(out, m[name]...)
	}
	return out
}

func TestExpandPositions(t *testing.T) {
	e := NewExpander(mapExpander{"pain": {"ache", "soreness"}}, mapResolver{})

	got := e.Expand(7, "Chest   Pain", nil)
	if got.PatientID != 7 {
		t.Errorf("patient id: got %d", got.PatientID)
	}
	if got.MatchAll {
		t.Error("non-empty phrase should not be match-all")
	}
	want := [][]string{
		{"chest"},
		{"pain", "ache", "soreness"},
	}
	if !reflect.DeepEqual(got.Positions, want) {
		t.Errorf("positions = %v, want %v", got.Positions, want)
	}
}

func TestExpandEmptyPhraseIsMatchAll(t *testing.T) {
	e := NewExpander(mapExpander{}, mapResolver{})

	for _, phrase := range []string{"", "   ", "\t\n"} {
		got := e.Expand(7, phrase, nil)
		if !got.MatchAll {
			t.Errorf("phrase %q should be match-all", phrase)
		}
		if len(got.Positions) != 0 {
			t.Errorf("match-all should carry no positions, got %v", got.Positions)
		}
	}
}

func TestExpandExcludesSelfDuplicate(t *testing.T) {
	// A sloppy synonym source may return the term itself; the position must
	// not list it twice.
	e := NewExpander(mapExpander{"fever": {"fever", "pyrexia"}}, mapResolver{})

	got := e.Expand(7, "fever", nil)
	want := [][]string{{"fever", "pyrexia"}}
	if !reflect.DeepEqual(got.Positions, want) {
		t.Errorf("positions = %v, want %v", got.Positions, want)
	}
}

func TestExpandResolvesCategories(t *testing.T) {
	e := NewExpander(mapExpander{}, mapResolver{"Diagnoses": {"concept_name", "value_text"}})

	got := e.Expand(7, "fever", []string{"Diagnoses"})
	if !reflect.DeepEqual(got.Fields, []string{"concept_name", "value_text"}) {
		t.Errorf("fields = %v", got.Fields)
	}

	// No categories selected: no field restriction at all.
	got = e.Expand(7, "fever", nil)
	if got.Fields != nil {
		t.Errorf("no categories should mean no field restriction, got %v", got.Fields)
	}
}

func TestExpandUnknownCategoryYieldsNoFields(t *testing.T) {
	e := NewExpander(mapExpander{}, mapResolver{})
	got := e.Expand(7, "fever", []string{"NoSuch"})
	if len(got.Fields) != 0 {
		t.Errorf("unknown category resolved to %v", got.Fields)
	}
}
