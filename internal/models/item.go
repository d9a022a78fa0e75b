package models

import "encoding/json"

// ChartListItem is a typed search result item. Each variant carries the
// minimal identifying fields from the index plus the clinical record id a
// later detail fetch needs; the search step never blocks on enrichment.
type ChartListItem interface {
	// ItemType returns the document type tag of the variant.
	ItemType() string
	// Score returns the index relevance score of the hit.
	ItemScore() float64
}

// EncounterItem is a search hit on an encounter document.
type EncounterItem struct {
	EncounterID   int64   `json:"encounter_id"`
	EncounterType string  `json:"encounter_type"`
	ProviderName  string  `json:"provider_name,omitempty"`
	LocationName  string  `json:"location_name,omitempty"`
	Relevance     float64 `json:"relevance"`
}

func (i *EncounterItem) ItemType() string   { return DocTypeEncounter }
func (i *EncounterItem) ItemScore() float64 { return i.Relevance }

// FormItem is a search hit on a form document.
type FormItem struct {
	FormID    int64   `json:"form_id"`
	FormName  string  `json:"form_name"`
	Relevance float64 `json:"relevance"`
}

func (i *FormItem) ItemType() string   { return DocTypeForm }
func (i *FormItem) ItemScore() float64 { return i.Relevance }

// ObsItem is a search hit on a single observation document. It carries
// summary fields only; full value/unit/date come from a later detail fetch.
type ObsItem struct {
	ObsID       int64   `json:"obs_id"`
	ConceptName string  `json:"concept_name"`
	ValueText   string  `json:"value_text,omitempty"`
	Units       string  `json:"units,omitempty"`
	Datatype    string  `json:"datatype,omitempty"`
	Relevance   float64 `json:"relevance"`
}

func (i *ObsItem) ItemType() string   { return DocTypeObs }
func (i *ObsItem) ItemScore() float64 { return i.Relevance }

// ObsGroupItem is a search hit on an obs-group marker document.
type ObsGroupItem struct {
	ObsGroupID  int64   `json:"obs_group_id"`
	ConceptName string  `json:"concept_name"`
	Relevance   float64 `json:"relevance"`
}

func (i *ObsGroupItem) ItemType() string   { return DocTypeObsGroup }
func (i *ObsGroupItem) ItemScore() float64 { return i.Relevance }

// ProviderItem is a search hit on a provider reference document.
type ProviderItem struct {
	ProviderID   int64   `json:"provider_id"`
	ProviderName string  `json:"provider_name"`
	Relevance    float64 `json:"relevance"`
}

func (i *ProviderItem) ItemType() string   { return DocTypeProvider }
func (i *ProviderItem) ItemScore() float64 { return i.Relevance }

// LocationItem is a search hit on a location reference document.
type LocationItem struct {
	LocationID   int64   `json:"location_id"`
	LocationName string  `json:"location_name"`
	Relevance    float64 `json:"relevance"`
}

func (i *LocationItem) ItemType() string   { return DocTypeLocation }
func (i *LocationItem) ItemScore() float64 { return i.Relevance }

// DatatypeItem is a search hit on a datatype tag document.
type DatatypeItem struct {
	Datatype  string  `json:"datatype"`
	Relevance float64 `json:"relevance"`
}

func (i *DatatypeItem) ItemType() string   { return DocTypeDatatype }
func (i *DatatypeItem) ItemScore() float64 { return i.Relevance }

// Each variant marshals with a document_type tag so clients can dispatch on
// the item kind without probing for variant-specific keys.

func (i *EncounterItem) MarshalJSON() ([]byte, error) {
	type alias EncounterItem
	return json.Marshal(struct {
		DocumentType string `json:"document_type"`
		*alias
	}{i.ItemType(), (*alias)(i)})
}

func (i *FormItem) MarshalJSON() ([]byte, error) {
	type alias FormItem
	return json.Marshal(struct {
		DocumentType string `json:"document_type"`
		*alias
	}{i.ItemType(), (*alias)(i)})
}

func (i *ObsItem) MarshalJSON() ([]byte, error) {
	type alias ObsItem
	return json.Marshal(struct {
		DocumentType string `json:"document_type"`
		*alias
	}{i.ItemType(), (*alias)(i)})
}

func (i *ObsGroupItem) MarshalJSON() ([]byte, error) {
	type alias ObsGroupItem
	return json.Marshal(struct {
		DocumentType string `json:"document_type"`
		*alias
	}{i.ItemType(), (*alias)(i)})
}

func (i *ProviderItem) MarshalJSON() ([]byte, error) {
	type alias ProviderItem
	return json.Marshal(struct {
		DocumentType string `json:"document_type"`
		*alias
	}{i.ItemType(), (*alias)(i)})
}

func (i *LocationItem) MarshalJSON() ([]byte, error) {
	type alias LocationItem
	return json.Marshal(struct {
		DocumentType string `json:"document_type"`
		*alias
	}{i.ItemType(), (*alias)(i)})
}

func (i *DatatypeItem) MarshalJSON() ([]byte, error) {
	type alias DatatypeItem
	return json.Marshal(struct {
		DocumentType string `json:"document_type"`
		*alias
	}{i.ItemType(), (*alias)(i)})
}
