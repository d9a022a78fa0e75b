// Package models defines core data structures for clinical records, indexed
// documents, search requests, and result items.
package models

import "time"

// Patient identifies a patient whose chart can be indexed and searched.
type Patient struct {
	ID   int64  `json:"id"`
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Encounter is a clinical visit. It is indexed as one document; the forms,
// providers, and locations it references are indexed as their own documents.
type Encounter struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	PatientID int64     `json:"patient_id"`
	Type      string    `json:"type"`
	FormName  string    `json:"form_name,omitempty"`
	Provider  Provider  `json:"provider"`
	Location  Location  `json:"location"`
	Date      time.Time `json:"date"`
}

// Obs is a single observation value. GroupMembers is non-empty when the obs
// is a grouping construct; members may themselves be groups.
type Obs struct {
	ID           int64     `json:"id"`
	UUID         string    `json:"uuid"`
	PatientID    int64     `json:"patient_id"`
	EncounterID  int64     `json:"encounter_id"`
	ConceptName  string    `json:"concept_name"`
	ValueText    string    `json:"value_text,omitempty"`
	Units        string    `json:"units,omitempty"`
	Datatype     string    `json:"datatype,omitempty"`
	Provider     Provider  `json:"provider"`
	Location     Location  `json:"location"`
	ObsDate      time.Time `json:"obs_date"`
	GroupMembers []Obs     `json:"group_members,omitempty"`
}

// IsGroup reports whether the obs is a grouping of other observations.
func (o *Obs) IsGroup() bool { return len(o.GroupMembers) > 0 }

// Form is a data-entry form referenced by one or more encounters.
type Form struct {
	ID   int64  `json:"id"`
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Provider is a clinician referenced by encounters and observations.
type Provider struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Location is a care site referenced by encounters and observations.
type Location struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
