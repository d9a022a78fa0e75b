// Package clinical provides read access to a patient's clinical records:
// encounters, observations (with obs-group nesting), forms, providers, and
// locations. Only the indexer consumes it.
package clinical

import (
	"context"

	"github.com/clinsearch/chartsearch/internal/models"
)

// Source is the clinical-record collaborator the indexer reads from.
type Source interface {
	// ListPatientIDs returns patient ids in a stable order; limit <= 0
	// means all patients.
	ListPatientIDs(ctx context.Context, limit int) ([]int64, error)
	GetPatient(ctx context.Context, id int64) (*models.Patient, error)
	// Encounters returns a patient's encounters.
	Encounters(ctx context.Context, patientID int64) ([]models.Encounter, error)
	// Observations returns a patient's top-level observations; obs-group
	// members are nested inside their parent.
	Observations(ctx context.Context, patientID int64) ([]models.Obs, error)
	// Forms returns the distinct forms referenced by a patient's encounters.
	Forms(ctx context.Context, patientID int64) ([]models.Form, error)
	// AllProviders and AllLocations list every known provider/location name
	// for filter UIs.
	AllProviders(ctx context.Context) ([]models.Provider, error)
	AllLocations(ctx context.Context) ([]models.Location, error)
	Close() error
}
