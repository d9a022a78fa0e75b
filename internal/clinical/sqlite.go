package clinical

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/clinsearch/chartsearch/internal/models"
)

// SQLiteSource implements Source over a SQLite clinical database. The write
// helpers exist for seeding demo and test data; the engine itself only reads.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource opens or creates the clinical database at dbPath.
func NewSQLiteSource(dbPath string) (*SQLiteSource, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open clinical database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initClinicalSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize clinical schema: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

func initClinicalSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS providers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS forms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS encounters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		patient_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		form_id INTEGER,
		provider_id INTEGER,
		location_id INTEGER,
		date TIMESTAMP,
		FOREIGN KEY (patient_id) REFERENCES patients(id)
	);

	CREATE INDEX IF NOT EXISTS idx_encounters_patient ON encounters(patient_id);

	CREATE TABLE IF NOT EXISTS obs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		patient_id INTEGER NOT NULL,
		encounter_id INTEGER,
		parent_id INTEGER,
		concept_name TEXT NOT NULL,
		value_text TEXT,
		units TEXT,
		datatype TEXT,
		provider_id INTEGER,
		location_id INTEGER,
		obs_date TIMESTAMP,
		FOREIGN KEY (patient_id) REFERENCES patients(id),
		FOREIGN KEY (parent_id) REFERENCES obs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_obs_patient ON obs(patient_id);
	CREATE INDEX IF NOT EXISTS idx_obs_parent ON obs(parent_id);
	`
	_, err := db.Exec(schema)
	return err
}

// ListPatientIDs returns patient ids ordered by id; limit <= 0 means all.
func (s *SQLiteSource) ListPatientIDs(ctx context.Context, limit int) ([]int64, error) {
	q := `SELECT id FROM patients ORDER BY id`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetPatient returns a patient by id.
func (s *SQLiteSource) GetPatient(ctx context.Context, id int64) (*models.Patient, error) {
	var p models.Patient
	err := s.db.QueryRowContext(ctx,
		`SELECT id, uuid, name FROM patients WHERE id = ?`, id,
	).Scan(&p.ID, &p.UUID, &p.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("patient %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Encounters returns a patient's encounters with resolved provider,
// location, and form names.
func (s *SQLiteSource) Encounters(ctx context.Context, patientID int64) ([]models.Encounter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.uuid, e.patient_id, e.type, e.date,
		        COALESCE(f.name, ''), COALESCE(p.id, 0), COALESCE(p.name, ''),
		        COALESCE(l.id, 0), COALESCE(l.name, '')
		 FROM encounters e
		 LEFT JOIN forms f ON f.id = e.form_id
		 LEFT JOIN providers p ON p.id = e.provider_id
		 LEFT JOIN locations l ON l.id = e.location_id
		 WHERE e.patient_id = ? ORDER BY e.id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var encounters []models.Encounter
	for rows.Next() {
		var e models.Encounter
		var date sql.NullTime
		if err := rows.Scan(&e.ID, &e.UUID, &e.PatientID, &e.Type, &date,
			&e.FormName, &e.Provider.ID, &e.Provider.Name,
			&e.Location.ID, &e.Location.Name); err != nil {
			return nil, err
		}
		e.Date = date.Time
		encounters = append(encounters, e)
	}
	return encounters, rows.Err()
}

// Observations returns a patient's observations as a tree: top-level obs
// with group members nested recursively under their parent.
func (s *SQLiteSource) Observations(ctx context.Context, patientID int64) ([]models.Obs, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.uuid, o.patient_id, COALESCE(o.encounter_id, 0), COALESCE(o.parent_id, 0),
		        o.concept_name, COALESCE(o.value_text, ''), COALESCE(o.units, ''), COALESCE(o.datatype, ''),
		        o.obs_date, COALESCE(p.id, 0), COALESCE(p.name, ''), COALESCE(l.id, 0), COALESCE(l.name, '')
		 FROM obs o
		 LEFT JOIN providers p ON p.id = o.provider_id
		 LEFT JOIN locations l ON l.id = o.location_id
		 WHERE o.patient_id = ? ORDER BY o.id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*models.Obs)
	parentOf := make(map[int64]int64)
	var order []int64
	for rows.Next() {
		var o models.Obs
		var parentID int64
		var date sql.NullTime
		if err := rows.Scan(&o.ID, &o.UUID, &o.PatientID, &o.EncounterID, &parentID,
			&o.ConceptName, &o.ValueText, &o.Units, &o.Datatype,
			&date, &o.Provider.ID, &o.Provider.Name, &o.Location.ID, &o.Location.Name); err != nil {
			return nil, err
		}
		o.ObsDate = date.Time
		byID[o.ID] = &o
		parentOf[o.ID] = parentID
		order = append(order, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Attach children deepest-first so nested groups are complete before
	// being copied into their parent. A parent row is always inserted
	// before its members, so parent ids are strictly smaller.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		parentID := parentOf[id]
		if parentID == 0 {
			continue
		}
		if parent, ok := byID[parentID]; ok {
			parent.GroupMembers = append([]models.Obs{*byID[id]}, parent.GroupMembers...)
		}
	}
	var roots []models.Obs
	for _, id := range order {
		if parentOf[id] == 0 {
			roots = append(roots, *byID[id])
		}
	}
	return roots, nil
}

// Forms returns the distinct forms referenced by a patient's encounters.
func (s *SQLiteSource) Forms(ctx context.Context, patientID int64) ([]models.Form, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT f.id, f.uuid, f.name
		 FROM forms f JOIN encounters e ON e.form_id = f.id
		 WHERE e.patient_id = ? ORDER BY f.id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forms []models.Form
	for rows.Next() {
		var f models.Form
		if err := rows.Scan(&f.ID, &f.UUID, &f.Name); err != nil {
			return nil, err
		}
		forms = append(forms, f)
	}
	return forms, rows.Err()
}

// AllProviders lists every provider.
func (s *SQLiteSource) AllProviders(ctx context.Context) ([]models.Provider, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM providers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		var p models.Provider
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// AllLocations lists every location.
func (s *SQLiteSource) AllLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Seed helpers below are used by tests and the demo data loader.

// AddPatient inserts a patient and returns its id.
func (s *SQLiteSource) AddPatient(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO patients (uuid, name) VALUES (?, ?)`, uuid.New().String(), name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddProvider inserts a provider and returns its id.
func (s *SQLiteSource) AddProvider(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO providers (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddLocation inserts a location and returns its id.
func (s *SQLiteSource) AddLocation(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO locations (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddForm inserts a form and returns its id.
func (s *SQLiteSource) AddForm(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO forms (uuid, name) VALUES (?, ?)`, uuid.New().String(), name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddEncounter inserts an encounter and returns its id. formID, providerID,
// and locationID may be zero for none.
func (s *SQLiteSource) AddEncounter(ctx context.Context, e models.Encounter, formID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO encounters (uuid, patient_id, type, form_id, provider_id, location_id, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), e.PatientID, e.Type,
		nullableID(formID), nullableID(e.Provider.ID), nullableID(e.Location.ID), e.Date)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddObs inserts an observation and returns its id. parentID may be zero
// for a top-level obs.
func (s *SQLiteSource) AddObs(ctx context.Context, o models.Obs, parentID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO obs (uuid, patient_id, encounter_id, parent_id, concept_name, value_text, units, datatype, provider_id, location_id, obs_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), o.PatientID, nullableID(o.EncounterID), nullableID(parentID),
		o.ConceptName, o.ValueText, o.Units, o.Datatype,
		nullableID(o.Provider.ID), nullableID(o.Location.ID), o.ObsDate)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
