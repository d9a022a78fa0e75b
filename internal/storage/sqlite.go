// Package storage provides the SQLite implementation of the Store interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/clinsearch/chartsearch/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS synonym_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		is_category INTEGER NOT NULL DEFAULT 0,
		voided INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_synonym_groups_name ON synonym_groups(name);

	CREATE TABLE IF NOT EXISTS synonyms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		group_id INTEGER NOT NULL,
		term TEXT NOT NULL,
		voided INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (group_id) REFERENCES synonym_groups(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_synonyms_group_id ON synonyms(group_id);
	CREATE INDEX IF NOT EXISTS idx_synonyms_term ON synonyms(term);

	CREATE TABLE IF NOT EXISTS category_filters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		fields TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS bookmarks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		search_phrase TEXT NOT NULL,
		categories TEXT,
		default_search INTEGER NOT NULL DEFAULT 0,
		patient_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bookmarks_user ON bookmarks(user_id);

	CREATE TABLE IF NOT EXISTS search_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		search_phrase TEXT NOT NULL,
		patient_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		last_searched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, patient_id, search_phrase)
	);

	CREATE TABLE IF NOT EXISTS search_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		comment TEXT NOT NULL,
		search_phrase TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'LOW',
		display_color TEXT,
		patient_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_search_notes_patient ON search_notes(patient_id);

	CREATE TABLE IF NOT EXISTS preferences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL UNIQUE,
		enable_history INTEGER NOT NULL DEFAULT 1,
		enable_bookmarks INTEGER NOT NULL DEFAULT 1,
		enable_notes INTEGER NOT NULL DEFAULT 1,
		notes_color TEXT
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveSynonymGroup inserts or updates a group and any embedded synonyms.
func (s *SQLiteStore) SaveSynonymGroup(ctx context.Context, group *models.SynonymGroup) (*models.SynonymGroup, error) {
	if err := group.Validate(); err != nil {
		return nil, err
	}
	if group.UUID == "" {
		group.UUID = uuid.New().String()
	}
	if group.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO synonym_groups (uuid, name, is_category, voided) VALUES (?, ?, ?, ?)`,
			group.UUID, group.Name, group.IsCategory, group.Voided,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert synonym group: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		group.ID = id
	} else {
		result, err := s.db.ExecContext(ctx,
			`UPDATE synonym_groups SET name = ?, is_category = ?, voided = ? WHERE id = ?`,
			group.Name, group.IsCategory, group.Voided, group.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update synonym group: %w", err)
		}
		n, _ := result.RowsAffected()
		if n == 0 {
			return nil, fmt.Errorf("synonym group %d: %w", group.ID, models.ErrNotFound)
		}
	}
	for i := range group.Synonyms {
		group.Synonyms[i].GroupID = group.ID
		saved, err := s.SaveSynonym(ctx, &group.Synonyms[i])
		if err != nil {
			return nil, err
		}
		group.Synonyms[i] = *saved
	}
	return group, nil
}

func (s *SQLiteStore) getSynonymGroupWhere(ctx context.Context, where string, arg interface{}) (*models.SynonymGroup, error) {
	var g models.SynonymGroup
	err := s.db.QueryRowContext(ctx,
		`SELECT id, uuid, name, is_category, voided FROM synonym_groups
		 WHERE `+where+` AND voided = 0`, arg,
	).Scan(&g.ID, &g.UUID, &g.Name, &g.IsCategory, &g.Voided)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("synonym group: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	syns, err := s.ListSynonymsByGroup(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	g.Synonyms = syns
	return &g, nil
}

// GetSynonymGroup returns a non-voided group by id with its non-voided synonyms.
func (s *SQLiteStore) GetSynonymGroup(ctx context.Context, id int64) (*models.SynonymGroup, error) {
	return s.getSynonymGroupWhere(ctx, "id = ?", id)
}

// GetSynonymGroupByUUID returns a non-voided group by uuid.
func (s *SQLiteStore) GetSynonymGroupByUUID(ctx context.Context, u string) (*models.SynonymGroup, error) {
	return s.getSynonymGroupWhere(ctx, "uuid = ?", u)
}

// GetSynonymGroupByName returns a non-voided group by name (case-insensitive).
func (s *SQLiteStore) GetSynonymGroupByName(ctx context.Context, name string) (*models.SynonymGroup, error) {
	return s.getSynonymGroupWhere(ctx, "name = ? COLLATE NOCASE", name)
}

func (s *SQLiteStore) listSynonymGroupsWhere(ctx context.Context, where string, args ...interface{}) ([]*models.SynonymGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, uuid, name, is_category, voided FROM synonym_groups
		 WHERE voided = 0`+where+` ORDER BY name COLLATE NOCASE`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.SynonymGroup
	for rows.Next() {
		var g models.SynonymGroup
		if err := rows.Scan(&g.ID, &g.UUID, &g.Name, &g.IsCategory, &g.Voided); err != nil {
			return nil, err
		}
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, g := range groups {
		syns, err := s.ListSynonymsByGroup(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		g.Synonyms = syns
	}
	return groups, nil
}

// ListSynonymGroups returns all non-voided groups with their synonyms.
func (s *SQLiteStore) ListSynonymGroups(ctx context.Context) ([]*models.SynonymGroup, error) {
	return s.listSynonymGroupsWhere(ctx, "")
}

// ListSynonymGroupsByCategory returns non-voided groups filtered by the
// is-category flag.
func (s *SQLiteStore) ListSynonymGroupsByCategory(ctx context.Context, isCategory bool) ([]*models.SynonymGroup, error) {
	return s.listSynonymGroupsWhere(ctx, " AND is_category = ?", isCategory)
}

// CountSynonymGroups counts non-voided groups, optionally only those flagged
// as categories.
func (s *SQLiteStore) CountSynonymGroups(ctx context.Context, onlyCategories bool) (int64, error) {
	q := `SELECT COUNT(*) FROM synonym_groups WHERE voided = 0`
	if onlyCategories {
		q += ` AND is_category = 1`
	}
	var count int64
	err := s.db.QueryRowContext(ctx, q).Scan(&count)
	return count, err
}

// VoidSynonymGroup soft-deletes a group. The group and its synonyms vanish
// from default reads but survive for audit; member synonyms keep their own
// void status so an unvoid restores the prior membership.
func (s *SQLiteStore) VoidSynonymGroup(ctx context.Context, id int64) error {
	return s.setGroupVoided(ctx, id, true)
}

// UnvoidSynonymGroup restores a voided group with its prior membership.
func (s *SQLiteStore) UnvoidSynonymGroup(ctx context.Context, id int64) error {
	return s.setGroupVoided(ctx, id, false)
}

func (s *SQLiteStore) setGroupVoided(ctx context.Context, id int64, voided bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE synonym_groups SET voided = ? WHERE id = ?`, voided, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("synonym group %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// PurgeSynonymGroup hard-deletes a group and its synonyms.
func (s *SQLiteStore) PurgeSynonymGroup(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM synonyms WHERE group_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM synonym_groups WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveSynonym inserts or updates a synonym, enforcing case-insensitive term
// uniqueness within its group.
func (s *SQLiteStore) SaveSynonym(ctx context.Context, syn *models.Synonym) (*models.Synonym, error) {
	term := strings.TrimSpace(syn.Term)
	if term == "" {
		return nil, fmt.Errorf("%w: synonym term is required", models.ErrValidation)
	}
	syn.Term = term
	if syn.GroupID == 0 {
		return nil, fmt.Errorf("%w: synonym must belong to a group", models.ErrValidation)
	}
	var clash int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM synonyms
		 WHERE group_id = ? AND voided = 0 AND term = ? COLLATE NOCASE AND id != ?`,
		syn.GroupID, term, syn.ID,
	).Scan(&clash)
	if err != nil {
		return nil, err
	}
	if clash > 0 && !syn.Voided {
		return nil, fmt.Errorf("%w: term %q already in group %d", models.ErrValidation, term, syn.GroupID)
	}
	if syn.UUID == "" {
		syn.UUID = uuid.New().String()
	}
	if syn.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO synonyms (uuid, group_id, term, voided) VALUES (?, ?, ?, ?)`,
			syn.UUID, syn.GroupID, syn.Term, syn.Voided,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert synonym: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		syn.ID = id
	} else {
		_, err := s.db.ExecContext(ctx,
			`UPDATE synonyms SET group_id = ?, term = ?, voided = ? WHERE id = ?`,
			syn.GroupID, syn.Term, syn.Voided, syn.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update synonym: %w", err)
		}
	}
	return syn, nil
}

func (s *SQLiteStore) getSynonymWhere(ctx context.Context, where string, arg interface{}) (*models.Synonym, error) {
	var syn models.Synonym
	err := s.db.QueryRowContext(ctx,
		`SELECT id, uuid, group_id, term, voided FROM synonyms
		 WHERE `+where+` AND voided = 0`, arg,
	).Scan(&syn.ID, &syn.UUID, &syn.GroupID, &syn.Term, &syn.Voided)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("synonym: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &syn, nil
}

// GetSynonym returns a non-voided synonym by id.
func (s *SQLiteStore) GetSynonym(ctx context.Context, id int64) (*models.Synonym, error) {
	return s.getSynonymWhere(ctx, "id = ?", id)
}

// GetSynonymByUUID returns a non-voided synonym by uuid.
func (s *SQLiteStore) GetSynonymByUUID(ctx context.Context, u string) (*models.Synonym, error) {
	return s.getSynonymWhere(ctx, "uuid = ?", u)
}

// ListSynonymsByGroup returns the non-voided synonyms of a group.
func (s *SQLiteStore) ListSynonymsByGroup(ctx context.Context, groupID int64) ([]models.Synonym, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, uuid, group_id, term, voided FROM synonyms
		 WHERE group_id = ? AND voided = 0 ORDER BY term COLLATE NOCASE`, groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var syns []models.Synonym
	for rows.Next() {
		var syn models.Synonym
		if err := rows.Scan(&syn.ID, &syn.UUID, &syn.GroupID, &syn.Term, &syn.Voided); err != nil {
			return nil, err
		}
		syns = append(syns, syn)
	}
	return syns, rows.Err()
}

// CountSynonymsByGroup counts the non-voided synonyms of a group.
func (s *SQLiteStore) CountSynonymsByGroup(ctx context.Context, groupID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM synonyms WHERE group_id = ? AND voided = 0`, groupID,
	).Scan(&count)
	return count, err
}

// VoidSynonym soft-deletes a synonym.
func (s *SQLiteStore) VoidSynonym(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE synonyms SET voided = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("synonym %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// PurgeSynonym hard-deletes a synonym.
func (s *SQLiteStore) PurgeSynonym(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM synonyms WHERE id = ?`, id)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
