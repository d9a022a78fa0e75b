package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinsearch/chartsearch/internal/models"
)

// SaveBookmark inserts or updates a bookmark.
func (s *SQLiteStore) SaveBookmark(ctx context.Context, b *models.Bookmark) (*models.Bookmark, error) {
	if b.Name == "" {
		return nil, fmt.Errorf("%w: bookmark name is required", models.ErrValidation)
	}
	if b.PatientID <= 0 || b.UserID <= 0 {
		return nil, fmt.Errorf("%w: bookmark needs a patient and an owner", models.ErrValidation)
	}
	if b.UUID == "" {
		b.UUID = uuid.New().String()
	}
	categories := models.JoinCategories(b.Categories)
	if b.ID == 0 {
		b.CreatedAt = time.Now()
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO bookmarks (uuid, name, search_phrase, categories, default_search, patient_id, user_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.UUID, b.Name, b.SearchPhrase, categories, b.DefaultSearch, b.PatientID, b.UserID, b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert bookmark: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		b.ID = id
	} else {
		_, err := s.db.ExecContext(ctx,
			`UPDATE bookmarks SET name = ?, search_phrase = ?, categories = ?, default_search = ? WHERE id = ?`,
			b.Name, b.SearchPhrase, categories, b.DefaultSearch, b.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update bookmark: %w", err)
		}
	}
	return b, nil
}

func (s *SQLiteStore) scanBookmark(row *sql.Row) (*models.Bookmark, error) {
	var b models.Bookmark
	var categories string
	err := row.Scan(&b.ID, &b.UUID, &b.Name, &b.SearchPhrase, &categories, &b.DefaultSearch, &b.PatientID, &b.UserID, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bookmark: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	b.Categories = models.SplitCategories(categories)
	return &b, nil
}

const bookmarkColumns = `id, uuid, name, search_phrase, categories, default_search, patient_id, user_id, created_at`

// GetBookmark returns a bookmark by id.
func (s *SQLiteStore) GetBookmark(ctx context.Context, id int64) (*models.Bookmark, error) {
	return s.scanBookmark(s.db.QueryRowContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = ?`, id))
}

// GetBookmarkByUUID returns a bookmark by uuid.
func (s *SQLiteStore) GetBookmarkByUUID(ctx context.Context, u string) (*models.Bookmark, error) {
	return s.scanBookmark(s.db.QueryRowContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE uuid = ?`, u))
}

// ListBookmarks returns a user's bookmarks, newest first.
func (s *SQLiteStore) ListBookmarks(ctx context.Context, userID int64) ([]*models.Bookmark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Bookmark
	for rows.Next() {
		var b models.Bookmark
		var categories string
		if err := rows.Scan(&b.ID, &b.UUID, &b.Name, &b.SearchPhrase, &categories, &b.DefaultSearch, &b.PatientID, &b.UserID, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Categories = models.SplitCategories(categories)
		out = append(out, &b)
	}
	return out, rows.Err()
}

// DeleteBookmark hard-deletes a bookmark.
func (s *SQLiteStore) DeleteBookmark(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
	return err
}

// SaveHistory upserts a history entry keyed by (user, patient, phrase);
// repeating a search refreshes last_searched_at.
func (s *SQLiteStore) SaveHistory(ctx context.Context, h *models.HistoryEntry) (*models.HistoryEntry, error) {
	if h.PatientID <= 0 || h.UserID <= 0 {
		return nil, fmt.Errorf("%w: history needs a patient and an owner", models.ErrValidation)
	}
	if h.UUID == "" {
		h.UUID = uuid.New().String()
	}
	h.LastSearchedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (uuid, search_phrase, patient_id, user_id, last_searched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, patient_id, search_phrase)
		 DO UPDATE SET last_searched_at = excluded.last_searched_at`,
		h.UUID, h.SearchPhrase, h.PatientID, h.UserID, h.LastSearchedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save history: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT id, uuid FROM search_history WHERE user_id = ? AND patient_id = ? AND search_phrase = ?`,
		h.UserID, h.PatientID, h.SearchPhrase,
	).Scan(&h.ID, &h.UUID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (s *SQLiteStore) scanHistory(row *sql.Row) (*models.HistoryEntry, error) {
	var h models.HistoryEntry
	err := row.Scan(&h.ID, &h.UUID, &h.SearchPhrase, &h.PatientID, &h.UserID, &h.LastSearchedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("history entry: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const historyColumns = `id, uuid, search_phrase, patient_id, user_id, last_searched_at`

// GetHistory returns a history entry by id.
func (s *SQLiteStore) GetHistory(ctx context.Context, id int64) (*models.HistoryEntry, error) {
	return s.scanHistory(s.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM search_history WHERE id = ?`, id))
}

// GetHistoryByUUID returns a history entry by uuid.
func (s *SQLiteStore) GetHistoryByUUID(ctx context.Context, u string) (*models.HistoryEntry, error) {
	return s.scanHistory(s.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM search_history WHERE uuid = ?`, u))
}

// ListHistory returns a user's history, most recent first.
func (s *SQLiteStore) ListHistory(ctx context.Context, userID int64) ([]*models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM search_history WHERE user_id = ? ORDER BY last_searched_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		var h models.HistoryEntry
		if err := rows.Scan(&h.ID, &h.UUID, &h.SearchPhrase, &h.PatientID, &h.UserID, &h.LastSearchedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// DeleteHistory hard-deletes a history entry.
func (s *SQLiteStore) DeleteHistory(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM search_history WHERE id = ?`, id)
	return err
}

// SaveNote inserts or updates a note.
func (s *SQLiteStore) SaveNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	if n.Comment == "" {
		return nil, fmt.Errorf("%w: note comment is required", models.ErrValidation)
	}
	if n.PatientID <= 0 || n.UserID <= 0 {
		return nil, fmt.Errorf("%w: note needs a patient and an owner", models.ErrValidation)
	}
	if n.UUID == "" {
		n.UUID = uuid.New().String()
	}
	if n.Priority == "" {
		n.Priority = "LOW"
	}
	if n.ID == 0 {
		n.CreatedAt = time.Now()
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO search_notes (uuid, comment, search_phrase, priority, display_color, patient_id, user_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			n.UUID, n.Comment, n.SearchPhrase, n.Priority, n.DisplayColor, n.PatientID, n.UserID, n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert note: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		n.ID = id
	} else {
		_, err := s.db.ExecContext(ctx,
			`UPDATE search_notes SET comment = ?, priority = ?, display_color = ? WHERE id = ?`,
			n.Comment, n.Priority, n.DisplayColor, n.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update note: %w", err)
		}
	}
	return n, nil
}

func (s *SQLiteStore) scanNote(row *sql.Row) (*models.Note, error) {
	var n models.Note
	var color sql.NullString
	err := row.Scan(&n.ID, &n.UUID, &n.Comment, &n.SearchPhrase, &n.Priority, &color, &n.PatientID, &n.UserID, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	n.DisplayColor = color.String
	return &n, nil
}

const noteColumns = `id, uuid, comment, search_phrase, priority, display_color, patient_id, user_id, created_at`

// GetNote returns a note by id.
func (s *SQLiteStore) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	return s.scanNote(s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM search_notes WHERE id = ?`, id))
}

// GetNoteByUUID returns a note by uuid.
func (s *SQLiteStore) GetNoteByUUID(ctx context.Context, u string) (*models.Note, error) {
	return s.scanNote(s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM search_notes WHERE uuid = ?`, u))
}

// ListNotes returns a patient's notes, newest first.
func (s *SQLiteStore) ListNotes(ctx context.Context, patientID int64) ([]*models.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM search_notes WHERE patient_id = ? ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Note
	for rows.Next() {
		var n models.Note
		var color sql.NullString
		if err := rows.Scan(&n.ID, &n.UUID, &n.Comment, &n.SearchPhrase, &n.Priority, &color, &n.PatientID, &n.UserID, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.DisplayColor = color.String
		out = append(out, &n)
	}
	return out, rows.Err()
}

// DeleteNote hard-deletes a note.
func (s *SQLiteStore) DeleteNote(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM search_notes WHERE id = ?`, id)
	return err
}

// SavePreference inserts or updates a user's preference record.
func (s *SQLiteStore) SavePreference(ctx context.Context, p *models.Preference) (*models.Preference, error) {
	if p.UserID <= 0 {
		return nil, fmt.Errorf("%w: preference needs an owner", models.ErrValidation)
	}
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	if p.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO preferences (uuid, user_id, enable_history, enable_bookmarks, enable_notes, notes_color)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.UUID, p.UserID, p.EnableHistory, p.EnableBookmarks, p.EnableNotes, p.NotesColor,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert preference: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		p.ID = id
	} else {
		_, err := s.db.ExecContext(ctx,
			`UPDATE preferences SET enable_history = ?, enable_bookmarks = ?, enable_notes = ?, notes_color = ? WHERE id = ?`,
			p.EnableHistory, p.EnableBookmarks, p.EnableNotes, p.NotesColor, p.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update preference: %w", err)
		}
	}
	return p, nil
}

func (s *SQLiteStore) scanPreference(row *sql.Row) (*models.Preference, error) {
	var p models.Preference
	var color sql.NullString
	err := row.Scan(&p.ID, &p.UUID, &p.UserID, &p.EnableHistory, &p.EnableBookmarks, &p.EnableNotes, &color)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("preference: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	p.NotesColor = color.String
	return &p, nil
}

const preferenceColumns = `id, uuid, user_id, enable_history, enable_bookmarks, enable_notes, notes_color`

// GetPreference returns a preference by id.
func (s *SQLiteStore) GetPreference(ctx context.Context, id int64) (*models.Preference, error) {
	return s.scanPreference(s.db.QueryRowContext(ctx,
		`SELECT `+preferenceColumns+` FROM preferences WHERE id = ?`, id))
}

// GetPreferenceByUUID returns a preference by uuid.
func (s *SQLiteStore) GetPreferenceByUUID(ctx context.Context, u string) (*models.Preference, error) {
	return s.scanPreference(s.db.QueryRowContext(ctx,
		`SELECT `+preferenceColumns+` FROM preferences WHERE uuid = ?`, u))
}

// GetPreferenceByUser returns the preference record of a user.
func (s *SQLiteStore) GetPreferenceByUser(ctx context.Context, userID int64) (*models.Preference, error) {
	return s.scanPreference(s.db.QueryRowContext(ctx,
		`SELECT `+preferenceColumns+` FROM preferences WHERE user_id = ?`, userID))
}

// ListPreferences returns all users' preference records.
func (s *SQLiteStore) ListPreferences(ctx context.Context) ([]*models.Preference, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+preferenceColumns+` FROM preferences ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Preference
	for rows.Next() {
		var p models.Preference
		var color sql.NullString
		if err := rows.Scan(&p.ID, &p.UUID, &p.UserID, &p.EnableHistory, &p.EnableBookmarks, &p.EnableNotes, &color); err != nil {
			return nil, err
		}
		p.NotesColor = color.String
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeletePreference hard-deletes a preference record.
func (s *SQLiteStore) DeletePreference(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE id = ?`, id)
	return err
}
