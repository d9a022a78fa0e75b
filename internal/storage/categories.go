package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinsearch/chartsearch/internal/models"
)

// Category filter fields are stored as a comma-joined list of index field
// identifiers; identifiers never contain commas.

// SaveCategoryFilter inserts or updates a filter. Names must be unique among
// enabled filters, case-insensitively; a duplicate is a validation error, not
// a silent overwrite.
func (s *SQLiteStore) SaveCategoryFilter(ctx context.Context, filter *models.CategoryFilter) (*models.CategoryFilter, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Enabled {
		var clash int64
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM category_filters
			 WHERE enabled = 1 AND name = ? COLLATE NOCASE AND id != ?`,
			filter.Name, filter.ID,
		).Scan(&clash)
		if err != nil {
			return nil, err
		}
		if clash > 0 {
			return nil, fmt.Errorf("%w: category filter name %q already in use", models.ErrValidation, filter.Name)
		}
	}
	if filter.UUID == "" {
		filter.UUID = uuid.New().String()
	}
	fields := strings.Join(filter.Fields, ",")
	if filter.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO category_filters (uuid, name, fields, enabled) VALUES (?, ?, ?, ?)`,
			filter.UUID, filter.Name, fields, filter.Enabled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert category filter: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		filter.ID = id
	} else {
		result, err := s.db.ExecContext(ctx,
			`UPDATE category_filters SET name = ?, fields = ?, enabled = ? WHERE id = ?`,
			filter.Name, fields, filter.Enabled, filter.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update category filter: %w", err)
		}
		n, _ := result.RowsAffected()
		if n == 0 {
			return nil, fmt.Errorf("category filter %d: %w", filter.ID, models.ErrNotFound)
		}
	}
	return filter, nil
}

func (s *SQLiteStore) getCategoryFilterWhere(ctx context.Context, where string, arg interface{}) (*models.CategoryFilter, error) {
	var f models.CategoryFilter
	var fields string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, uuid, name, fields, enabled FROM category_filters WHERE `+where, arg,
	).Scan(&f.ID, &f.UUID, &f.Name, &fields, &f.Enabled)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("category filter: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	f.Fields = splitFields(fields)
	return &f, nil
}

// GetCategoryFilter returns a filter by id.
func (s *SQLiteStore) GetCategoryFilter(ctx context.Context, id int64) (*models.CategoryFilter, error) {
	return s.getCategoryFilterWhere(ctx, "id = ?", id)
}

// GetCategoryFilterByUUID returns a filter by uuid.
func (s *SQLiteStore) GetCategoryFilterByUUID(ctx context.Context, u string) (*models.CategoryFilter, error) {
	return s.getCategoryFilterWhere(ctx, "uuid = ?", u)
}

// ListCategoryFilters returns all filters in name order.
func (s *SQLiteStore) ListCategoryFilters(ctx context.Context) ([]*models.CategoryFilter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, uuid, name, fields, enabled FROM category_filters ORDER BY name COLLATE NOCASE`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var filters []*models.CategoryFilter
	for rows.Next() {
		var f models.CategoryFilter
		var fields string
		if err := rows.Scan(&f.ID, &f.UUID, &f.Name, &fields, &f.Enabled); err != nil {
			return nil, err
		}
		f.Fields = splitFields(fields)
		filters = append(filters, &f)
	}
	return filters, rows.Err()
}

// DeleteCategoryFilter hard-deletes a filter.
func (s *SQLiteStore) DeleteCategoryFilter(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM category_filters WHERE id = ?`, id)
	return err
}

func splitFields(stored string) []string {
	if stored == "" {
		return nil
	}
	parts := strings.Split(stored, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
