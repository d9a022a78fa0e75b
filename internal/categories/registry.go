// Package categories manages category filters and resolves selected
// category names into index field sets.
package categories

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/internal/storage"
)

// snapshot maps a case-folded enabled filter name to its field set.
type snapshot map[string][]string

// Registry owns category filter persistence and name-to-fields resolution.
// Like the synonym store, it keeps a read-mostly snapshot swapped on edit.
type Registry struct {
	store  storage.Store
	logger *zap.Logger
	snap   atomic.Pointer[snapshot]
}

// NewRegistry creates a registry and loads the initial snapshot.
func NewRegistry(ctx context.Context, store storage.Store, logger *zap.Logger) (*Registry, error) {
	r := &Registry{store: store, logger: logger}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds the resolution snapshot from persisted filters.
func (r *Registry) Reload(ctx context.Context) error {
	filters, err := r.store.ListCategoryFilters(ctx)
	if err != nil {
		return fmt.Errorf("failed to load category filters: %w", err)
	}
	snap := make(snapshot)
	for _, f := range filters {
		if !f.Enabled {
			continue
		}
		snap[strings.ToLower(f.Name)] = f.Fields
	}
	r.snap.Store(&snap)
	if r.logger != nil {
		r.logger.Debug("category snapshot rebuilt", zap.Int("filters", len(snap)))
	}
	return nil
}

// Resolve returns the union of index fields the named categories activate.
// Unrecognized names are logged and skipped rather than failing the query;
// selected category lists are often partially stale relative to registry
// edits. A known name with zero fields contributes nothing (a no-op, not
// "match nothing").
func (r *Registry) Resolve(names []string) []string {
	snap := r.snap.Load()
	if snap == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var fields []string
	for _, name := range names {
		set, ok := (*snap)[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			if r.logger != nil {
				r.logger.Warn("unknown category in search request", zap.String("category", name))
			}
			continue
		}
		for _, field := range set {
			if _, dup := seen[field]; dup {
				continue
			}
			seen[field] = struct{}{}
			fields = append(fields, field)
		}
	}
	return fields
}

// Save persists a filter and refreshes the snapshot.
func (r *Registry) Save(ctx context.Context, filter *models.CategoryFilter) (*models.CategoryFilter, error) {
	saved, err := r.store.SaveCategoryFilter(ctx, filter)
	if err != nil {
		return nil, err
	}
	return saved, r.Reload(ctx)
}

// Get returns a filter by id.
func (r *Registry) Get(ctx context.Context, id int64) (*models.CategoryFilter, error) {
	return r.store.GetCategoryFilter(ctx, id)
}

// GetByUUID returns a filter by uuid.
func (r *Registry) GetByUUID(ctx context.Context, uuid string) (*models.CategoryFilter, error) {
	return r.store.GetCategoryFilterByUUID(ctx, uuid)
}

// List returns all filters.
func (r *Registry) List(ctx context.Context) ([]*models.CategoryFilter, error) {
	return r.store.ListCategoryFilters(ctx)
}

// Delete removes a filter and refreshes the snapshot.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	if err := r.store.DeleteCategoryFilter(ctx, id); err != nil {
		return err
	}
	return r.Reload(ctx)
}
