// Package synonyms manages synonym groups and serves term expansion from a
// read-mostly snapshot that is swapped atomically on every edit.
package synonyms

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/internal/storage"
)

// snapshot maps a case-folded term to the union of all other non-voided
// terms sharing a non-voided group with it. A term in several groups gets
// the union of all those groups' members.
type snapshot map[string][]string

// Store owns synonym group persistence and expansion lookups. Mutations go
// through the storage collaborator and then rebuild the snapshot; concurrent
// readers observe either the old or the new snapshot, never a partial one.
type Store struct {
	store  storage.Store
	logger *zap.Logger
	snap   atomic.Pointer[snapshot]
}

// NewStore creates a synonym store and loads the initial expansion snapshot.
func NewStore(ctx context.Context, store storage.Store, logger *zap.Logger) (*Store, error) {
	s := &Store{store: store, logger: logger}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rebuilds the expansion snapshot from persisted groups.
func (s *Store) Reload(ctx context.Context) error {
	groups, err := s.store.ListSynonymGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to load synonym groups: %w", err)
	}
	snap := buildSnapshot(groups)
	s.snap.Store(&snap)
	if s.logger != nil {
		s.logger.Debug("synonym snapshot rebuilt",
			zap.Int("groups", len(groups)), zap.Int("terms", len(snap)))
	}
	return nil
}

func buildSnapshot(groups []*models.SynonymGroup) snapshot {
	sets := make(map[string]map[string]struct{})
	for _, g := range groups {
		if g.Voided {
			continue
		}
		terms := make([]string, 0, len(g.Synonyms))
		for _, syn := range g.Synonyms {
			if syn.Voided {
				continue
			}
			terms = append(terms, strings.ToLower(syn.Term))
		}
		for _, term := range terms {
			set, ok := sets[term]
			if !ok {
				set = make(map[string]struct{})
				sets[term] = set
			}
			for _, other := range terms {
				if other != term {
					set[other] = struct{}{}
				}
			}
		}
	}
	snap := make(snapshot, len(sets))
	for term, set := range sets {
		out := make([]string, 0, len(set))
		for other := range set {
			out = append(out, other)
		}
		snap[term] = out
	}
	return snap
}

// Expand returns every other non-voided member of the group(s) containing
// term, case-insensitively. Unknown terms yield an empty set.
func (s *Store) Expand(term string) []string {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	return (*snap)[strings.ToLower(term)]
}

// SaveGroup persists a group and refreshes the snapshot.
func (s *Store) SaveGroup(ctx context.Context, group *models.SynonymGroup) (*models.SynonymGroup, error) {
	saved, err := s.store.SaveSynonymGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	return saved, s.Reload(ctx)
}

// GetGroup returns a non-voided group by id.
func (s *Store) GetGroup(ctx context.Context, id int64) (*models.SynonymGroup, error) {
	return s.store.GetSynonymGroup(ctx, id)
}

// GetGroupByUUID returns a non-voided group by uuid.
func (s *Store) GetGroupByUUID(ctx context.Context, uuid string) (*models.SynonymGroup, error) {
	return s.store.GetSynonymGroupByUUID(ctx, uuid)
}

// GetGroupByName returns a non-voided group by name.
func (s *Store) GetGroupByName(ctx context.Context, name string) (*models.SynonymGroup, error) {
	return s.store.GetSynonymGroupByName(ctx, name)
}

// ListGroups returns all non-voided groups.
func (s *Store) ListGroups(ctx context.Context) ([]*models.SynonymGroup, error) {
	return s.store.ListSynonymGroups(ctx)
}

// ListGroupsByCategory returns non-voided groups filtered by is-category.
func (s *Store) ListGroupsByCategory(ctx context.Context, isCategory bool) ([]*models.SynonymGroup, error) {
	return s.store.ListSynonymGroupsByCategory(ctx, isCategory)
}

// CountGroups counts non-voided groups, optionally only categories.
func (s *Store) CountGroups(ctx context.Context, onlyCategories bool) (int64, error) {
	return s.store.CountSynonymGroups(ctx, onlyCategories)
}

// VoidGroup soft-deletes a group and refreshes the snapshot.
func (s *Store) VoidGroup(ctx context.Context, id int64) error {
	if err := s.store.VoidSynonymGroup(ctx, id); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// UnvoidGroup restores a voided group, with its prior membership, and
// refreshes the snapshot.
func (s *Store) UnvoidGroup(ctx context.Context, id int64) error {
	if err := s.store.UnvoidSynonymGroup(ctx, id); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// PurgeGroup hard-deletes a group and refreshes the snapshot.
func (s *Store) PurgeGroup(ctx context.Context, id int64) error {
	if err := s.store.PurgeSynonymGroup(ctx, id); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// SaveSynonym persists a synonym and refreshes the snapshot.
func (s *Store) SaveSynonym(ctx context.Context, syn *models.Synonym) (*models.Synonym, error) {
	saved, err := s.store.SaveSynonym(ctx, syn)
	if err != nil {
		return nil, err
	}
	return saved, s.Reload(ctx)
}

// GetSynonym returns a non-voided synonym by id.
func (s *Store) GetSynonym(ctx context.Context, id int64) (*models.Synonym, error) {
	return s.store.GetSynonym(ctx, id)
}

// GetSynonymByUUID returns a non-voided synonym by uuid.
func (s *Store) GetSynonymByUUID(ctx context.Context, uuid string) (*models.Synonym, error) {
	return s.store.GetSynonymByUUID(ctx, uuid)
}

// ListSynonymsByGroup returns the non-voided synonyms of a group.
func (s *Store) ListSynonymsByGroup(ctx context.Context, groupID int64) ([]models.Synonym, error) {
	return s.store.ListSynonymsByGroup(ctx, groupID)
}

// CountSynonymsByGroup counts the non-voided synonyms of a group.
func (s *Store) CountSynonymsByGroup(ctx context.Context, groupID int64) (int64, error) {
	return s.store.CountSynonymsByGroup(ctx, groupID)
}

// VoidSynonym soft-deletes a synonym and refreshes the snapshot.
func (s *Store) VoidSynonym(ctx context.Context, id int64) error {
	if err := s.store.VoidSynonym(ctx, id); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// PurgeSynonym hard-deletes a synonym and refreshes the snapshot.
func (s *Store) PurgeSynonym(ctx context.Context, id int64) error {
	if err := s.store.PurgeSynonym(ctx, id); err != nil {
		return err
	}
	return s.Reload(ctx)
}
