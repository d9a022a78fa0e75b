// Package storage defines the persistence interface for synonym groups,
// category filters, and user-scoped search records.
package storage

import (
	"context"

	"github.com/clinsearch/chartsearch/internal/models"
)

// Store defines persistence operations. All get and list operations exclude
// voided records; voided rows stay invisible until unvoided. Purge and
// Delete are hard deletes.
type Store interface {
	// Synonym group operations
	SaveSynonymGroup(ctx context.Context, group *models.SynonymGroup) (*models.SynonymGroup, error)
	GetSynonymGroup(ctx context.Context, id int64) (*models.SynonymGroup, error)
	GetSynonymGroupByUUID(ctx context.Context, uuid string) (*models.SynonymGroup, error)
	GetSynonymGroupByName(ctx context.Context, name string) (*models.SynonymGroup, error)
	ListSynonymGroups(ctx context.Context) ([]*models.SynonymGroup, error)
	ListSynonymGroupsByCategory(ctx context.Context, isCategory bool) ([]*models.SynonymGroup, error)
	CountSynonymGroups(ctx context.Context, onlyCategories bool) (int64, error)
	VoidSynonymGroup(ctx context.Context, id int64) error
	UnvoidSynonymGroup(ctx context.Context, id int64) error
	PurgeSynonymGroup(ctx context.Context, id int64) error

	// Synonym operations
	SaveSynonym(ctx context.Context, syn *models.Synonym) (*models.Synonym, error)
	GetSynonym(ctx context.Context, id int64) (*models.Synonym, error)
	GetSynonymByUUID(ctx context.Context, uuid string) (*models.Synonym, error)
	ListSynonymsByGroup(ctx context.Context, groupID int64) ([]models.Synonym, error)
	CountSynonymsByGroup(ctx context.Context, groupID int64) (int64, error)
	VoidSynonym(ctx context.Context, id int64) error
	PurgeSynonym(ctx context.Context, id int64) error

	// Category filter operations
	SaveCategoryFilter(ctx context.Context, filter *models.CategoryFilter) (*models.CategoryFilter, error)
	GetCategoryFilter(ctx context.Context, id int64) (*models.CategoryFilter, error)
	GetCategoryFilterByUUID(ctx context.Context, uuid string) (*models.CategoryFilter, error)
	ListCategoryFilters(ctx context.Context) ([]*models.CategoryFilter, error)
	DeleteCategoryFilter(ctx context.Context, id int64) error

	// Bookmark operations
	SaveBookmark(ctx context.Context, b *models.Bookmark) (*models.Bookmark, error)
	GetBookmark(ctx context.Context, id int64) (*models.Bookmark, error)
	GetBookmarkByUUID(ctx context.Context, uuid string) (*models.Bookmark, error)
	ListBookmarks(ctx context.Context, userID int64) ([]*models.Bookmark, error)
	DeleteBookmark(ctx context.Context, id int64) error

	// History operations. SaveHistory upserts on (user, patient, phrase).
	SaveHistory(ctx context.Context, h *models.HistoryEntry) (*models.HistoryEntry, error)
	GetHistory(ctx context.Context, id int64) (*models.HistoryEntry, error)
	GetHistoryByUUID(ctx context.Context, uuid string) (*models.HistoryEntry, error)
	ListHistory(ctx context.Context, userID int64) ([]*models.HistoryEntry, error)
	DeleteHistory(ctx context.Context, id int64) error

	// Note operations
	SaveNote(ctx context.Context, n *models.Note) (*models.Note, error)
	GetNote(ctx context.Context, id int64) (*models.Note, error)
	GetNoteByUUID(ctx context.Context, uuid string) (*models.Note, error)
	ListNotes(ctx context.Context, patientID int64) ([]*models.Note, error)
	DeleteNote(ctx context.Context, id int64) error

	// Preference operations
	SavePreference(ctx context.Context, p *models.Preference) (*models.Preference, error)
	GetPreference(ctx context.Context, id int64) (*models.Preference, error)
	GetPreferenceByUUID(ctx context.Context, uuid string) (*models.Preference, error)
	GetPreferenceByUser(ctx context.Context, userID int64) (*models.Preference, error)
	ListPreferences(ctx context.Context) ([]*models.Preference, error)
	DeletePreference(ctx context.Context, id int64) error

	Close() error
}
