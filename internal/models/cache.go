package models

import (
	"strings"
	"time"
)

// Bookmark is a saved search (phrase plus selected categories) a user can
// replay for a patient. When DefaultSearch is set it runs automatically on
// chart open.
type Bookmark struct {
	ID            int64     `json:"id"`
	UUID          string    `json:"uuid"`
	Name          string    `json:"name"`
	SearchPhrase  string    `json:"search_phrase"`
	Categories    []string  `json:"categories,omitempty"`
	DefaultSearch bool      `json:"default_search"`
	PatientID     int64     `json:"patient_id"`
	UserID        int64     `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// HistoryEntry records a search a user ran against a patient's chart.
// Entries are unique per user, patient, and phrase; repeating a search
// updates LastSearchedAt.
type HistoryEntry struct {
	ID             int64     `json:"id"`
	UUID           string    `json:"uuid"`
	SearchPhrase   string    `json:"search_phrase"`
	PatientID      int64     `json:"patient_id"`
	UserID         int64     `json:"user_id"`
	LastSearchedAt time.Time `json:"last_searched_at"`
}

// Note is a user's comment on a specific search result set.
type Note struct {
	ID           int64     `json:"id"`
	UUID         string    `json:"uuid"`
	Comment      string    `json:"comment"`
	SearchPhrase string    `json:"search_phrase"`
	Priority     string    `json:"priority"`
	DisplayColor string    `json:"display_color,omitempty"`
	PatientID    int64     `json:"patient_id"`
	UserID       int64     `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Preference holds a user's chart search settings.
type Preference struct {
	ID              int64  `json:"id"`
	UUID            string `json:"uuid"`
	UserID          int64  `json:"user_id"`
	EnableHistory   bool   `json:"enable_history"`
	EnableBookmarks bool   `json:"enable_bookmarks"`
	EnableNotes     bool   `json:"enable_notes"`
	NotesColor      string `json:"notes_color,omitempty"`
}

// JoinCategories serializes selected category names for storage, matching
// the comma-separated representation used by bookmarks.
func JoinCategories(categories []string) string {
	return strings.Join(categories, ", ")
}

// SplitCategories parses a stored category list back into names.
func SplitCategories(stored string) []string {
	if strings.TrimSpace(stored) == "" {
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
