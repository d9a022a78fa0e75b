// Package seed loads synonym groups and category filters from a YAML file
// into storage. Seeding is additive: groups and filters that already exist
// by name are left untouched so admin edits survive restarts and reloads.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/clinsearch/chartsearch/internal/categories"
	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/internal/synonyms"
)

// File is the YAML document shape of a seed file.
type File struct {
	SynonymGroups   []GroupSeed  `yaml:"synonym_groups"`
	CategoryFilters []FilterSeed `yaml:"category_filters"`
}

// GroupSeed is one synonym group entry.
type GroupSeed struct {
	Name       string   `yaml:"name"`
	IsCategory bool     `yaml:"is_category"`
	Synonyms   []string `yaml:"synonyms"`
}

// FilterSeed is one category filter entry.
type FilterSeed struct {
	Name    string   `yaml:"name"`
	Fields  []string `yaml:"fields"`
	Enabled *bool    `yaml:"enabled"`
}

// Loader seeds the synonym store and category registry from a file.
type Loader struct {
	synonyms   *synonyms.Store
	categories *categories.Registry
	logger     *zap.Logger
}

// NewLoader creates a seed loader.
func NewLoader(syn *synonyms.Store, cats *categories.Registry, logger *zap.Logger) *Loader {
	return &Loader{synonyms: syn, categories: cats, logger: logger}
}

// Load reads the seed file at path and applies it. Individual entries that
// fail validation are logged and skipped; a malformed file fails the load.
func (l *Loader) Load(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	var created int
	for _, gs := range file.SynonymGroups {
		ok, err := l.seedGroup(ctx, gs)
		if err != nil {
			return err
		}
		if ok {
			created++
		}
	}
	for _, fs := range file.CategoryFilters {
		ok, err := l.seedFilter(ctx, fs)
		if err != nil {
			return err
		}
		if ok {
			created++
		}
	}
	if l.logger != nil {
		l.logger.Info("seed file applied", zap.String("path", path), zap.Int("created", created))
	}
	return nil
}

func (l *Loader) seedGroup(ctx context.Context, gs GroupSeed) (bool, error) {
	if strings.TrimSpace(gs.Name) == "" {
		l.warn("skipping seed group without name")
		return false, nil
	}
	existing, err := l.synonyms.GetGroupByName(ctx, gs.Name)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("failed to check seed group %q: %w", gs.Name, err)
	}
	if existing != nil {
		return false, nil
	}

	group, err := l.synonyms.SaveGroup(ctx, &models.SynonymGroup{
		Name:       gs.Name,
		IsCategory: gs.IsCategory,
	})
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			l.warn("skipping invalid seed group", zap.String("name", gs.Name), zap.Error(err))
			return false, nil
		}
		return false, fmt.Errorf("failed to seed group %q: %w", gs.Name, err)
	}
	for _, term := range gs.Synonyms {
		if strings.TrimSpace(term) == "" {
			continue
		}
		if _, err := l.synonyms.SaveSynonym(ctx, &models.Synonym{GroupID: group.ID, Term: term}); err != nil {
			if errors.Is(err, models.ErrValidation) {
				l.warn("skipping invalid seed synonym",
					zap.String("group", gs.Name), zap.String("term", term), zap.Error(err))
				continue
			}
			return false, fmt.Errorf("failed to seed synonym %q in group %q: %w", term, gs.Name, err)
		}
	}
	return true, nil
}

func (l *Loader) seedFilter(ctx context.Context, fs FilterSeed) (bool, error) {
	if strings.TrimSpace(fs.Name) == "" {
		l.warn("skipping seed filter without name")
		return false, nil
	}
	existing, err := l.categories.List(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list category filters: %w", err)
	}
	for _, f := range existing {
		if strings.EqualFold(f.Name, fs.Name) {
			return false, nil
		}
	}

	enabled := true
	if fs.Enabled != nil {
		enabled = *fs.Enabled
	}
	_, err = l.categories.Save(ctx, &models.CategoryFilter{
		Name:    fs.Name,
		Fields:  fs.Fields,
		Enabled: enabled,
	})
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			l.warn("skipping invalid seed filter", zap.String("name", fs.Name), zap.Error(err))
			return false, nil
		}
		return false, fmt.Errorf("failed to seed filter %q: %w", fs.Name, err)
	}
	return true, nil
}

func (l *Loader) warn(msg string, fields ...zap.Field) {
	if l.logger != nil {
		l.logger.Warn(msg, fields...)
	}
}
