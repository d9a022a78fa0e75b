// Package config provides configuration loading and structs for the
// chartsearch server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Search  SearchConfig  `yaml:"search"`
	Reindex ReindexConfig `yaml:"reindex"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the application database, the clinical
// database, the index, and the synonym/category seed file.
type StorageConfig struct {
	DatabasePath         string `yaml:"database_path"`
	ClinicalDatabasePath string `yaml:"clinical_database_path"`
	BleveIndexPath       string `yaml:"bleve_index_path"`
	SeedPath             string `yaml:"seed_path"`
}

// SearchConfig holds query and facet settings.
type SearchConfig struct {
	DefaultLimit int      `yaml:"default_limit"`
	MaxLimit     int      `yaml:"max_limit"`
	FacetFields  []string `yaml:"facet_fields"`
	FacetSize    int      `yaml:"facet_size"`
}

// ReindexConfig holds bulk reindex settings.
type ReindexConfig struct {
	Workers      int `yaml:"workers"`
	DefaultLimit int `yaml:"default_limit"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.ClinicalDatabasePath = expandPath(cfg.Storage.ClinicalDatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Storage.SeedPath != "" {
		cfg.Storage.SeedPath = expandPath(cfg.Storage.SeedPath, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
