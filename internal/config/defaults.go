package config

import "github.com/clinsearch/chartsearch/internal/models"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8180
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/chartsearch/data/db/chartsearch.db"
	}
	if cfg.Storage.ClinicalDatabasePath == "" {
		cfg.Storage.ClinicalDatabasePath = "/usr/local/var/chartsearch/data/db/clinical.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/chartsearch/data/indices/bleve"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 50
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 500
	}
	if cfg.Search.FacetFields == nil {
		cfg.Search.FacetFields = append([]string(nil), models.FacetEligibleFields...)
	}
	if cfg.Search.FacetSize == 0 {
		cfg.Search.FacetSize = 10
	}
	if cfg.Reindex.Workers == 0 {
		cfg.Reindex.Workers = 4
	}
}
