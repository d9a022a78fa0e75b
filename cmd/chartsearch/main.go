// Package main is the chartsearch CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinsearch/chartsearch/internal/categories"
	"github.com/clinsearch/chartsearch/internal/clinical"
	"github.com/clinsearch/chartsearch/internal/config"
	"github.com/clinsearch/chartsearch/internal/index"
	"github.com/clinsearch/chartsearch/internal/indexer"
	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/internal/query"
	"github.com/clinsearch/chartsearch/internal/search"
	"github.com/clinsearch/chartsearch/internal/seed"
	"github.com/clinsearch/chartsearch/internal/server"
	"github.com/clinsearch/chartsearch/internal/storage"
	"github.com/clinsearch/chartsearch/internal/synonyms"
	"github.com/clinsearch/chartsearch/internal/watcher"
	"github.com/clinsearch/chartsearch/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/chartsearch/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "chartsearch server" from the project dir uses the
// project's config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "reindex-all":
		runReindexAll()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("chartsearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (snapshot reloads, index batches, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if cfg.Storage.SeedPath != "" {
		seedLoader := seed.NewLoader(components.Synonyms, components.Categories, logger)
		if err := seedLoader.Load(watchCtx, cfg.Storage.SeedPath); err != nil {
			logger.Warn("initial seed load failed", zap.Error(err))
		}
		watchOpts := []watcher.WatcherOption{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(cfg.Storage.SeedPath, func(path string) {
			if err := seedLoader.Load(context.Background(), path); err != nil {
				logger.Warn("seed reload failed", zap.String("path", path), zap.Error(err))
			}
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start seed watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Searcher,
		components.Indexer,
		components.Synonyms,
		components.Categories,
		components.Storage,
		components.Clinical,
		components.Index,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: chartsearch search [flags] --patient <id> <phrase>\n\n")
	fmt.Fprintf(fs.Output(), "Phrase is all remaining arguments joined by spaces. An empty phrase matches every document of the patient.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  chartsearch search --patient 7 chest pain
  chartsearch search --patient 7 --categories "Diagnoses" fever
  chartsearch search --patient 7 --output json pyrexia
`)
}

// buildSearchPhrase joins all positional args with spaces so multi-word
// phrases work the same with or without shell quoting.
func buildSearchPhrase(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// phrase to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8180", "server URL (empty = use direct storage when server is not running)")
	patientID := fs.Int64("patient", 0, "patient id (required)")
	categoriesFlag := fs.String("categories", "", "comma-separated category filter names")
	limit := fs.Int("limit", 0, "number of results (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	if *patientID <= 0 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	phrase := buildSearchPhrase(fs.Args())

	req := &models.SearchRequest{
		PatientID:  *patientID,
		Phrase:     phrase,
		Categories: models.SplitCategories(*categoriesFlag),
		Limit:      *limit,
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// Use HTTP API when server is running (avoids Bleve/SQLite lock conflict).
		resp, err := searchViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		response = resp
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		resp, err := components.Searcher.Search(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		response = resp
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("%d hit(s) for %q (%d shown, %d ms)\n",
			response.Total, response.Phrase, len(response.Items), response.QueryTime)
		for _, item := range response.Items {
			fmt.Printf("  [%s] %+v\n", item.ItemType(), item)
		}
		for _, facet := range response.Facets {
			fmt.Printf("facet %s:\n", facet.Field)
			for _, v := range facet.Values {
				fmt.Printf("  %s (%d)\n", v.Value, v.Count)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, req *models.SearchRequest) (*models.SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/v1/patients/%d/search", serverURL, req.PatientID)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	// Items decode as raw maps on the client side; the typed variants only
	// exist server-side.
	var response models.SearchResponse
	dec := json.NewDecoder(resp.Body)
	var raw struct {
		Items     []json.RawMessage   `json:"items"`
		Facets    []models.FacetField `json:"facets"`
		Total     int                 `json:"total"`
		Skipped   int                 `json:"skipped"`
		Phrase    string              `json:"phrase"`
		QueryTime int64               `json:"query_time_ms"`
	}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	response.Facets = raw.Facets
	response.Total = raw.Total
	response.Skipped = raw.Skipped
	response.Phrase = raw.Phrase
	response.QueryTime = raw.QueryTime
	for _, r := range raw.Items {
		var item rawItem
		if err := json.Unmarshal(r, &item); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		response.Items = append(response.Items, item)
	}
	return &response, nil
}

// rawItem is a client-side stand-in for a typed result item.
type rawItem map[string]interface{}

func (r rawItem) ItemType() string {
	if t, ok := r["document_type"].(string); ok {
		return t
	}
	return ""
}

func (r rawItem) ItemScore() float64 {
	if s, ok := r["relevance"].(float64); ok {
		return s
	}
	return 0
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8180", "server URL (empty = use direct storage)")
	patientID := fs.Int64("patient", 0, "patient id (required)")
	_ = fs.Parse(os.Args[2:])

	if *patientID <= 0 {
		fmt.Println("Usage: chartsearch index --patient <id>")
		os.Exit(1)
	}

	if *serverURL != "" {
		url := fmt.Sprintf("%s/api/v1/patients/%d/index", *serverURL, *patientID)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Indexing failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Patient %d indexed\n", *patientID)
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Indexer.IndexPatientData(context.Background(), *patientID); err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Patient %d indexed\n", *patientID)
}

func runReindexAll() {
	fs := flag.NewFlagSet("reindex-all", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 0, "max patients to reindex (0 = all)")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracker := indexer.NewJobTracker()
	if err := components.Indexer.IndexAllPatientData(ctx, *limit, tracker); err != nil {
		fmt.Fprintf(os.Stderr, "Reindex ended with error: %v\n", err)
	}
	status := tracker.Snapshot()
	fmt.Printf("Reindex finished: %d indexed, %d failed", status.Indexed, status.Failed)
	if status.Canceled {
		fmt.Print(" (canceled)")
	}
	fmt.Println()
	if len(status.FailedPatients) > 0 {
		fmt.Printf("Failed patients: %v\n", status.FailedPatients)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8180", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		for _, key := range []string{"indexed_documents", "synonym_groups", "category_filters"} {
			if v, ok := status[key]; ok {
				fmt.Printf("%-20s %v\n", key+":", v)
			}
		}
		if reindex, ok := status["reindex"].(map[string]interface{}); ok {
			fmt.Printf("%-20s running=%v indexed=%v failed=%v\n",
				"reindex:", reindex["running"], reindex["indexed"], reindex["failed"])
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage    storage.Store
	Clinical   clinical.Source
	Index      index.PatientIndex
	Synonyms   *synonyms.Store
	Categories *categories.Registry
	Searcher   *search.Searcher
	Indexer    *indexer.Indexer
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Clinical != nil {
		_ = c.Clinical.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	clinicalSource, err := clinical.NewSQLiteSource(cfg.Storage.ClinicalDatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize clinical source: %w", err)
	}

	patientIndex, err := index.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}

	ctx := context.Background()
	synonymStore, err := synonyms.NewStore(ctx, store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize synonym store: %w", err)
	}
	categoryRegistry, err := categories.NewRegistry(ctx, store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize category registry: %w", err)
	}

	expander := query.NewExpander(synonymStore, categoryRegistry)
	searcher := search.NewSearcher(expander, patientIndex, store, search.Options{
		FacetFields:  cfg.Search.FacetFields,
		FacetSize:    cfg.Search.FacetSize,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	}, logger)

	idxOpts := []indexer.Option{indexer.WithWorkers(cfg.Reindex.Workers)}
	if debug && logger != nil {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	idx := indexer.NewIndexer(clinicalSource, patientIndex, idxOpts...)

	return &Components{
		Storage:    store,
		Clinical:   clinicalSource,
		Index:      patientIndex,
		Synonyms:   synonymStore,
		Categories: categoryRegistry,
		Searcher:   searcher,
		Indexer:    idx,
	}, nil
}

func printUsage() {
	fmt.Println(`chartsearch - Patient chart search engine

Usage:
  chartsearch server [flags]              Start the HTTP server
  chartsearch search [flags] <phrase>     Search a patient's chart
  chartsearch index [flags]               Index one patient
  chartsearch reindex-all [flags]         Reindex all patients
  chartsearch status [flags]              Show engine/index status
  chartsearch version                     Show version
  chartsearch help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/chartsearch/config.yaml)
  --debug            Enable debug logging (snapshot reloads, index batches, etc.)

Search Flags:
  --config string      Config file path (for direct storage mode)
  --server string      Server URL (default: http://localhost:8180). Use empty (--server "") for direct storage.
  --patient int        Patient id (required)
  --categories string  Comma-separated category filter names
  --limit int          Number of results
  --output string      Output format: text or json (default: text)

Index Flags:
  --config string    Config file path
  --server string    Server URL (default: http://localhost:8180). Use empty for direct storage.
  --patient int      Patient id (required)

Reindex Flags:
  --config string    Config file path
  --limit int        Max patients to reindex (0 = all)

Status Flags:
  --server string    Server URL (default: http://localhost:8180)
  --output string    Output format: text or json (default: text)

Examples:
  chartsearch server
  chartsearch search --patient 7 chest pain
  chartsearch search --patient 7 --categories "Diagnoses" fever
  chartsearch index --patient 7
  chartsearch reindex-all
  chartsearch status --output json`)
}
