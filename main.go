package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tunnelarr/api"
	"tunnelarr/config"
	"tunnelarr/handlers"
	"tunnelarr/internal/database"
	"tunnelarr/models"
	"tunnelarr/services/registry"
	"tunnelarr/services/search"
	"tunnelarr/services/transfers"
	"tunnelarr/services/tunnel"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("tunnelarr starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("TUNNELARR_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Source catalog
	reg := registry.NewService(sourceEntries(settings.Sources))

	// Search backends
	aggregator := search.NewAggregator(reg, buildSearchers(settings.Searchers)...)

	// Tunnel gate
	provider := tunnel.NewHTTPProvider(settings.Tunnel.ProviderURL, nil)
	gate := tunnel.NewService(provider,
		time.Duration(settings.Tunnel.WaitIntervalSeconds)*time.Second,
		time.Duration(settings.Tunnel.MonitorIntervalSeconds)*time.Second)

	// History store
	store, err := database.Open(settings.Database.Directory)
	if err != nil {
		log.Fatalf("failed to open history database: %v", err)
	}
	defer store.Close()

	// Transfer manager
	manager := transfers.NewService(gate,
		transfers.SeedingPolicy{
			MaxRatio:    settings.Transfers.MaxSeedRatio,
			MaxSeedTime: time.Duration(settings.Transfers.MaxSeedTimeMinutes) * time.Minute,
		},
		time.Duration(settings.Transfers.PollIntervalSeconds)*time.Second,
		buildClients(settings.Clients)...)
	manager.SetRecorder(store)
	manager.Start(context.Background())
	defer manager.Stop()

	// Reload search backends when the settings file changes on disk.
	watcher, err := config.NewWatcher(configPath, func() {
		reloaded, err := cfgManager.Load()
		if err != nil {
			log.Printf("[main] settings reload failed: %v", err)
			return
		}
		aggregator.ReplaceSearchers(buildSearchers(reloaded.Searchers))
		log.Printf("[main] search backends reloaded from settings")
	})
	if err != nil {
		log.Printf("warning: config watcher unavailable: %v", err)
	} else {
		defer watcher.Stop()
	}

	searchDefaults := search.Options{
		Timeout:    time.Duration(settings.Search.TimeoutSeconds) * time.Second,
		MaxResults: settings.Search.MaxResults,
		MinSeeders: settings.Search.MinSeeders,
	}

	r := mux.NewRouter()
	api.Register(
		r,
		handlers.NewSearchHandler(aggregator, store, searchDefaults),
		handlers.NewSourcesHandler(reg),
		handlers.NewTunnelHandler(gate),
		handlers.NewTransfersHandler(manager),
		handlers.NewSettingsHandler(cfgManager, func(updated config.Settings) {
			aggregator.ReplaceSearchers(buildSearchers(updated.Searchers))
		}),
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("shutdown complete")
}

// buildSearchers turns searcher configs into live backends. Unknown types
// are logged and skipped so one bad entry does not take the service down.
func buildSearchers(configs []config.SearcherConfig) []search.Searcher {
	var searchers []search.Searcher
	for _, c := range configs {
		if !c.Enabled {
			continue
		}
		switch strings.ToLower(c.Type) {
		case "scrape":
			if len(c.Mirrors) == 0 {
				log.Printf("[main] scrape searcher %s has no mirrors, skipping", c.Name)
				continue
			}
			searchers = append(searchers, search.NewScrapeSearcher(c.Name, c.Mirrors, nil))
		case "yts":
			if c.URL == "" {
				log.Printf("[main] yts searcher %s has no url, skipping", c.Name)
				continue
			}
			searchers = append(searchers, search.NewYTSSearcher(c.Name, c.URL, nil))
		default:
			log.Printf("[main] unknown searcher type %q for %s, skipping", c.Type, c.Name)
		}
	}
	return searchers
}

// buildClients turns client configs into daemon backends.
func buildClients(configs []config.ClientConfig) []transfers.Client {
	var clients []transfers.Client
	for _, c := range configs {
		if !c.Enabled {
			continue
		}
		switch strings.ToLower(c.Type) {
		case "qbittorrent":
			clients = append(clients, transfers.NewQBittorrentClient(c.Name, c.URL, c.Username, c.Password))
		default:
			log.Printf("[main] unknown client type %q for %s, skipping", c.Type, c.Name)
		}
	}
	return clients
}

// sourceEntries overlays config overrides on the built-in catalog, merged
// by name. A config entry only replaces the fields it sets, so overriding
// one trust score does not strip a default source of its other metadata.
// Unmatched names are appended as new sources.
func sourceEntries(configs []config.SourceConfig) []models.SourceEntry {
	entries := registry.DefaultEntries()
	for _, c := range configs {
		idx := -1
		for i, e := range entries {
			if strings.EqualFold(e.Name, c.Name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			entries = append(entries, models.SourceEntry{Name: c.Name})
			idx = len(entries) - 1
		}

		entry := &entries[idx]
		if c.Category != "" {
			entry.Category = models.SourceCategory(c.Category)
		}
		if c.TrustScore != 0 {
			entry.TrustScore = c.TrustScore
		}
		if len(c.Strengths) > 0 {
			entry.Strengths = c.Strengths
		}
		if c.ActiveFrom != "" {
			if parsed, err := time.Parse("2006-01-02", c.ActiveFrom); err == nil {
				entry.ActiveFrom = parsed
			}
		}
		if c.Retired != nil {
			if *c.Retired {
				retiredAt := time.Now().UTC()
				if parsed, err := time.Parse("2006-01-02", c.RetiredAt); err == nil {
					retiredAt = parsed
				}
				entry.RetiredAt = &retiredAt
			} else {
				entry.RetiredAt = nil
			}
		}
	}
	return entries
}
