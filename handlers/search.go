package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tunnelarr/internal/database"
	"tunnelarr/models"
	"tunnelarr/services/search"
)

type searchAggregator interface {
	Aggregate(ctx context.Context, query string, opts search.Options, sourceNames []string) []models.SearchResult
	SearcherNames() []string
	Health(ctx context.Context) map[string]error
}

var _ searchAggregator = (*search.Aggregator)(nil)

type searchHistory interface {
	RecordSearch(ctx context.Context, query string, resultCount int) error
	RecentSearches(ctx context.Context, limit int) ([]database.SearchRecord, error)
}

type SearchHandler struct {
	Aggregator searchAggregator
	History    searchHistory
	Defaults   search.Options
}

func NewSearchHandler(aggregator searchAggregator, history searchHistory, defaults search.Options) *SearchHandler {
	return &SearchHandler{Aggregator: aggregator, History: history, Defaults: defaults}
}

// Search runs the fan-out search across the requested backends.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, "query parameter q is required", http.StatusBadRequest)
		return
	}

	opts := h.Defaults
	if v := r.URL.Query().Get("type"); v != "" {
		opts.Type = models.MediaType(v)
	}
	if v := r.URL.Query().Get("quality"); v != "" {
		opts.Quality = v
	}
	if v := r.URL.Query().Get("minSeeders"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MinSeeders = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxResults = n
		}
	}
	if v := r.URL.Query().Get("timeoutSeconds"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Timeout = time.Duration(n) * time.Second
		}
	}

	var names []string
	if v := r.URL.Query().Get("sources"); v != "" {
		names = strings.Split(v, ",")
	}

	results := h.Aggregator.Aggregate(r.Context(), query, opts, names)

	if h.History != nil {
		if err := h.History.RecordSearch(r.Context(), query, len(results)); err != nil {
			log.Printf("[handlers] recording search failed: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// RecentSearches returns the stored search history.
func (h *SearchHandler) RecentSearches(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		http.Error(w, "search history is not enabled", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.History.RecentSearches(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []database.SearchRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// Backends lists the configured search backends and their health.
func (h *SearchHandler) Backends(w http.ResponseWriter, r *http.Request) {
	health := h.Aggregator.Health(r.Context())

	type backendStatus struct {
		Name    string `json:"name"`
		Healthy bool   `json:"healthy"`
		Error   string `json:"error,omitempty"`
	}

	var out []backendStatus
	for _, name := range h.Aggregator.SearcherNames() {
		status := backendStatus{Name: name, Healthy: true}
		if err, checked := health[name]; checked && err != nil {
			status.Healthy = false
			status.Error = err.Error()
		}
		out = append(out, status)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
