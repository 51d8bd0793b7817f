// Package search implements torrent discovery: a polymorphic searcher
// interface with scraping and API backends, and an aggregator that fans a
// query out to every enabled backend, merges, deduplicates and ranks the
// results under a shared deadline.
package search

import (
	"context"
	"time"

	"tunnelarr/models"
)

// Options narrows and bounds a search call.
type Options struct {
	Type       models.MediaType // empty means no type filter
	MaxResults int
	MinSeeders int
	Quality    string // e.g. "1080p"; empty means any
	Timeout    time.Duration
}

// Searcher is one content source backend. Name must match a source registry
// entry. Search absorbs its own network and parse failures: a broken source
// returns an empty slice, never aborts the aggregation. A returned error is
// still logged by the aggregator but treated as an empty result.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]models.SearchResult, error)
}

// HealthChecker is optionally implemented by backends that can verify
// upstream reachability without running a full search.
type HealthChecker interface {
	Health(ctx context.Context) error
}
