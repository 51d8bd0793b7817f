package search

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"

	"tunnelarr/models"
	"tunnelarr/services/registry"
)

// defaultAggregateTimeout bounds a search when the caller does not.
const defaultAggregateTimeout = 30 * time.Second

// Aggregator fans a query out to every requested searcher concurrently,
// merges the returned lists, deduplicates and ranks them. Results are owned
// by the aggregator only for the duration of one call; persistence is the
// caller's business.
type Aggregator struct {
	registry *registry.Service

	mu        sync.RWMutex
	searchers map[string]Searcher
}

// NewAggregator builds an aggregator over the given searchers. Searcher
// names are matched case-insensitively against requested source names.
func NewAggregator(reg *registry.Service, searchers ...Searcher) *Aggregator {
	a := &Aggregator{
		registry:  reg,
		searchers: make(map[string]Searcher),
	}
	a.ReplaceSearchers(searchers)
	return a
}

// ReplaceSearchers swaps the full searcher set. Used on config reload.
func (a *Aggregator) ReplaceSearchers(searchers []Searcher) {
	next := make(map[string]Searcher, len(searchers))
	for _, s := range searchers {
		if s == nil {
			continue
		}
		next[strings.ToLower(s.Name())] = s
	}
	a.mu.Lock()
	a.searchers = next
	a.mu.Unlock()
	log.Printf("[aggregator] %d searcher(s) registered", len(next))
}

// SearcherNames returns the registered searcher names.
func (a *Aggregator) SearcherNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.searchers))
	for _, s := range a.searchers {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return names
}

// Aggregate dispatches the query to every resolvable source concurrently
// under a shared deadline, then merges, deduplicates and ranks. A searcher
// that has not answered by the deadline is treated as empty; its late result
// is dropped harmlessly. Unresolvable names and all-empty outcomes yield an
// empty slice, never an error.
func (a *Aggregator) Aggregate(ctx context.Context, query string, opts Options, sourceNames []string) []models.SearchResult {
	targets := a.resolve(sourceNames)
	if len(targets) == 0 {
		log.Printf("[aggregator] no searchers resolved from %v", sourceNames)
		return nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultAggregateTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered to the fan-out width so a searcher finishing after the
	// deadline can still send without blocking forever.
	resultCh := make(chan []models.SearchResult, len(targets))

	var wg conc.WaitGroup
	for _, s := range targets {
		s := s
		wg.Go(func() {
			start := time.Now()
			results, err := s.Search(sctx, query, opts)
			if err != nil {
				log.Printf("[aggregator] %s search failed: %v", s.Name(), err)
				resultCh <- nil
				return
			}
			log.Printf("[aggregator] %s returned %d result(s) in %s", s.Name(), len(results), time.Since(start).Round(10*time.Millisecond))
			resultCh <- results
		})
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var merged []models.SearchResult
collect:
	for {
		select {
		case batch, ok := <-resultCh:
			if !ok {
				break collect
			}
			merged = append(merged, batch...)
		case <-sctx.Done():
			log.Printf("[aggregator] deadline reached, discarding outstanding searchers")
			break collect
		}
	}

	merged = dedupe(merged)
	a.rank(merged)

	if opts.MaxResults > 0 && len(merged) > opts.MaxResults {
		merged = merged[:opts.MaxResults]
	}
	return merged
}

// resolve maps requested source names to searcher instances. Unknown names
// are logged and skipped, not fatal.
func (a *Aggregator) resolve(sourceNames []string) []Searcher {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(sourceNames) == 0 {
		out := make([]Searcher, 0, len(a.searchers))
		names := make([]string, 0, len(a.searchers))
		for name := range a.searchers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, a.searchers[name])
		}
		return out
	}

	var out []Searcher
	seen := make(map[string]struct{})
	for _, name := range sourceNames {
		key := strings.ToLower(strings.TrimSpace(name))
		s, ok := a.searchers[key]
		if !ok {
			log.Printf("[aggregator] unknown source %q skipped", name)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// dedupe drops later results sharing a normalized title and size with an
// earlier one. Same title with a different size is kept on purpose: torrents
// of the same title can be genuinely different encodes.
func dedupe(results []models.SearchResult) []models.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := results[:0]
	for _, r := range results {
		key := fmt.Sprintf("%s|%d", r.NormalizedTitle, r.SizeBytes)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// rank orders results by seeders, then registry trust of the source, then
// upload recency. Ties keep first-seen order.
func (a *Aggregator) rank(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Seeders != results[j].Seeders {
			return results[i].Seeders > results[j].Seeders
		}
		ti, tj := a.registry.TrustScore(results[i].Source), a.registry.TrustScore(results[j].Source)
		if ti != tj {
			return ti > tj
		}
		return results[i].UploadedAt.After(results[j].UploadedAt)
	})
}

// Health probes every registered searcher that supports it, concurrently.
func (a *Aggregator) Health(ctx context.Context) map[string]error {
	a.mu.RLock()
	snapshot := make(map[string]Searcher, len(a.searchers))
	for name, s := range a.searchers {
		snapshot[name] = s
	}
	a.mu.RUnlock()

	var (
		mu  sync.Mutex
		out = make(map[string]error, len(snapshot))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range snapshot {
		hc, ok := s.(HealthChecker)
		if !ok {
			continue
		}
		name := s.Name()
		g.Go(func() error {
			err := hc.Health(gctx)
			mu.Lock()
			out[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
