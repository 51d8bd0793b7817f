package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"tunnelarr/models"
	"tunnelarr/services/registry"
)

// stubSearcher returns canned results, optionally after a delay.
type stubSearcher struct {
	name    string
	results []models.SearchResult
	err     error
	delay   time.Duration
}

func (s *stubSearcher) Name() string { return s.name }

func (s *stubSearcher) Search(ctx context.Context, _ string, _ Options) ([]models.SearchResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.results, s.err
}

func result(title, source string, seeders int, size int64) models.SearchResult {
	return models.SearchResult{
		Title:           title,
		NormalizedTitle: NormalizeTitle(title),
		Source:          source,
		Seeders:         seeders,
		SizeBytes:       size,
	}
}

func testRegistry() *registry.Service {
	return registry.NewService([]models.SourceEntry{
		{Name: "alpha", TrustScore: 90},
		{Name: "beta", TrustScore: 40},
	})
}

func TestAggregateDedup(t *testing.T) {
	a := NewAggregator(testRegistry(),
		&stubSearcher{name: "alpha", results: []models.SearchResult{
			result("Movie.2020.1080p", "alpha", 10, 1000),
		}},
		&stubSearcher{name: "beta", results: []models.SearchResult{
			result("Movie 2020 1080p", "beta", 10, 1000),
			result("Movie 2020 1080p", "beta", 10, 2000),
		}},
	)

	got := a.Aggregate(context.Background(), "movie", Options{}, []string{"alpha", "beta"})
	if len(got) != 2 {
		t.Fatalf("identical title+size must dedup, differing size must survive: got %d results", len(got))
	}
	sizes := map[int64]bool{}
	for _, r := range got {
		sizes[r.SizeBytes] = true
	}
	if !sizes[1000] || !sizes[2000] {
		t.Fatalf("expected one result per distinct size, got %+v", got)
	}
}

func TestAggregateRankingBySeeders(t *testing.T) {
	a := NewAggregator(testRegistry(),
		&stubSearcher{name: "alpha", results: []models.SearchResult{
			result("A", "alpha", 5, 1),
			result("B", "alpha", 50, 2),
			result("C", "alpha", 20, 3),
		}},
	)

	got := a.Aggregate(context.Background(), "q", Options{}, []string{"alpha"})
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].Seeders != 50 || got[1].Seeders != 20 || got[2].Seeders != 5 {
		t.Fatalf("expected seeders order [50 20 5], got [%d %d %d]", got[0].Seeders, got[1].Seeders, got[2].Seeders)
	}
}

func TestAggregateTrustBreaksSeederTies(t *testing.T) {
	a := NewAggregator(testRegistry(),
		&stubSearcher{name: "beta", results: []models.SearchResult{
			result("Low trust", "beta", 10, 1),
		}},
		&stubSearcher{name: "alpha", results: []models.SearchResult{
			result("High trust", "alpha", 10, 2),
		}},
	)

	got := a.Aggregate(context.Background(), "q", Options{}, []string{"beta", "alpha"})
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Source != "alpha" {
		t.Fatalf("higher registry trust must rank first on a seeder tie, got %q", got[0].Source)
	}
}

func TestAggregateUnknownSourcesSkipped(t *testing.T) {
	a := NewAggregator(testRegistry(),
		&stubSearcher{name: "alpha", results: []models.SearchResult{result("A", "alpha", 1, 1)}},
	)

	got := a.Aggregate(context.Background(), "q", Options{}, []string{"alpha", "doesnotexist"})
	if len(got) != 1 {
		t.Fatalf("unknown names must be skipped silently, got %d results", len(got))
	}

	got = a.Aggregate(context.Background(), "q", Options{}, []string{"doesnotexist"})
	if len(got) != 0 {
		t.Fatalf("no resolvable searchers must yield empty, not error")
	}
}

func TestAggregateFailedSearcherDoesNotAbort(t *testing.T) {
	a := NewAggregator(testRegistry(),
		&stubSearcher{name: "alpha", err: errors.New("connection refused")},
		&stubSearcher{name: "beta", results: []models.SearchResult{result("B", "beta", 1, 1)}},
	)

	got := a.Aggregate(context.Background(), "q", Options{}, []string{"alpha", "beta"})
	if len(got) != 1 {
		t.Fatalf("one failing searcher must not abort aggregation, got %d results", len(got))
	}
}

func TestAggregateDeadlineDiscardsSlowSearcher(t *testing.T) {
	a := NewAggregator(testRegistry(),
		&stubSearcher{name: "alpha", delay: 5 * time.Second, results: []models.SearchResult{result("slow", "alpha", 99, 1)}},
		&stubSearcher{name: "beta", results: []models.SearchResult{result("fast", "beta", 1, 2)}},
	)

	start := time.Now()
	got := a.Aggregate(context.Background(), "q", Options{Timeout: 200 * time.Millisecond}, []string{"alpha", "beta"})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("aggregate overran its deadline: %s", elapsed)
	}
	if len(got) != 1 || got[0].Source != "beta" {
		t.Fatalf("slow searcher must be treated as empty, got %+v", got)
	}
}

func TestAggregateTruncatesAfterRanking(t *testing.T) {
	a := NewAggregator(testRegistry(),
		&stubSearcher{name: "alpha", results: []models.SearchResult{
			result("A", "alpha", 1, 1),
			result("B", "alpha", 100, 2),
			result("C", "alpha", 50, 3),
		}},
	)

	got := a.Aggregate(context.Background(), "q", Options{MaxResults: 1}, []string{"alpha"})
	if len(got) != 1 || got[0].Seeders != 100 {
		t.Fatalf("truncation must happen after ranking, got %+v", got)
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Movie.2020.1080p", "movie 2020 1080p"},
		{"MOVIE 2020 1080p", "movie 2020 1080p"},
		{"Amélie (2001)", "amelie 2001"},
		{"  spaced   out  ", "spaced out"},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Fatalf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
