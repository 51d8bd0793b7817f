package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"tunnelarr/models"
)

const ytsPayload = `{
  "status": "ok",
  "data": {
    "movies": [
      {
        "title_english": "Big Buck Bunny",
        "title_long": "Big Buck Bunny (2008)",
        "year": 2008,
        "torrents": [
          {"hash": "AA11", "quality": "1080p", "type": "bluray", "seeds": 80, "peers": 10, "size_bytes": 1500000000, "date_uploaded_unix": 1600000000},
          {"hash": "BB22", "quality": "720p", "type": "web", "seeds": 40, "peers": 5, "size_bytes": 800000000, "date_uploaded_unix": 1600000001}
        ]
      }
    ]
  }
}`

func TestYTSVariantExpansion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, ytsPayload)
	}))
	defer server.Close()

	y := NewYTSSearcher("YTS", server.URL, nil)

	results, err := y.Search(context.Background(), "big buck bunny", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("one movie with two torrents must expand to two results, got %d", len(results))
	}

	first := results[0]
	if first.Title != "Big Buck Bunny (2008) [1080p] [bluray]" {
		t.Fatalf("synthesized title mismatch: %q", first.Title)
	}
	if first.InfoHash != "aa11" {
		t.Fatalf("info hash must be lowercased, got %q", first.InfoHash)
	}
	if first.Magnet == "" {
		t.Fatalf("magnet must be synthesized from the hash")
	}
	if first.Parsed.Type != models.MediaTypeMovie || first.Parsed.Year != 2008 {
		t.Fatalf("parsed metadata mismatch: %+v", first.Parsed)
	}
	if results[1].Parsed.Quality != "720p" {
		t.Fatalf("variant quality mismatch: %+v", results[1].Parsed)
	}
}

func TestYTSTVFilterShortCircuits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, ytsPayload)
	}))
	defer server.Close()

	y := NewYTSSearcher("YTS", server.URL, nil)

	results, err := y.Search(context.Background(), "some show", Options{Type: models.MediaTypeTV})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("movies-only catalog must return empty for tv queries")
	}
	if calls.Load() != 0 {
		t.Fatalf("tv filter must short-circuit without a network call, saw %d", calls.Load())
	}
}

func TestYTSUpstreamFailuresAreAbsorbed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad", http.StatusBadGateway)
		}},
		{"malformed json", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "{not json")
		}},
		{"api error status", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"status":"error","status_message":"nope"}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			y := NewYTSSearcher("YTS", server.URL, nil)
			results, err := y.Search(context.Background(), "query", Options{})
			if err != nil {
				t.Fatalf("upstream failure must not propagate, got %v", err)
			}
			if len(results) != 0 {
				t.Fatalf("expected empty results, got %d", len(results))
			}
		})
	}
}

func TestYTSMinSeedersFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, ytsPayload)
	}))
	defer server.Close()

	y := NewYTSSearcher("YTS", server.URL, nil)

	results, err := y.Search(context.Background(), "bunny", Options{MinSeeders: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Seeders != 80 {
		t.Fatalf("expected only the 80-seed variant, got %+v", results)
	}
}
