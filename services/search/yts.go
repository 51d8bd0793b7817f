package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tunnelarr/models"
	"tunnelarr/utils/titleparse"
)

// YTSSearcher queries the YTS JSON API. YTS is a movies-only catalog: a TV
// type filter short-circuits to an empty result without touching the
// network. One upstream movie fans out into one SearchResult per torrent
// quality variant, with a synthesized display title since the API does not
// provide release names.
type YTSSearcher struct {
	name       string
	apiURL     string
	httpClient *http.Client
}

// ytsTrackers is appended to every synthesized magnet link.
var ytsTrackers = []string{
	"udp://open.demonii.com:1337/announce",
	"udp://tracker.openbittorrent.com:80",
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://p4p.arenabg.com:1337",
}

// NewYTSSearcher constructs a YTS backend. An empty apiURL falls back to
// the public endpoint.
func NewYTSSearcher(name, apiURL string, client *http.Client) *YTSSearcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if apiURL == "" {
		apiURL = "https://yts.mx/api/v2/list_movies.json"
	}
	if name == "" {
		name = "YTS"
	}
	return &YTSSearcher{
		name:       name,
		apiURL:     apiURL,
		httpClient: client,
	}
}

func (y *YTSSearcher) Name() string {
	return y.name
}

type ytsResponse struct {
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	Data          struct {
		Movies []ytsMovie `json:"movies"`
	} `json:"data"`
}

type ytsMovie struct {
	TitleEnglish string       `json:"title_english"`
	TitleLong    string       `json:"title_long"`
	Year         int          `json:"year"`
	Torrents     []ytsTorrent `json:"torrents"`
}

type ytsTorrent struct {
	Hash             string `json:"hash"`
	Quality          string `json:"quality"`
	Type             string `json:"type"` // web | bluray
	Seeds            int    `json:"seeds"`
	Peers            int    `json:"peers"`
	SizeBytes        int64  `json:"size_bytes"`
	DateUploadedUnix int64  `json:"date_uploaded_unix"`
}

// Search issues a single API GET. Upstream errors and malformed payloads
// are logged and produce an empty result list; they never propagate.
func (y *YTSSearcher) Search(ctx context.Context, query string, opts Options) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if opts.Type == models.MediaTypeTV {
		// Movies-only catalog, nothing to ask upstream.
		return nil, nil
	}

	params := url.Values{}
	params.Set("query_term", query)
	params.Set("sort_by", "seeds")
	if opts.MaxResults > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.MaxResults))
	}
	if opts.Quality != "" {
		params.Set("quality", opts.Quality)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := y.httpClient.Do(req)
	if err != nil {
		log.Printf("[yts] %s request failed: %v", y.name, err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[yts] %s returned status %d", y.name, resp.StatusCode)
		return nil, nil
	}

	var payload ytsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Printf("[yts] %s malformed response: %v", y.name, err)
		return nil, nil
	}
	if payload.Status != "ok" {
		log.Printf("[yts] %s API error: %s", y.name, payload.StatusMessage)
		return nil, nil
	}

	return y.expand(payload.Data.Movies, opts), nil
}

// expand fans each movie out into one result per torrent variant, applying
// the seeders and quality filters per variant.
func (y *YTSSearcher) expand(movies []ytsMovie, opts Options) []models.SearchResult {
	var results []models.SearchResult

	for _, movie := range movies {
		displayName := movie.TitleEnglish
		if displayName == "" {
			displayName = movie.TitleLong
		}
		for _, torrent := range movie.Torrents {
			if torrent.Seeds < opts.MinSeeders {
				continue
			}
			if opts.Quality != "" && !strings.EqualFold(torrent.Quality, opts.Quality) {
				continue
			}

			title := fmt.Sprintf("%s (%d) [%s] [%s]", displayName, movie.Year, torrent.Quality, torrent.Type)
			parsed := titleparse.Parse(title)
			parsed.Type = models.MediaTypeMovie
			parsed.Year = movie.Year

			results = append(results, models.SearchResult{
				Title:           title,
				NormalizedTitle: NormalizeTitle(title),
				InfoHash:        strings.ToLower(torrent.Hash),
				Magnet:          buildMagnet(torrent.Hash, movie.TitleLong),
				SizeBytes:       torrent.SizeBytes,
				Seeders:         torrent.Seeds,
				Leechers:        torrent.Peers,
				UploadedAt:      time.Unix(torrent.DateUploadedUnix, 0).UTC(),
				Source:          y.name,
				Parsed:          parsed,
			})
			if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
				return results
			}
		}
	}
	return results
}

// Health verifies the API answers with a minimal query.
func (y *YTSSearcher) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.apiURL+"?limit=1", nil)
	if err != nil {
		return err
	}
	resp, err := y.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("yts returned status %d", resp.StatusCode)
	}
	return nil
}

// buildMagnet synthesizes a magnet link from an info hash.
func buildMagnet(hash, displayName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "magnet:?xt=urn:btih:%s&dn=%s", strings.ToLower(hash), url.QueryEscape(displayName))
	for _, tracker := range ytsTrackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tracker))
	}
	return b.String()
}
