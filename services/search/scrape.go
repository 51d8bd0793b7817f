package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/avast/retry-go/v4"
	"github.com/gabriel-vasile/mimetype"

	"tunnelarr/models"
	"tunnelarr/utils/titleparse"
)

// ErrNoMagnet is returned by ResolveMagnet when the detail page contains no
// magnet link. Unlike bulk search failures this is surfaced to the caller,
// because magnet resolution is an explicit, isolated operation whose failure
// the caller must know about.
var ErrNoMagnet = errors.New("no magnet link found")

// maxDetailBody bounds how much of a detail response is read during magnet
// resolution.
const maxDetailBody = 2 << 20

// ScrapeSearcher queries a 1337x-style HTML listing across an ordered list
// of mirror hosts for the same logical source. The first mirror that yields
// at least one result wins; results are never merged across mirrors.
type ScrapeSearcher struct {
	name       string
	mirrors    []string
	httpClient *http.Client
}

// NewScrapeSearcher constructs a scraping backend. Mirrors are tried in the
// given order.
func NewScrapeSearcher(name string, mirrors []string, client *http.Client) *ScrapeSearcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	trimmed := make([]string, 0, len(mirrors))
	for _, m := range mirrors {
		if m = strings.TrimRight(strings.TrimSpace(m), "/"); m != "" {
			trimmed = append(trimmed, m)
		}
	}
	return &ScrapeSearcher{
		name:       name,
		mirrors:    trimmed,
		httpClient: client,
	}
}

func (s *ScrapeSearcher) Name() string {
	return s.name
}

// Search walks the mirror list until one mirror returns at least one row.
// Network and parse failures are logged and absorbed; the searcher is the
// isolation boundary for the aggregation.
func (s *ScrapeSearcher) Search(ctx context.Context, query string, opts Options) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || len(s.mirrors) == 0 {
		return nil, nil
	}

	for _, mirror := range s.mirrors {
		results, err := s.searchMirror(ctx, mirror, query, opts)
		if err != nil {
			log.Printf("[scrape] %s: mirror %s failed: %v", s.name, mirror, err)
			continue
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	return nil, nil
}

func (s *ScrapeSearcher) searchMirror(ctx context.Context, mirror, query string, opts Options) ([]models.SearchResult, error) {
	searchURL := fmt.Sprintf("%s/search/%s/1/", mirror, url.PathEscape(query))

	body, err := s.fetch(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	return s.extractRows(doc, mirror, opts), nil
}

// fetch issues a GET with one retry for transient failures. The retry stays
// inside the per-mirror attempt so mirror order is still honored.
func (s *ScrapeSearcher) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return retry.DoWithData(
		func() (io.ReadCloser, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return nil, err
			}
			resp, err := s.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
			return resp.Body, nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(300*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

// extractRows parses the results table, applying the seeders and quality
// filters during extraction. A row that fails to parse is skipped, never
// fatal.
func (s *ScrapeSearcher) extractRows(doc *goquery.Document, mirror string, opts Options) []models.SearchResult {
	var results []models.SearchResult

	doc.Find("table.table-list tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		link := row.Find("td.name a[href^='/torrent/']").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}

		seeders := atoiLoose(row.Find("td.seeds").First().Text())
		if seeders < opts.MinSeeders {
			return true
		}

		parsed := titleparse.Parse(title)
		if opts.Quality != "" && !strings.EqualFold(parsed.Quality, opts.Quality) {
			return true
		}
		if opts.Type != "" && opts.Type != models.MediaTypeUnknown && parsed.Type != opts.Type {
			return true
		}

		results = append(results, models.SearchResult{
			Title:           title,
			NormalizedTitle: NormalizeTitle(title),
			SizeBytes:       parseSize(row.Find("td.size").First().Text()),
			Seeders:         seeders,
			Leechers:        atoiLoose(row.Find("td.leeches").First().Text()),
			UploadedAt:      parseUploadDate(row.Find("td.coll-date").First().Text()),
			Source:          s.name,
			DetailURL:       mirror + href,
			Parsed:          parsed,
		})

		return opts.MaxResults <= 0 || len(results) < opts.MaxResults
	})

	return results
}

// ResolveMagnet fetches a result's detail page and extracts its magnet
// link. Some mirrors serve the torrent payload directly from the detail
// URL; in that case the URL itself is the locator.
func (s *ScrapeSearcher) ResolveMagnet(ctx context.Context, detailURL string) (string, error) {
	body, err := s.fetch(ctx, detailURL)
	if err != nil {
		return "", fmt.Errorf("fetch detail page: %w", err)
	}
	defer body.Close()

	payload, err := io.ReadAll(io.LimitReader(body, maxDetailBody))
	if err != nil {
		return "", fmt.Errorf("read detail page: %w", err)
	}

	if mimetype.Detect(payload).Is("application/x-bittorrent") {
		return detailURL, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("parse detail page: %w", err)
	}

	magnet, ok := doc.Find("a[href^='magnet:']").First().Attr("href")
	if !ok || magnet == "" {
		return "", fmt.Errorf("%w at %s", ErrNoMagnet, detailURL)
	}
	return magnet, nil
}

// Health checks reachability of the primary mirror.
func (s *ScrapeSearcher) Health(ctx context.Context) error {
	if len(s.mirrors) == 0 {
		return errors.New("no mirrors configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.mirrors[0], nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("mirror returned status %d", resp.StatusCode)
	}
	return nil
}

var sizeRe = regexp.MustCompile(`(?i)([\d.,]+)\s*(TB|GB|MB|KB|B)`)

// parseSize turns listing sizes like "1.4 GB" into bytes. Returns 0 when
// the cell is unparseable.
func parseSize(text string) int64 {
	m := sizeRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "TB":
		value *= 1 << 40
	case "GB":
		value *= 1 << 30
	case "MB":
		value *= 1 << 20
	case "KB":
		value *= 1 << 10
	}
	return int64(value)
}

var (
	ordinalRe         = regexp.MustCompile(`(\d)(st|nd|rd|th)`)
	uploadDateLayouts = []string{
		"Jan. 2 '06",
		"Jan 2 '06",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// parseUploadDate is best effort; listing date formats vary per mirror and
// an unparseable date just leaves the timestamp zero.
func parseUploadDate(text string) time.Time {
	text = ordinalRe.ReplaceAllString(strings.TrimSpace(text), "$1")
	for _, layout := range uploadDateLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func atoiLoose(text string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(text), ",", ""))
	return n
}
