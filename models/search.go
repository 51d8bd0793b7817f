package models

import "time"

// SourceCategory classifies a tracker by access model.
type SourceCategory string

const (
	SourceCategoryPublic      SourceCategory = "public"
	SourceCategorySemiPrivate SourceCategory = "semi-private"
	SourceCategoryPrivate     SourceCategory = "private"
)

// SourceEntry is one row of the source catalog. Entries are seeded at
// startup and never mutated afterwards; RetiredAt == nil means the source
// is still considered good.
type SourceEntry struct {
	Name       string         `json:"name"`
	Category   SourceCategory `json:"category"`
	TrustScore int            `json:"trustScore"` // 0-100, higher = more reliable metadata
	Strengths  []string       `json:"strengths,omitempty"`
	ActiveFrom time.Time      `json:"activeFrom"`
	RetiredAt  *time.Time     `json:"retiredAt,omitempty"`
}

// Active reports whether the source has not been retired.
func (e SourceEntry) Active() bool {
	return e.RetiredAt == nil
}

// MediaType distinguishes movie and episodic releases.
type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeTV      MediaType = "tv"
	MediaTypeUnknown MediaType = "unknown"
)

// ParsedTitle holds structured metadata extracted from a release name.
// Fields absent from the input stay zero; Language is the one documented
// exception and defaults to "English" when no foreign marker is found.
type ParsedTitle struct {
	Title        string    `json:"title"`
	Type         MediaType `json:"type"`
	Season       int       `json:"season,omitempty"`
	Episode      int       `json:"episode,omitempty"`
	Year         int       `json:"year,omitempty"`
	Quality      string    `json:"quality,omitempty"`
	Source       string    `json:"source,omitempty"`
	Codec        string    `json:"codec,omitempty"`
	Audio        string    `json:"audio,omitempty"`
	ReleaseGroup string    `json:"releaseGroup,omitempty"`
	Language     string    `json:"language,omitempty"`
	Proper       bool      `json:"proper,omitempty"`
	Repack       bool      `json:"repack,omitempty"`
}

// SearchResult is one normalized hit from any searcher backend.
// InfoHash and Magnet may be empty for scrape-based sources until the
// magnet is resolved from the detail page on demand.
type SearchResult struct {
	Title           string      `json:"title"`
	NormalizedTitle string      `json:"normalizedTitle"`
	InfoHash        string      `json:"infoHash,omitempty"`
	Magnet          string      `json:"magnet,omitempty"`
	SizeBytes       int64       `json:"sizeBytes"`
	Seeders         int         `json:"seeders"`
	Leechers        int         `json:"leechers"`
	UploadedAt      time.Time   `json:"uploadedAt,omitempty"`
	Source          string      `json:"source"`
	DetailURL       string      `json:"detailUrl,omitempty"`
	Parsed          ParsedTitle `json:"parsed"`
}
