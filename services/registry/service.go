package registry

import (
	"sort"
	"strings"
	"time"

	"tunnelarr/models"
)

// Service is a read-only catalog of known content sources. It is seeded
// once at construction and never mutated at runtime; it encodes known-good
// and known-retired sources, not live health.
type Service struct {
	entries []models.SourceEntry
}

// NewService builds a registry from the given entries. When no entries are
// provided the built-in defaults are used. Entries are sorted by name so
// listing order is deterministic.
func NewService(entries []models.SourceEntry) *Service {
	if len(entries) == 0 {
		entries = defaultEntries()
	}
	sorted := make([]models.SourceEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})
	return &Service{entries: sorted}
}

// ListAll returns every catalog entry, retired ones included.
func (s *Service) ListAll() []models.SourceEntry {
	out := make([]models.SourceEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ListActive returns entries that have not been retired.
func (s *Service) ListActive() []models.SourceEntry {
	var out []models.SourceEntry
	for _, e := range s.entries {
		if e.Active() {
			out = append(out, e)
		}
	}
	return out
}

// FindByName looks up an entry by case-insensitive exact name match.
func (s *Service) FindByName(name string) (models.SourceEntry, bool) {
	name = strings.TrimSpace(name)
	for _, e := range s.entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return models.SourceEntry{}, false
}

// TrustScore returns the trust score for a source, or 0 when the source is
// not in the catalog. Convenience for ranking.
func (s *Service) TrustScore(name string) int {
	if e, ok := s.FindByName(name); ok {
		return e.TrustScore
	}
	return 0
}

// DefaultEntries returns a copy of the built-in catalog, for callers that
// overlay their own overrides before constructing a registry.
func DefaultEntries() []models.SourceEntry {
	return defaultEntries()
}

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func datePtr(year, month, day int) *time.Time {
	d := date(year, month, day)
	return &d
}

// defaultEntries is the built-in catalog used when the config does not
// define its own. Trust scores reflect metadata reliability and fake rate,
// not popularity.
func defaultEntries() []models.SourceEntry {
	return []models.SourceEntry{
		{
			Name:       "1337x",
			Category:   models.SourceCategoryPublic,
			TrustScore: 70,
			Strengths:  []string{"movies", "tv"},
			ActiveFrom: date(2007, 1, 1),
		},
		{
			Name:       "YTS",
			Category:   models.SourceCategoryPublic,
			TrustScore: 80,
			Strengths:  []string{"movies"},
			ActiveFrom: date(2011, 1, 1),
		},
		{
			Name:       "TorrentGalaxy",
			Category:   models.SourceCategoryPublic,
			TrustScore: 65,
			Strengths:  []string{"movies", "tv"},
			ActiveFrom: date(2018, 7, 1),
		},
		{
			Name:       "KickassTorrents",
			Category:   models.SourceCategoryPublic,
			TrustScore: 50,
			Strengths:  []string{"movies", "tv"},
			ActiveFrom: date(2008, 11, 1),
			RetiredAt:  datePtr(2016, 7, 20),
		},
		{
			Name:       "RARBG",
			Category:   models.SourceCategorySemiPrivate,
			TrustScore: 90,
			Strengths:  []string{"movies", "tv"},
			ActiveFrom: date(2008, 1, 1),
			RetiredAt:  datePtr(2023, 5, 31),
		},
	}
}
