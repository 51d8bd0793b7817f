package registry

import (
	"testing"
	"time"

	"tunnelarr/models"
)

func TestFindByNameCaseInsensitive(t *testing.T) {
	svc := NewService(nil)

	entry, ok := svc.FindByName("yts")
	if !ok {
		t.Fatalf("expected to find yts")
	}
	if entry.Name != "YTS" {
		t.Fatalf("expected canonical name YTS, got %q", entry.Name)
	}

	if _, ok := svc.FindByName("  1337X "); !ok {
		t.Fatalf("expected trimmed lookup to succeed")
	}

	if _, ok := svc.FindByName("nosuchsource"); ok {
		t.Fatalf("unknown source should not be found")
	}
}

func TestListActiveExcludesRetired(t *testing.T) {
	retired := time.Date(2023, 5, 31, 0, 0, 0, 0, time.UTC)
	svc := NewService([]models.SourceEntry{
		{Name: "alive", TrustScore: 10, ActiveFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "gone", TrustScore: 90, ActiveFrom: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), RetiredAt: &retired},
	})

	active := svc.ListActive()
	if len(active) != 1 {
		t.Fatalf("expected 1 active entry, got %d", len(active))
	}
	if active[0].Name != "alive" {
		t.Fatalf("expected alive, got %q", active[0].Name)
	}

	if got := len(svc.ListAll()); got != 2 {
		t.Fatalf("ListAll should include retired entries, got %d", got)
	}
}

func TestTrustScoreUnknownIsZero(t *testing.T) {
	svc := NewService(nil)
	if got := svc.TrustScore("RARBG"); got != 90 {
		t.Fatalf("expected 90, got %d", got)
	}
	if got := svc.TrustScore("made-up"); got != 0 {
		t.Fatalf("expected 0 for unknown source, got %d", got)
	}
}
