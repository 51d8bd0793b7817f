package transfers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeQBittorrent is a minimal in-memory Web API: login, add, info, pause,
// resume and delete, enough to exercise the client end to end.
type fakeQBittorrent struct {
	torrents []map[string]any
	adds     int
	logins   int
	expired  bool // answer 403 until the next login
	paused   []string
	deleted  []string
}

func newFakeQBittorrent(t *testing.T) (*fakeQBittorrent, *httptest.Server) {
	t.Helper()
	fake := &fakeQBittorrent{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("username") == "admin" && r.FormValue("password") == "secret" {
			fake.logins++
			fake.expired = false
			http.SetCookie(w, &http.Cookie{Name: "SID", Value: "abc123"})
			fmt.Fprint(w, "Ok.")
			return
		}
		fmt.Fprint(w, "Fails.")
	})
	mux.HandleFunc("/api/v2/torrents/add", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		fake.adds++
		tag := r.FormValue("tags")
		fake.torrents = append(fake.torrents, map[string]any{
			"hash":     "0123456789abcdef0123456789abcdef01234567",
			"name":     "Test Torrent",
			"progress": 0.5,
			"ratio":    0.1,
			"state":    "downloading",
			"tags":     tag,
		})
		fmt.Fprint(w, "Ok.")
	})
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		if fake.expired {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		tag := r.URL.Query().Get("tag")
		hashes := r.URL.Query().Get("hashes")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "[")
		first := true
		for _, torrent := range fake.torrents {
			if tag != "" && torrent["tags"] != tag {
				continue
			}
			if hashes != "" && torrent["hash"] != hashes {
				continue
			}
			if !first {
				fmt.Fprint(w, ",")
			}
			first = false
			fmt.Fprintf(w, `{"hash":"%s","name":"%s","progress":%f,"ratio":%f,"state":"%s"}`,
				torrent["hash"], torrent["name"], torrent["progress"], torrent["ratio"], torrent["state"])
		}
		fmt.Fprint(w, "]")
	})
	mux.HandleFunc("/api/v2/torrents/pause", func(w http.ResponseWriter, r *http.Request) {
		if fake.expired {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		r.ParseForm()
		fake.paused = append(fake.paused, r.FormValue("hashes"))
	})
	mux.HandleFunc("/api/v2/torrents/delete", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		fake.deleted = append(fake.deleted, r.FormValue("hashes")+"|"+r.FormValue("deleteFiles"))
	})
	mux.HandleFunc("/api/v2/app/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "v5.0.1")
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return fake, server
}

func TestQBittorrentLoginRejected(t *testing.T) {
	_, server := newFakeQBittorrent(t)
	client := NewQBittorrentClient("qb", server.URL, "admin", "wrong")

	_, err := client.Add(context.Background(), "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567", "/dl", AddOptions{})
	if err == nil || !strings.Contains(err.Error(), "login rejected") {
		t.Fatalf("expected login rejection, got %v", err)
	}
}

func TestQBittorrentAddMagnetReturnsInlineHash(t *testing.T) {
	fake, server := newFakeQBittorrent(t)
	client := NewQBittorrentClient("qb", server.URL, "admin", "secret")

	handle, err := client.Add(context.Background(), "magnet:?xt=urn:btih:0123456789ABCDEF0123456789ABCDEF01234567&dn=x", "/dl", AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if handle != "0123456789abcdef0123456789abcdef01234567" {
		t.Fatalf("expected lowercased inline hash, got %q", handle)
	}
	if fake.adds != 1 {
		t.Fatalf("expected one add call, got %d", fake.adds)
	}
}

func TestQBittorrentAddURLResolvesHashByTag(t *testing.T) {
	_, server := newFakeQBittorrent(t)
	client := NewQBittorrentClient("qb", server.URL, "admin", "secret")

	handle, err := client.Add(context.Background(), server.URL+"/files/test.torrent", "/dl", AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if handle != "0123456789abcdef0123456789abcdef01234567" {
		t.Fatalf("expected hash resolved through the tag lookup, got %q", handle)
	}
}

func TestQBittorrentStatusMapping(t *testing.T) {
	fake, server := newFakeQBittorrent(t)
	client := NewQBittorrentClient("qb", server.URL, "admin", "secret")

	hash := "0123456789abcdef0123456789abcdef01234567"
	if _, err := client.Add(context.Background(), "magnet:?xt=urn:btih:"+hash, "/dl", AddOptions{}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		qbState     string
		downloading bool
		seeding     bool
		paused      bool
		completed   bool
	}{
		{"downloading", true, false, false, false},
		{"stalledDL", true, false, false, false},
		{"uploading", false, true, false, true},
		{"stalledUP", false, true, false, true},
		{"pausedDL", false, false, true, false},
		{"pausedUP", false, false, true, true},
	}
	for _, tc := range cases {
		fake.torrents[0]["state"] = tc.qbState
		status, err := client.Status(context.Background(), hash)
		if err != nil {
			t.Fatalf("%s: %v", tc.qbState, err)
		}
		if status.Downloading != tc.downloading || status.Seeding != tc.seeding ||
			status.Paused != tc.paused || status.Completed != tc.completed {
			t.Fatalf("%s: got %+v", tc.qbState, status)
		}
	}
}

func TestQBittorrentStatusUnknownHandle(t *testing.T) {
	_, server := newFakeQBittorrent(t)
	client := NewQBittorrentClient("qb", server.URL, "admin", "secret")

	_, err := client.Status(context.Background(), "ffffffffffffffffffffffffffffffffffffffff")
	if !errors.Is(err, ErrHandleNotFound) {
		t.Fatalf("expected ErrHandleNotFound, got %v", err)
	}
}

func TestQBittorrentRemoveSendsDeleteFlag(t *testing.T) {
	fake, server := newFakeQBittorrent(t)
	client := NewQBittorrentClient("qb", server.URL, "admin", "secret")

	hash := "0123456789abcdef0123456789abcdef01234567"
	if err := client.Remove(context.Background(), hash, true); err != nil {
		t.Fatal(err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != hash+"|true" {
		t.Fatalf("unexpected delete calls: %v", fake.deleted)
	}
}

func TestQBittorrentReauthenticatesAfterSessionExpiry(t *testing.T) {
	fake, server := newFakeQBittorrent(t)
	client := NewQBittorrentClient("qb", server.URL, "admin", "secret")

	hash := "0123456789abcdef0123456789abcdef01234567"
	if _, err := client.Add(context.Background(), "magnet:?xt=urn:btih:"+hash, "/dl", AddOptions{}); err != nil {
		t.Fatal(err)
	}
	if fake.logins != 1 {
		t.Fatalf("expected one login after add, got %d", fake.logins)
	}

	fake.expired = true
	if _, err := client.Status(context.Background(), hash); err != nil {
		t.Fatalf("expected status to recover from an expired session, got %v", err)
	}
	if fake.logins != 2 {
		t.Fatalf("expected a fresh login after the 403, got %d", fake.logins)
	}

	fake.expired = true
	if err := client.Pause(context.Background(), hash); err != nil {
		t.Fatalf("expected pause to recover from an expired session, got %v", err)
	}
	if fake.logins != 3 {
		t.Fatalf("expected a fresh login for the pause, got %d", fake.logins)
	}
	if len(fake.paused) != 1 {
		t.Fatalf("expected the retried pause to reach the daemon, got %d", len(fake.paused))
	}
}

func TestQBittorrentTestConnection(t *testing.T) {
	_, server := newFakeQBittorrent(t)
	client := NewQBittorrentClient("qb", server.URL, "admin", "secret")

	if err := client.TestConnection(context.Background()); err != nil {
		t.Fatal(err)
	}
}
