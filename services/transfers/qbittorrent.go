package transfers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QBittorrentClient drives the qBittorrent Web API. Each added transfer is
// tagged with a unique marker so its info hash can be recovered even when
// the locator is a .torrent URL rather than a magnet link.
type QBittorrentClient struct {
	name       string
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	authMu   sync.Mutex
	loggedIn bool
}

// NewQBittorrentClient constructs a client for one qBittorrent instance.
func NewQBittorrentClient(name, baseURL, username, password string) *QBittorrentClient {
	jar, _ := cookiejar.New(nil)
	if name == "" {
		name = "qbittorrent"
	}
	return &QBittorrentClient{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

func (c *QBittorrentClient) Name() string {
	return c.name
}

// login authenticates against the Web API. qBittorrent answers "Ok." on
// success and "Fails." otherwise, both with status 200. authMu serializes
// concurrent callers so only one of them performs the handshake.
func (c *QBittorrentClient) login(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.loggedIn {
		return nil
	}
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	body, status, err := c.doForm(ctx, "/api/v2/auth/login", form)
	if err != nil {
		return fmt.Errorf("qbittorrent login: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("qbittorrent login returned status %d: %s", status, strings.TrimSpace(body))
	}
	if strings.TrimSpace(body) != "Ok." {
		return fmt.Errorf("qbittorrent login rejected: %s", body)
	}
	c.loggedIn = true
	return nil
}

// invalidateSession drops the cached login so the next call authenticates
// again. Called when the daemon answers 403, which means the session cookie
// expired.
func (c *QBittorrentClient) invalidateSession() {
	c.authMu.Lock()
	c.loggedIn = false
	c.authMu.Unlock()
}

var magnetHashRe = regexp.MustCompile(`xt=urn:btih:([a-fA-F0-9]{40}|[a-zA-Z2-7]{32})`)

// Add submits the locator and resolves the daemon-side hash for it. Magnet
// locators carry the hash inline; for URL locators the tag lookup finds the
// freshly added torrent.
func (c *QBittorrentClient) Add(ctx context.Context, locator, savePath string, opts AddOptions) (string, error) {
	if err := c.login(ctx); err != nil {
		return "", err
	}

	tag := "tunnelarr-" + uuid.NewString()

	form := url.Values{}
	form.Set("urls", locator)
	form.Set("savepath", savePath)
	form.Set("tags", tag)
	if opts.Category != "" {
		form.Set("category", opts.Category)
	}
	if opts.Paused {
		form.Set("paused", "true")
	}

	body, err := c.postForm(ctx, "/api/v2/torrents/add", form)
	if err != nil {
		return "", fmt.Errorf("qbittorrent add: %w", err)
	}
	if strings.TrimSpace(body) == "Fails." {
		return "", fmt.Errorf("qbittorrent rejected locator")
	}

	if m := magnetHashRe.FindStringSubmatch(locator); m != nil {
		return strings.ToLower(m[1]), nil
	}
	return c.findHashByTag(ctx, tag)
}

// findHashByTag polls the torrent list filtered by our unique tag until the
// daemon has registered the new torrent.
func (c *QBittorrentClient) findHashByTag(ctx context.Context, tag string) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		infos, err := c.list(ctx, url.Values{"tag": {tag}})
		if err != nil {
			return "", err
		}
		if len(infos) > 0 {
			return strings.ToLower(infos[0].Hash), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return "", fmt.Errorf("added torrent did not appear in qbittorrent")
}

// qbTorrentInfo mirrors the fields of /api/v2/torrents/info we consume.
type qbTorrentInfo struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Size        int64   `json:"size"`
	Progress    float64 `json:"progress"`
	Ratio       float64 `json:"ratio"`
	SeedingTime int64   `json:"seeding_time"` // seconds
	State       string  `json:"state"`
}

func (c *QBittorrentClient) Status(ctx context.Context, handleID string) (ClientStatus, error) {
	if err := c.login(ctx); err != nil {
		return ClientStatus{}, err
	}
	infos, err := c.list(ctx, url.Values{"hashes": {strings.ToLower(handleID)}})
	if err != nil {
		return ClientStatus{}, err
	}
	if len(infos) == 0 {
		return ClientStatus{}, fmt.Errorf("%w: %s", ErrHandleNotFound, handleID)
	}

	info := infos[0]
	status := ClientStatus{
		HandleID:    strings.ToLower(info.Hash),
		Name:        info.Name,
		Progress:    info.Progress,
		Ratio:       info.Ratio,
		SeedingTime: time.Duration(info.SeedingTime) * time.Second,
		SizeBytes:   info.Size,
	}

	switch info.State {
	case "downloading", "metaDL", "stalledDL", "queuedDL", "checkingDL", "forcedDL", "allocating":
		status.Downloading = true
	case "uploading", "stalledUP", "queuedUP", "checkingUP", "forcedUP":
		status.Seeding = true
		status.Completed = true
	case "pausedDL", "stoppedDL":
		status.Paused = true
	case "pausedUP", "stoppedUP":
		status.Paused = true
		status.Completed = true
	}
	if info.Progress >= 1 {
		status.Completed = true
	}
	return status, nil
}

func (c *QBittorrentClient) Pause(ctx context.Context, handleID string) error {
	return c.simpleAction(ctx, "/api/v2/torrents/pause", handleID)
}

func (c *QBittorrentClient) Resume(ctx context.Context, handleID string) error {
	return c.simpleAction(ctx, "/api/v2/torrents/resume", handleID)
}

func (c *QBittorrentClient) Remove(ctx context.Context, handleID string, deleteFiles bool) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("hashes", strings.ToLower(handleID))
	form.Set("deleteFiles", fmt.Sprintf("%t", deleteFiles))
	_, err := c.postForm(ctx, "/api/v2/torrents/delete", form)
	return err
}

// TestConnection verifies the daemon is reachable and credentials work.
func (c *QBittorrentClient) TestConnection(ctx context.Context) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/app/version", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qbittorrent returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *QBittorrentClient) simpleAction(ctx context.Context, path, handleID string) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("hashes", strings.ToLower(handleID))
	_, err := c.postForm(ctx, path, form)
	return err
}

func (c *QBittorrentClient) list(ctx context.Context, params url.Values) ([]qbTorrentInfo, error) {
	doList := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/torrents/info?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		return c.httpClient.Do(req)
	}

	resp, err := doList()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		c.invalidateSession()
		if err := c.login(ctx); err != nil {
			return nil, err
		}
		if resp, err = doList(); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("torrents/info returned status %d", resp.StatusCode)
	}

	var infos []qbTorrentInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("decode torrents/info: %w", err)
	}
	return infos, nil
}

// postForm submits a form and, when the daemon answers 403 on an expired
// session, re-authenticates once and retries.
func (c *QBittorrentClient) postForm(ctx context.Context, path string, form url.Values) (string, error) {
	body, status, err := c.doForm(ctx, path, form)
	if err != nil {
		return "", err
	}
	if status == http.StatusForbidden {
		c.invalidateSession()
		if err := c.login(ctx); err != nil {
			return "", err
		}
		if body, status, err = c.doForm(ctx, path, form); err != nil {
			return "", err
		}
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d: %s", path, status, strings.TrimSpace(body))
	}
	return body, nil
}

func (c *QBittorrentClient) doForm(ctx context.Context, path string, form url.Values) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	return string(body), resp.StatusCode, nil
}
