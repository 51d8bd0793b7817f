package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings   `json:"server"`
	Sources   []SourceConfig   `json:"sources"`
	Searchers []SearcherConfig `json:"searchers"`
	Tunnel    TunnelSettings   `json:"tunnel"`
	Clients   []ClientConfig   `json:"clients"`
	Transfers TransferSettings `json:"transfers"`
	Search    SearchSettings   `json:"search"`
	Database  DatabaseSettings `json:"database"`
	Log       LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SourceConfig overrides or extends the built-in source catalog. Entries
// are merged by name: only the fields a config entry sets replace the
// built-in values.
type SourceConfig struct {
	Name       string   `json:"name"`
	Category   string   `json:"category,omitempty"` // public | semi-private | private
	TrustScore int      `json:"trustScore,omitempty"`
	Strengths  []string `json:"strengths,omitempty"`
	ActiveFrom string   `json:"activeFrom,omitempty"` // YYYY-MM-DD
	Retired    *bool    `json:"retired,omitempty"`
	RetiredAt  string   `json:"retiredAt,omitempty"` // YYYY-MM-DD
}

// SearcherConfig describes one search backend instance.
type SearcherConfig struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"` // "scrape" | "yts"
	URL     string   `json:"url,omitempty"`
	Mirrors []string `json:"mirrors,omitempty"`
	Enabled bool     `json:"enabled"`
}

// TunnelSettings points at the tunnel control server and sets the gate's
// poll cadences.
type TunnelSettings struct {
	ProviderURL            string `json:"providerUrl"`
	WaitIntervalSeconds    int    `json:"waitIntervalSeconds"`
	MonitorIntervalSeconds int    `json:"monitorIntervalSeconds"`
	WaitTimeoutSeconds     int    `json:"waitTimeoutSeconds"` // 0 = reject immediately when down
}

// ClientConfig describes one download daemon connection.
type ClientConfig struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // "qbittorrent"
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Category string `json:"category,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// TransferSettings controls save locations and the seeding policy.
type TransferSettings struct {
	SavePath            string  `json:"savePath"`
	MaxSeedRatio        float64 `json:"maxSeedRatio"`        // 0 = unlimited
	MaxSeedTimeMinutes  int     `json:"maxSeedTimeMinutes"`  // 0 = unlimited
	PollIntervalSeconds int     `json:"pollIntervalSeconds"`
}

// SearchSettings are defaults applied when a search request leaves them
// unset.
type SearchSettings struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
	MaxResults     int `json:"maxResults"`
	MinSeeders     int `json:"minSeeders"`
}

// DatabaseSettings locates the history database.
type DatabaseSettings struct {
	Directory string `json:"directory"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server:  ServerSettings{Host: "0.0.0.0", Port: 7878},
		Sources: []SourceConfig{},
		Searchers: []SearcherConfig{
			{
				Name:    "1337x",
				Type:    "scrape",
				Mirrors: []string{"https://1337x.to", "https://1337x.st", "https://x1337x.ws"},
				Enabled: true,
			},
			{
				Name:    "YTS",
				Type:    "yts",
				URL:     "https://yts.mx/api/v2/list_movies.json",
				Enabled: true,
			},
		},
		Tunnel: TunnelSettings{
			ProviderURL:            "http://127.0.0.1:8000",
			WaitIntervalSeconds:    5,
			MonitorIntervalSeconds: 30,
			WaitTimeoutSeconds:     0,
		},
		Clients: []ClientConfig{
			{
				Name:    "qbittorrent",
				Type:    "qbittorrent",
				URL:     "http://127.0.0.1:8080",
				Enabled: true,
			},
		},
		Transfers: TransferSettings{
			SavePath:            "downloads",
			MaxSeedRatio:        2.0,
			MaxSeedTimeMinutes:  0,
			PollIntervalSeconds: 30,
		},
		Search: SearchSettings{
			TimeoutSeconds: 30,
			MaxResults:     50,
			MinSeeders:     0,
		},
		Database: DatabaseSettings{Directory: "cache"},
		Log: LogConfig{
			File:       "cache/logs/tunnelarr.log",
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// Path returns the config file path the manager operates on.
func (m *Manager) Path() string {
	return m.path
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// create with defaults
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for settings a hand-edited or older config omits.
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.Server.Port == 0 {
		s.Server.Port = 7878
	}

	if len(s.Searchers) == 0 {
		s.Searchers = DefaultSettings().Searchers
	}

	if strings.TrimSpace(s.Tunnel.ProviderURL) == "" {
		s.Tunnel.ProviderURL = "http://127.0.0.1:8000"
	}
	if s.Tunnel.WaitIntervalSeconds == 0 {
		s.Tunnel.WaitIntervalSeconds = 5
	}
	if s.Tunnel.MonitorIntervalSeconds == 0 {
		s.Tunnel.MonitorIntervalSeconds = 30
	}

	if strings.TrimSpace(s.Transfers.SavePath) == "" {
		s.Transfers.SavePath = "downloads"
	}
	if s.Transfers.PollIntervalSeconds == 0 {
		s.Transfers.PollIntervalSeconds = 30
	}

	if s.Search.TimeoutSeconds == 0 {
		s.Search.TimeoutSeconds = 30
	}
	if s.Search.MaxResults == 0 {
		s.Search.MaxResults = 50
	}

	if strings.TrimSpace(s.Database.Directory) == "" {
		s.Database.Directory = "cache"
	}

	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "cache/logs/tunnelarr.log"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
