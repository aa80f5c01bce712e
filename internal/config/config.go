package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRemote = "remote"
)

// StoreConfig selects and configures the event/user persistence backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite" or "remote".
	Backend string `yaml:"backend" json:"backend"`
	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
	// RemoteURL is the base URL of the key-value proxy used by the remote backend.
	RemoteURL string `yaml:"remote_url" json:"remote_url"`
	// RemoteTimeout bounds every request to the proxy.
	RemoteTimeout time.Duration `yaml:"remote_timeout" json:"remote_timeout"`
}

// CaptureConfig controls the headless month-page snapshot.
type CaptureConfig struct {
	Width   int           `yaml:"width" json:"width"`
	Height  int           `yaml:"height" json:"height"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and month page.
	Listen string `yaml:"listen" json:"listen"`

	// ProxyListen is the listen address of teamsync-proxy.
	ProxyListen string `yaml:"proxy_listen" json:"proxy_listen"`

	Store StoreConfig `yaml:"store" json:"store"`

	// RefreshCron is a cron-style schedule string (e.g. "*/1 * * * *")
	// for re-reading the event store in the background.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// ProductName ends up in the ICS PRODID.
	ProductName string `yaml:"product_name" json:"product_name"`

	// DefaultColor is used for new events when the form leaves it empty.
	DefaultColor string `yaml:"default_color" json:"default_color"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// ICSCacheDir holds ETag/Last-Modified metadata for imported feeds.
	ICSCacheDir string `yaml:"ics_cache_dir" json:"ics_cache_dir"`

	Capture CaptureConfig `yaml:"capture" json:"capture"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		ProxyListen: "127.0.0.1:8090",
		Store: StoreConfig{
			Backend:       BackendSQLite,
			SQLitePath:    "./var/teamsync.db",
			RemoteTimeout: 15 * time.Second,
		},
		RefreshCron:  "*/1 * * * *",
		ProductName:  "TeamSync",
		DefaultColor: "indigo",
		LogLevel:     "info",
		ICSCacheDir:  "./var/ics-cache",
		Capture: CaptureConfig{
			Width:   1280,
			Height:  960,
			Timeout: 30 * time.Second,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.ProxyListen == "" {
		c.ProxyListen = def.ProxyListen
	}
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendRemote:
		// ok
	default:
		// Unknown or empty; fall back to the local database.
		c.Store.Backend = def.Store.Backend
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = def.Store.SQLitePath
	}
	if c.Store.RemoteTimeout <= 0 {
		c.Store.RemoteTimeout = def.Store.RemoteTimeout
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.ProductName == "" {
		c.ProductName = def.ProductName
	}
	if c.DefaultColor == "" {
		c.DefaultColor = def.DefaultColor
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = def.ICSCacheDir
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = def.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = def.Capture.Height
	}
	if c.Capture.Timeout <= 0 {
		c.Capture.Timeout = def.Capture.Timeout
	}
}

// ApplyEnv overrides file values with TEAMSYNC_* environment variables.
// Empty variables are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TEAMSYNC_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("TEAMSYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TEAMSYNC_STORE"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("TEAMSYNC_REMOTE_URL"); v != "" {
		c.Store.RemoteURL = v
	}
	c.Normalize()
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".teamsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
