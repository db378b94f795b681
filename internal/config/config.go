package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultAPIBaseURL is used when neither the config file nor OKR_API_URL
// names a server.
const DefaultAPIBaseURL = "http://localhost:3333"

// Config represents the main configuration for okr.
type Config struct {
	APIBaseURL    string              `toml:"api_base_url"`
	BaseDir       string              `toml:"base_dir"`
	LogDir        string              `toml:"log_dir"`
	LogLevel      string              `toml:"log_level"` // "debug", "info", "warn" or "error"
	Session       SessionConfig       `toml:"session"`
	Database      DatabaseConfig      `toml:"database"`
	Cache         CacheConfig         `toml:"cache"`
	HTTP          HTTPConfig          `toml:"http"`
	Notifications NotificationsConfig `toml:"notifications"`
	Dashboard     DashboardConfig     `toml:"dashboard"`
	Forms         FormsConfig         `toml:"forms"`
}

// SessionConfig selects where the session record lives.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SessionConfig struct {
	Type         string `toml:"type"`                    // "file" (default), "age", "sqlite" or "memory"
	Path         string `toml:"path,omitempty"`          // only used for type=file and type=age
	IdentityPath string `toml:"identity_path,omitempty"` // only used for type=age
}

// DatabaseConfig represents configuration for the client database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// CacheConfig controls the query cache.
type CacheConfig struct {
	// Persist writes successful fetches to the client database so
	// `okr list --offline` can show the last known list.
	Persist bool `toml:"persist"`
}

// HTTPConfig controls the API transport.
type HTTPConfig struct {
	Timeout string `toml:"timeout,omitempty"` // Go duration; empty or "0" means no timeout
}

// NotificationsConfig controls `okr notifications --watch`.
type NotificationsConfig struct {
	PollInterval string `toml:"poll_interval"` // Go duration, at least 1s
}

// DashboardConfig controls dashboard aggregation.
type DashboardConfig struct {
	PlaceholderOwner string `toml:"placeholder_owner"`
}

// FormsConfig controls form submission.
type FormsConfig struct {
	CompensatePartialCreate bool `toml:"compensate_partial_create"`
}

// NewConfig creates a new Config with default values rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		APIBaseURL: DefaultAPIBaseURL,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		LogLevel:   "info",
		Session: SessionConfig{
			Type: "file",
			Path: filepath.Join(baseDir, "session.json"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Cache:         CacheConfig{Persist: true},
		Notifications: NotificationsConfig{PollInterval: "30s"},
		Dashboard:     DashboardConfig{PlaceholderOwner: "Alex"},
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.APIBaseURL != "" {
		u, err := url.Parse(c.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("api_base_url %q must be an http(s) URL", c.APIBaseURL))
		}
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if _, err := c.HTTPTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.PollInterval(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// HTTPTimeout parses http.timeout. Zero means no timeout.
func (c *Config) HTTPTimeout() (time.Duration, error) {
	if c.HTTP.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil {
		return 0, fmt.Errorf("http.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("http.timeout must not be negative")
	}
	return d, nil
}

// PollInterval parses notifications.poll_interval, defaulting to 30s.
func (c *Config) PollInterval() (time.Duration, error) {
	if c.Notifications.PollInterval == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Notifications.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("notifications.poll_interval: %w", err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("notifications.poll_interval must be at least 1s")
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
