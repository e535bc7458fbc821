// Package config loads and saves the daycal YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	// Timezone must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "daycal/internal/log"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultDataFile    = "./var/daycal.json"
	defaultCacheDir    = "./var/ics-cache"
	defaultLogLevel    = "INFO"
	defaultRefresh     = "*/15 * * * *"
	defaultHorizonDays = 42
)

// ICSConfig describes a single subscribed calendar feed.
type ICSConfig struct {
	// ID is an internal identifier used in item IDs and logs.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// URL is the feed endpoint. webcal:// is accepted.
	URL string `yaml:"url" json:"url"`
	// Color is applied to every event imported from this feed.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// BasicAuthConfig protects every endpoint except /health.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	// PasswordHash is a bcrypt hash, see `daycal hash-password`.
	PasswordHash string `yaml:"password_hash" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for display and all-day dates.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataFile is where local events and categories are stored.
	DataFile string `yaml:"data_file" json:"data_file"`

	// CacheDir holds the last good body of each feed.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is the feed refresh schedule (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays bounds how far ahead feeds are expanded.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// HolidayRegion selects computed public holidays ("de-nrw", "us").
	// Empty disables them.
	HolidayRegion string `yaml:"holiday_region,omitempty" json:"holiday_region,omitempty"`

	// MaxExpansionIterations caps candidate starts per recurring event.
	// Zero uses the expander default.
	MaxExpansionIterations int `yaml:"max_expansion_iterations,omitempty" json:"max_expansion_iterations,omitempty"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		DataFile:    defaultDataFile,
		CacheDir:    defaultCacheDir,
		LogLevel:    defaultLogLevel,
		RefreshCron: defaultRefresh,
		HorizonDays: defaultHorizonDays,
		ICS:         []ICSConfig{},
	}
}

// Normalize fills in missing values so partially-filled configs still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.DataFile == "" {
		c.DataFile = defaultDataFile
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	c.HolidayRegion = strings.ToLower(strings.TrimSpace(c.HolidayRegion))
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("feed%d", i+1)
		}
	}
}

// Validate reports the first setting that would fail at runtime.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err)
	}
	if _, ok := appLog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	switch c.HolidayRegion {
	case "", "de-nrw", "us":
	default:
		return fmt.Errorf("config: unknown holiday_region %q", c.HolidayRegion)
	}
	if c.MaxExpansionIterations < 0 {
		return errors.New("config: max_expansion_iterations must not be negative")
	}

	seen := make(map[string]bool, len(c.ICS))
	for i, src := range c.ICS {
		if src.URL == "" {
			return fmt.Errorf("config: ics[%d]: url is empty", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("config: ics[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
	}

	if c.BasicAuth != nil {
		if c.BasicAuth.Username == "" || c.BasicAuth.PasswordHash == "" {
			return errors.New("config: basic_auth needs username and password_hash")
		}
	}
	return nil
}

// Location returns the configured zone, or UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there with 0600
// permissions and returned. Otherwise the file is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller may still run on defaults.
				return cfg, err
			}
			appLog.Info("wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename. The parent
// directory is created with 0700 and the file ends up 0600.
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

	tmp, err := os.CreateTemp(dir, ".daycal-config-*.tmp")
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

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
