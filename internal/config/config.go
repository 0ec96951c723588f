package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source formats understood by the timetable fetcher.
const (
	FormatJSON = "json"
	FormatICS  = "ics"
)

// SourceConfig describes where the daily timetable comes from.
type SourceConfig struct {
	// URL is the endpoint returning the timetable (JSON list of days, or an
	// iCalendar feed when Format is "ics").
	URL string `yaml:"url" json:"url"`

	// Format is "json" (default) or "ics".
	Format string `yaml:"format" json:"format"`

	// TimeoutSeconds bounds a single fetch.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`

	// CacheDir stores the last body plus ETag/Last-Modified for conditional
	// requests. Empty disables the cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// ScheduleConfig holds cron specs for the periodic jobs. robfig/cron
// descriptors such as "@every 5s" are accepted.
type ScheduleConfig struct {
	Refresh string `yaml:"refresh" json:"refresh"`
	Cycle   string `yaml:"cycle" json:"cycle"`
	Tick    string `yaml:"tick" json:"tick"`
}

// CaptureConfig controls headless-Chromium snapshots of the board page.
type CaptureConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Refresh    string `yaml:"refresh" json:"refresh"`
	OutputPath string `yaml:"output_path" json:"output_path"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`

	// Planes additionally packs the PNG into 1bpp black/red planes
	// (<output>.black.bin, <output>.red.bin) for tri-color e-paper.
	Planes bool `yaml:"planes" json:"planes"`
}

// BatteryConfig toggles the I2C battery gauge readout.
type BatteryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Mock serves random levels instead of reading the gauge (development).
	Mock bool `yaml:"mock" json:"mock"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the board and API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the board page and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that defines "today" and the wall clock
	// (e.g. "Asia/Tokyo"). Empty is filled with Asia/Tokyo by Normalize;
	// "Local" selects the host's zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Source   SourceConfig   `yaml:"source" json:"source"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Capture  CaptureConfig  `yaml:"capture" json:"capture"`
	Battery  BatteryConfig  `yaml:"battery" json:"battery"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "Asia/Tokyo"
	defaultTimeoutSeconds = 15
	defaultRefreshSpec    = "@every 60s"
	defaultCycleSpec      = "@every 5s"
	defaultTickSpec       = "@every 1s"
	defaultCaptureSpec    = "@every 5m"
	defaultCaptureOutput  = "/var/lib/classboard/preview.png"
	defaultCaptureWidth   = 1304
	defaultCaptureHeight  = 984
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		LogLevel: "info",
		Source: SourceConfig{
			Format:   FormatJSON,
			CacheDir: "/var/lib/classboard/cache",
		},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so partially-filled files still
// behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	c.Source.Format = strings.ToLower(strings.TrimSpace(c.Source.Format))
	switch c.Source.Format {
	case FormatJSON, FormatICS:
	default:
		c.Source.Format = FormatJSON
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = defaultTimeoutSeconds
	}

	if c.Schedule.Refresh == "" {
		c.Schedule.Refresh = defaultRefreshSpec
	}
	if c.Schedule.Cycle == "" {
		c.Schedule.Cycle = defaultCycleSpec
	}
	if c.Schedule.Tick == "" {
		c.Schedule.Tick = defaultTickSpec
	}

	if c.Capture.Refresh == "" {
		c.Capture.Refresh = defaultCaptureSpec
	}
	if c.Capture.OutputPath == "" {
		c.Capture.OutputPath = defaultCaptureOutput
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = defaultCaptureWidth
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = defaultCaptureHeight
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return errors.New("config: source.url is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// FetchTimeout is Source.TimeoutSeconds as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// Load reads configuration from the given YAML path.
//
// A missing file is created with defaults (0600) and the defaults are
// returned; an existing file is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg anyway so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
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

	tmp, err := os.CreateTemp(dir, ".classboard-config-*.tmp")
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

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
