package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "calsync/internal/log"
	"calsync/internal/model"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. CALSYNC_* environment variables override the file.

// SourceConfig describes one CalDAV/CardDAV origin. Set ServerURL to
// enumerate every collection of the account, or CalendarURL and/or
// AddressBookURL to use a single collection.
type SourceConfig struct {
	// ID is an internal identifier used for logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`

	ServerURL      string `yaml:"server_url,omitempty" json:"server_url,omitempty"`
	CalendarURL    string `yaml:"calendar_url,omitempty" json:"calendar_url,omitempty"`
	CalendarUID    string `yaml:"calendar_uid,omitempty" json:"calendar_uid,omitempty"`
	AddressBookURL string `yaml:"address_book_url,omitempty" json:"address_book_url,omitempty"`

	Username string            `yaml:"username,omitempty" json:"username,omitempty"`
	Password string            `yaml:"password,omitempty" json:"-"`
	Headers  map[string]string `yaml:"headers,omitempty" json:"-"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// RateLimitConfig throttles requests to the remote stores. A zero
// RequestsPerSecond disables throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for floating times and default
	// query windows (e.g. "Europe/Paris").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays / BackfillDays bound the refreshed window around now.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	RequestTimeoutSeconds int             `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
	RateLimit             RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// envOverrides lists the settings that may come from the environment.
type envOverrides struct {
	Listen      string `env:"CALSYNC_LISTEN"`
	Timezone    string `env:"CALSYNC_TIMEZONE"`
	LogLevel    string `env:"CALSYNC_LOG_LEVEL"`
	RefreshCron string `env:"CALSYNC_REFRESH"`
	HorizonDays int    `env:"CALSYNC_HORIZON_DAYS"`

	BasicAuthUsername string `env:"CALSYNC_BASIC_AUTH_USERNAME"`
	BasicAuthPassword string `env:"CALSYNC_BASIC_AUTH_PASSWORD"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                "127.0.0.1:8080",
		Timezone:              "UTC",
		LogLevel:              "INFO",
		RefreshCron:           "*/15 * * * *",
		HorizonDays:           30,
		BackfillDays:          7,
		RequestTimeoutSeconds: 30,
		RateLimit:             RateLimitConfig{RequestsPerSecond: 5, Burst: 5},
		Sources:               []SourceConfig{},
		BasicAuth:             nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	c.LogLevel = string(appLog.ParseLevel(c.LogLevel))
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = d.RequestTimeoutSeconds
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		c.RateLimit.RequestsPerSecond = 0
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		if c.Sources[i].ID == "" {
			c.Sources[i].ID = fmt.Sprintf("source-%d", i+1)
		}
	}
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	for _, s := range c.Sources {
		if s.ServerURL == "" && s.CalendarURL == "" && s.AddressBookURL == "" {
			errs = append(errs, fmt.Errorf("source %q: one of server_url, calendar_url, address_book_url is required", s.ID))
		}
	}
	return errors.Join(errs...)
}

// Location returns the configured timezone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ModelSources converts the configured sources.
func (c *Config) ModelSources() []model.Source {
	out := make([]model.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, model.Source{
			ID:             s.ID,
			ServerURL:      s.ServerURL,
			CalendarURL:    s.CalendarURL,
			AddressBookURL: s.AddressBookURL,
			CalendarUID:    s.CalendarUID,
			Transport: model.Transport{
				Headers:  s.Headers,
				Username: s.Username,
				Password: s.Password,
			}.Clone(),
		})
	}
	return out
}

// ApplyEnv overlays CALSYNC_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if ov.Listen != "" {
		c.Listen = ov.Listen
	}
	if ov.Timezone != "" {
		c.Timezone = ov.Timezone
	}
	if ov.LogLevel != "" {
		c.LogLevel = ov.LogLevel
	}
	if ov.RefreshCron != "" {
		c.RefreshCron = ov.RefreshCron
	}
	if ov.HorizonDays > 0 {
		c.HorizonDays = ov.HorizonDays
	}
	if ov.BasicAuthUsername != "" {
		c.BasicAuth = &BasicAuthConfig{Username: ov.BasicAuthUsername, Password: ov.BasicAuthPassword}
	}
	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path and applies the
// environment overlay.
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
			appLog.Info("default config written", "path", path)
			return cfg, cfg.ApplyEnv()
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

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

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".calsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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
