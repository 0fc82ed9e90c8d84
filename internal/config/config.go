// Package config owns the daemon's YAML configuration file and the
// environment-sourced provider credentials. Credentials never live in the
// YAML file and nothing outside this package reads the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Display output selectors.
const (
	DisplayNone = "none"
	DisplayEPD  = "epd"
)

// ICSSource describes one ICS subscription.
type ICSSource struct {
	// URL is the subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID identifies the source in logs and error reports.
	ID string `yaml:"id" json:"id"`
	// Name is the calendar identity; the layout palette keys on it
	// (e.g. "primary", "holidays", "work").
	Name string `yaml:"name" json:"name"`
}

// BasicAuth guards the HTTP API when both fields are set.
type BasicAuth struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the preview API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA display timezone every timestamp converts
	// into (e.g. "America/New_York"). The week always starts on Sunday.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is the cron schedule for the refresh pass.
	RefreshCron string `yaml:"refresh_cron" json:"refresh_cron"`

	// Width and Height are the canvas dimensions in pixels. They must
	// match the panel when Display is "epd".
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// Display selects the output: "none" renders for the preview API
	// only, "epd" also drives the panel.
	Display string `yaml:"display" json:"display"`

	// CacheDir holds the ICS conditional-request cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// ICS lists the subscribed calendar feeds.
	ICS []ICSSource `yaml:"ics" json:"ics"`

	// TickTickEnabled turns the task source on. Credentials come from
	// the environment, never from this file.
	TickTickEnabled bool `yaml:"ticktick_enabled" json:"ticktick_enabled"`

	// BasicAuth, if non-nil with both fields set, enables HTTP basic
	// auth on every endpoint except /health.
	BasicAuth *BasicAuth `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Default returns the in-memory default configuration.
func Default() *Config {
	return &Config{
		Listen:      ":8080",
		Timezone:    "UTC",
		RefreshCron: "*/30 * * * *",
		Width:       800,
		Height:      480,
		Display:     DisplayNone,
		CacheDir:    defaultCacheDir(),
		ICS:         []ICSSource{},
	}
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return "./var/cache"
	}
	return filepath.Join(base, "taskcal")
}

// Normalize fills missing values with defaults and repairs entries a
// partially written config would otherwise break: sources without a URL
// are dropped, sources without an ID or name inherit one.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/30 * * * *"
	}
	if c.Width <= 0 {
		c.Width = 800
	}
	if c.Height <= 0 {
		c.Height = 480
	}
	switch c.Display {
	case DisplayNone, DisplayEPD:
	default:
		c.Display = DisplayNone
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir()
	}

	kept := make([]ICSSource, 0, len(c.ICS))
	for i, src := range c.ICS {
		if src.URL == "" {
			continue
		}
		if src.Name == "" {
			src.Name = fmt.Sprintf("calendar-%d", i+1)
		}
		if src.ID == "" {
			src.ID = src.Name
		}
		kept = append(kept, src)
	}
	c.ICS = kept
}

// Load reads the YAML config at path. A missing file is a first run: the
// defaults are written there (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
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

// Save writes cfg to path atomically: temp file in the same directory,
// fsync, chmod 0600, rename. The parent directory is created 0700.
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

	tmp, err := os.CreateTemp(dir, ".taskcal-config-*.tmp")
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

// Save writes the receiver to path; see the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Credentials is the complete set of environment-recognized secrets. Keep
// every provider secret here so a reader can see the whole surface in one
// struct.
type Credentials struct {
	// TickTickAccessToken is the OAuth access token sent as a bearer
	// token. Required when ticktick_enabled is set.
	TickTickAccessToken string `env:"TICKTICK_ACCESS_TOKEN"`
	// TickTickProjectID selects the project to pull tasks from.
	// Required when ticktick_enabled is set.
	TickTickProjectID string `env:"TICKTICK_PROJECT_ID"`
	// TickTickBaseURL overrides the hosted API endpoint. Optional.
	TickTickBaseURL string `env:"TICKTICK_BASE_URL"`
}

// LoadCredentials parses the environment.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	if err := env.Parse(&c); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// TickTickReady reports whether the task source has what it needs.
func (c Credentials) TickTickReady() bool {
	return c.TickTickAccessToken != "" && c.TickTickProjectID != ""
}
