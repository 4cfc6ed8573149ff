package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	SyncModeStamp = "stamp"
	SyncModeFetch = "fetch"
)

// FeedConfig describes where the imported busy-calendar feed comes from.
type FeedConfig struct {
	// Source is either an http(s) URL or a local file path.
	Source string `yaml:"source" json:"source"`
	// Strict switches from the tolerant line scanner to the full ICS
	// parser, which rejects events missing DTSTART/DTEND and expands RRULEs.
	Strict bool `yaml:"strict" json:"strict"`
	// HorizonDays bounds RRULE expansion in strict mode.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// PaymentConfig holds the checkout provider settings. An empty
// StripeSecretKey disables payments.
type PaymentConfig struct {
	StripeSecretKey string `yaml:"stripe_secret_key" json:"-"`
	SuccessURL      string `yaml:"success_url" json:"success_url"`
	CancelURL       string `yaml:"cancel_url" json:"cancel_url"`
}

// SyncConfig controls the "sync now" capability for external calendars.
type SyncConfig struct {
	// Mode is "stamp" (only records last_synced_at) or "fetch" (imports
	// the entry's feed into the calendar).
	Mode string `yaml:"mode" json:"mode"`
	// Refresh is an optional cron spec for syncing every active entry.
	// Empty means manual only.
	Refresh string `yaml:"refresh" json:"refresh"`
}

// RateLimitConfig bounds guest booking submissions per client IP.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" json:"per_minute"`
	Burst     int `yaml:"burst" json:"burst"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Env is "production" or "development"; it selects the log encoder.
	Env      string `yaml:"env" json:"env"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA timezone that defines calendar days (e.g. "America/Sao_Paulo").
	Timezone string `yaml:"timezone" json:"timezone"`

	Feed FeedConfig `yaml:"feed" json:"feed"`

	// CacheDir stores ETag metadata and bodies of fetched feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// DatabasePath is the SQLite file holding bookings, profiles and
	// calendar sync entries.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	PricePerNight float64 `yaml:"price_per_night" json:"price_per_night"`
	Currency      string  `yaml:"currency" json:"currency"`
	// MaxNights is the longest stay a guest may book.
	MaxNights int `yaml:"max_nights" json:"max_nights"`

	Payment PaymentConfig `yaml:"payment" json:"payment"`
	Sync    SyncConfig    `yaml:"sync" json:"sync"`

	// Compact is a cron spec for dropping past override/note entries.
	Compact string `yaml:"compact" json:"compact"`

	// IdentityHeader carries the authenticated user id set by the
	// upstream auth gateway.
	IdentityHeader string `yaml:"identity_header" json:"identity_header"`

	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health and /export.ics.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Env:      "development",
		LogLevel: "info",
		Timezone: "America/Sao_Paulo",
		Feed: FeedConfig{
			Source:      "./export.ics",
			HorizonDays: 365,
		},
		CacheDir:       "./var/feed-cache",
		DatabasePath:   "./var/staycal.db",
		PricePerNight:  500,
		Currency:       "brl",
		MaxNights:      365,
		Sync:           SyncConfig{Mode: SyncModeStamp},
		Compact:        "0 3 * * *",
		IdentityHeader: "X-User-Id",
		RateLimit:      RateLimitConfig{PerMinute: 20, Burst: 5},
		BasicAuth:      nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Env == "" {
		c.Env = def.Env
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Feed.Source == "" {
		c.Feed.Source = def.Feed.Source
	}
	if c.Feed.HorizonDays <= 0 {
		c.Feed.HorizonDays = def.Feed.HorizonDays
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.PricePerNight <= 0 {
		c.PricePerNight = def.PricePerNight
	}
	if c.Currency == "" {
		c.Currency = def.Currency
	}
	if c.MaxNights <= 0 {
		c.MaxNights = def.MaxNights
	}

	switch c.Sync.Mode {
	case SyncModeStamp, SyncModeFetch:
		// ok
	default:
		// Unknown value; the placeholder is the safe choice.
		c.Sync.Mode = SyncModeStamp
	}

	if c.Compact == "" {
		c.Compact = def.Compact
	}
	if c.IdentityHeader == "" {
		c.IdentityHeader = def.IdentityHeader
	}
	if c.RateLimit.PerMinute <= 0 {
		c.RateLimit.PerMinute = def.RateLimit.PerMinute
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
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

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
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

	tmp, err := os.CreateTemp(dir, ".staycal-config-*.tmp")
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

func (c *Config) Save(path string) error {
	return Save(path, c)
}

// PaymentsEnabled reports whether a checkout provider is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.Payment.StripeSecretKey != ""
}
