package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"calclient/internal/fileutil"
	appLog "calclient/internal/log"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the local status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// BaseURL is the calendar server root, e.g. "https://cal.example.com/api".
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timezone is the IANA zone events are bucketed into days with
	// (e.g. "Asia/Seoul"). Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// TickInterval is the period of the client's scheduling loop.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") for a full
	// reload from the server. Empty disables periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// RequestTimeout bounds one HTTP exchange.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// MaxInFlight caps concurrent HTTP exchanges.
	MaxInFlight int64 `yaml:"max_in_flight" json:"max_in_flight"`

	// RateLimit is outgoing requests per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst"`

	// CredentialsPath is where the login credential is persisted.
	CredentialsPath string `yaml:"credentials_path" json:"credentials_path"`

	// Listen is the address of the local status API. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	// HorizonDays is the default span of the ICS feed and the dump mode.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultTickInterval   = 100 * time.Millisecond
	defaultRequestTimeout = 15 * time.Second
	defaultMaxInFlight    = 8
	defaultRefreshCron    = "*/15 * * * *"
	defaultHorizonDays    = 7
	defaultCredentials    = "./state/credential.json"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "http://127.0.0.1:8000",
		TickInterval:    defaultTickInterval,
		RefreshCron:     defaultRefreshCron,
		RequestTimeout:  defaultRequestTimeout,
		MaxInFlight:     defaultMaxInFlight,
		CredentialsPath: defaultCredentials,
		Listen:          "127.0.0.1:8080",
		HorizonDays:     defaultHorizonDays,
		LogLevel:        "info",
	}
}

// Normalize fills in zero values so partially-filled configs still behave.
func (c *Config) Normalize() {
	if c.BaseURL == "" {
		c.BaseURL = "http://127.0.0.1:8000"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = defaultMaxInFlight
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.CredentialsPath == "" {
		c.CredentialsPath = defaultCredentials
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Location resolves Timezone, falling back to the local zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("invalid timezone, using local", err, "timezone", c.Timezone)
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist a default config is written there with 0600
// perms and returned. Environment overrides are applied last in both cases.
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
				applyEnv(cfg)
				return cfg, err
			}
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	applyEnv(&cfg)
	cfg.Normalize()

	return &cfg, nil
}

// LoadOrDefault never fails: an unreadable or malformed file is logged and
// the defaults are used instead.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		appLog.Error("config load failed, using defaults", err, "path", path)
		if cfg == nil {
			cfg = DefaultConfig()
			applyEnv(cfg)
		}
	}
	cfg.Normalize()
	return cfg
}

// LoadDotEnv reads a .env file into the process environment if present.
// Existing variables win.
func LoadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("could not read env file", "path", path, "err", err)
	}
}

// applyEnv overrides file values with CALCLIENT_* variables.
func applyEnv(c *Config) {
	if v := os.Getenv("CALCLIENT_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("CALCLIENT_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("CALCLIENT_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("CALCLIENT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CALCLIENT_CREDENTIALS_PATH"); v != "" {
		c.CredentialsPath = v
	}
	if v := os.Getenv("CALCLIENT_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit = f
		} else {
			appLog.Warn("ignoring CALCLIENT_RATE_LIMIT", "value", v)
		}
	}
}

// Save writes cfg to path as YAML, atomically, with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
