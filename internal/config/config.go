// Package config loads gmailrelay configuration from an optional TOML
// file and GMAILRELAY_* environment variables. Command-line flags are
// applied on top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// CallbackPath is where Google redirects the browser after consent.
const CallbackPath = "/callback"

// Config is the full gmailrelay configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Client    ClientConfig    `toml:"client"`

	// Path of the file that was loaded, empty if none.
	Path string `toml:"-"`
}

// ServerConfig holds the backend's HTTP settings.
type ServerConfig struct {
	HTTPAddr string `toml:"http_addr"` // listen address (default: ":3000")
	Origin   string `toml:"origin"`    // public origin; the redirect target is origin + "/callback"
}

// RateLimitConfig holds per-IP rate limiting for the API endpoints.
type RateLimitConfig struct {
	Enabled bool    `toml:"enabled"`
	RPS     float64 `toml:"rps"`
	Burst   int     `toml:"burst"`
}

// MetricsConfig holds the dedicated Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// ClientConfig holds the CLI client's settings.
type ClientConfig struct {
	BackendURL      string `toml:"backend_url"`      // defaults to the server origin
	CredentialsFile string `toml:"credentials_file"` // defaults to the user cache dir
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":3000",
			Origin:   "http://localhost:3000",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     10,
			Burst:   20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/gmailrelay/config.toml or the
// platform's equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".gmailrelay", "config.toml")
	}
	return filepath.Join(dir, "gmailrelay", "config.toml")
}

// Load builds the configuration from defaults, then the TOML file, then
// the environment. An empty path means GMAILRELAY_CONFIG or DefaultPath;
// a missing default file is not an error, a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if env := os.Getenv("GMAILRELAY_CONFIG"); env != "" {
			path = env
			explicit = true
		} else {
			path = DefaultPath()
		}
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		cfg.Path = path
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.HTTPAddr = getEnvOrDefault("GMAILRELAY_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.Origin = getEnvOrDefault("GMAILRELAY_ORIGIN", c.Server.Origin)
	c.Metrics.Addr = getEnvOrDefault("GMAILRELAY_METRICS_ADDR", c.Metrics.Addr)
	c.Client.BackendURL = getEnvOrDefault("GMAILRELAY_BACKEND_URL", c.Client.BackendURL)
	c.Client.CredentialsFile = getEnvOrDefault("GMAILRELAY_CREDENTIALS_FILE", c.Client.CredentialsFile)

	var err error
	if c.RateLimit.Enabled, err = getEnvBool("GMAILRELAY_RATE_LIMIT_ENABLED", c.RateLimit.Enabled); err != nil {
		return err
	}
	if c.RateLimit.RPS, err = getEnvFloat("GMAILRELAY_RATE_LIMIT", c.RateLimit.RPS); err != nil {
		return err
	}
	// As with --rate-limit, an explicit rate of 0 or less disables limiting.
	if os.Getenv("GMAILRELAY_RATE_LIMIT") != "" {
		c.RateLimit.Enabled = c.RateLimit.RPS > 0
	}
	if c.RateLimit.Burst, err = getEnvInt("GMAILRELAY_RATE_BURST", c.RateLimit.Burst); err != nil {
		return err
	}
	if c.Metrics.Enabled, err = getEnvBool("GMAILRELAY_METRICS_ENABLED", c.Metrics.Enabled); err != nil {
		return err
	}
	return nil
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if err := validateOrigin(c.Server.Origin); err != nil {
		return fmt.Errorf("server.origin: %w", err)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			return fmt.Errorf("rate_limit.rps must be positive, got %v", c.RateLimit.RPS)
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be positive, got %d", c.RateLimit.Burst)
		}
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	if c.Client.BackendURL != "" {
		if err := validateOrigin(c.Client.BackendURL); err != nil {
			return fmt.Errorf("client.backend_url: %w", err)
		}
	}
	return nil
}

// RedirectURI returns the redirect target derived from the origin.
func (c *Config) RedirectURI() string {
	return strings.TrimRight(c.Server.Origin, "/") + CallbackPath
}

// BackendURL returns the URL the client talks to.
func (c *Config) BackendURL() string {
	if c.Client.BackendURL != "" {
		return strings.TrimRight(c.Client.BackendURL, "/")
	}
	return strings.TrimRight(c.Server.Origin, "/")
}

func validateOrigin(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required, got %q", raw)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}
