// ABOUTME: Configuration loading and parsing for keyconsole
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a field empty.
const (
	DefaultNoticeTimeout  = 6 * time.Second
	DefaultBackendTimeout = 15 * time.Second
	DefaultClientTTL      = 12 * time.Hour
	DefaultMaxClients     = 10_000
	DefaultLoginRate      = 1.0
	DefaultLoginBurst     = 5
	DefaultMetricsPath    = "/metrics"
)

// Config represents the complete keyconsole configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Console   ConsoleConfig   `yaml:"console" toml:"console"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	// HTTPS serves on :443 with the node's Tailscale certificate
	HTTPS bool `yaml:"https" toml:"https"`
}

// BackendConfig points at the remote auth and license-key services
type BackendConfig struct {
	AuthURL string `yaml:"auth_url" toml:"auth_url"`
	// KeysURL defaults to AuthURL when empty
	KeysURL string `yaml:"keys_url" toml:"keys_url"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// AuthConfig holds the secret used to sign console client cookies
type AuthConfig struct {
	Secret string `yaml:"secret" toml:"secret"`
}

// DatabaseConfig holds the audit log database location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ConsoleConfig holds per-client console behavior
type ConsoleConfig struct {
	NoticeTimeout time.Duration `yaml:"-" toml:"-"`
	ClientTTL     time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	NoticeTimeoutRaw string `yaml:"notice_timeout" toml:"notice_timeout"`
	ClientTTLRaw     string `yaml:"client_ttl" toml:"client_ttl"`

	MaxClients int `yaml:"max_clients" toml:"max_clients"`

	// LoginRate is logins per second per address; 0 disables throttling
	LoginRate  float64 `yaml:"login_rate" toml:"login_rate"`
	LoginBurst int     `yaml:"login_burst" toml:"login_burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	// Seeded before decoding so an explicit zero survives
	cfg := Config{Console: ConsoleConfig{LoginRate: DefaultLoginRate}}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Backend.AuthURL == "" {
		return fmt.Errorf("backend.auth_url is required")
	}
	if !strings.HasPrefix(c.Backend.AuthURL, "http://") && !strings.HasPrefix(c.Backend.AuthURL, "https://") {
		return fmt.Errorf("backend.auth_url must be an http(s) URL, got %q", c.Backend.AuthURL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Console.LoginRate < 0 {
		return fmt.Errorf("console.login_rate must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// applyDefaults fills zero values that have a sensible default
func (c *Config) applyDefaults() {
	if c.Backend.KeysURL == "" {
		c.Backend.KeysURL = c.Backend.AuthURL
	}
	if c.Backend.TimeoutRaw == "" {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Console.NoticeTimeout == 0 {
		c.Console.NoticeTimeout = DefaultNoticeTimeout
	}
	if c.Console.ClientTTL == 0 {
		c.Console.ClientTTL = DefaultClientTTL
	}
	if c.Console.MaxClients == 0 {
		c.Console.MaxClients = DefaultMaxClients
	}
	if c.Console.LoginBurst == 0 {
		c.Console.LoginBurst = DefaultLoginBurst
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if strings.HasPrefix(c.Database.Path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			c.Database.Path = filepath.Join(home, c.Database.Path[2:])
		}
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.TimeoutRaw != "" {
		cfg.Backend.Timeout, err = time.ParseDuration(cfg.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Backend.TimeoutRaw, err)
		}
	}

	if cfg.Console.NoticeTimeoutRaw != "" {
		cfg.Console.NoticeTimeout, err = time.ParseDuration(cfg.Console.NoticeTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing notice_timeout %q: %w", cfg.Console.NoticeTimeoutRaw, err)
		}
	}

	if cfg.Console.ClientTTLRaw != "" {
		cfg.Console.ClientTTL, err = time.ParseDuration(cfg.Console.ClientTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing client_ttl %q: %w", cfg.Console.ClientTTLRaw, err)
		}
	}

	return nil
}
