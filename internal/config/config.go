// ABOUTME: Configuration loading and parsing for coven-lanes
// ABOUTME: YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-lanes/internal/roles"
)

// EnvPath names the environment variable that points at a config file.
const EnvPath = "COVEN_LANES_CONFIG"

// Config represents the complete coven-lanes configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Sync      SyncConfig      `yaml:"sync" toml:"sync"`
	Reveal    RevealConfig    `yaml:"reveal" toml:"reveal"`
	Roles     RolesConfig     `yaml:"roles" toml:"roles"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
}

// ServerConfig locates the conversation backend
type ServerConfig struct {
	URL   string `yaml:"url" toml:"url"`
	Token string `yaml:"token,omitempty" toml:"token,omitempty"` // forwarded as a bearer token
}

// SyncConfig holds feed polling and echo timing
type SyncConfig struct {
	PollInterval time.Duration `yaml:"-" toml:"-"`
	EchoWindow   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval"`
	EchoWindowRaw   string `yaml:"echo_window" toml:"echo_window"`
}

// RevealConfig holds typing reveal pacing
type RevealConfig struct {
	CharsPerSecond float64       `yaml:"chars_per_second" toml:"chars_per_second"`
	FrameInterval  time.Duration `yaml:"-" toml:"-"`

	FrameIntervalRaw string `yaml:"frame_interval" toml:"frame_interval"`
}

// RolesConfig holds the specialist set and display labels
type RolesConfig struct {
	Specialists []string          `yaml:"specialists" toml:"specialists"`
	Labels      map[string]string `yaml:"labels" toml:"labels"`
}

// StoreConfig holds the session ledger location
type StoreConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TailscaleConfig holds tsnet configuration for reaching the backend over a tailnet
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname,omitempty" toml:"hostname,omitempty"`
	AuthKey   string `yaml:"auth_key,omitempty" toml:"auth_key,omitempty"`
	StateDir  string `yaml:"state_dir,omitempty" toml:"state_dir,omitempty"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{URL: "http://localhost:8000"},
		Sync: SyncConfig{
			PollInterval:    1200 * time.Millisecond,
			EchoWindow:      20 * time.Second,
			PollIntervalRaw: "1.2s",
			EchoWindowRaw:   "20s",
		},
		Reveal: RevealConfig{
			CharsPerSecond:   20,
			FrameInterval:    50 * time.Millisecond,
			FrameIntervalRaw: "50ms",
		},
		Roles: RolesConfig{
			Specialists: roles.DefaultSpecialists(),
			Labels:      roles.DefaultLabels(),
		},
		Store:   StoreConfig{Path: ":memory:"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Values missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if isTOML(path) {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ResolvePath returns the config path to use and whether it was named
// explicitly through EnvPath.
func ResolvePath() (path string, explicit bool, err error) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, true, nil
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", false, fmt.Errorf("cannot determine config directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "lanes.yaml"), false, nil
}

// LoadDefault loads the config at ResolvePath, falling back to Default()
// when no file exists at the implicit location. It returns the path used,
// or "" when the defaults were used.
func LoadDefault() (*Config, string, error) {
	path, explicit, err := ResolvePath()
	if err != nil {
		return nil, "", err
	}

	cfg, err := Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return Default(), "", nil
	}
	return nil, "", err
}

// Write saves cfg to path as YAML, or TOML for .toml paths, creating parent
// directories as needed. It refuses to overwrite an existing file.
func Write(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
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

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must use http or https scheme")
	}

	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_interval must be positive")
	}
	if c.Sync.EchoWindow <= 0 {
		return fmt.Errorf("sync.echo_window must be positive")
	}
	if c.Reveal.CharsPerSecond <= 0 {
		return fmt.Errorf("reveal.chars_per_second must be positive")
	}
	if c.Reveal.FrameInterval <= 0 {
		return fmt.Errorf("reveal.frame_interval must be positive")
	}

	for _, role := range c.Roles.Specialists {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("roles.specialists contains an empty role")
		}
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sync.PollIntervalRaw != "" {
		cfg.Sync.PollInterval, err = time.ParseDuration(cfg.Sync.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Sync.PollIntervalRaw, err)
		}
	}

	if cfg.Sync.EchoWindowRaw != "" {
		cfg.Sync.EchoWindow, err = time.ParseDuration(cfg.Sync.EchoWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing echo_window %q: %w", cfg.Sync.EchoWindowRaw, err)
		}
	}

	if cfg.Reveal.FrameIntervalRaw != "" {
		cfg.Reveal.FrameInterval, err = time.ParseDuration(cfg.Reveal.FrameIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing frame_interval %q: %w", cfg.Reveal.FrameIntervalRaw, err)
		}
	}

	return nil
}
