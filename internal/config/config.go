// ABOUTME: Configuration loading and parsing for coven-chat
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Embedding providers.
const (
	ProviderHuggingFace = "huggingface"
	ProviderHashing     = "hashing"
	ProviderNone        = "none"
)

// Database drivers.
const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
)

// MinJWTSecretLength matches the verifier's minimum secret size.
const MinJWTSecretLength = 32

// Config represents the complete coven-chat configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Realtime  RealtimeConfig  `yaml:"realtime" toml:"realtime"`
	History   HistoryConfig   `yaml:"history" toml:"history"`
	Search    SearchConfig    `yaml:"search" toml:"search"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
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
	HTTPS     bool   `yaml:"https" toml:"https"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// EmbeddingConfig selects and tunes the embedding provider
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" toml:"provider"`
	Model      string        `yaml:"model" toml:"model"`
	APIToken   string        `yaml:"api_token" toml:"api_token"`
	BaseURL    string        `yaml:"base_url" toml:"base_url"`
	Dimensions int           `yaml:"dimensions" toml:"dimensions"`
	Timeout    time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// RealtimeConfig holds websocket transport configuration
type RealtimeConfig struct {
	AllowedOrigins  []string      `yaml:"allowed_origins" toml:"allowed_origins"`
	SendBuffer      int           `yaml:"send_buffer" toml:"send_buffer"`
	MaxMessageBytes int64         `yaml:"max_message_bytes" toml:"max_message_bytes"`
	WriteWait       time.Duration `yaml:"-" toml:"-"`
	PongWait        time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	WriteWaitRaw string `yaml:"write_wait" toml:"write_wait"`
	PongWaitRaw  string `yaml:"pong_wait" toml:"pong_wait"`
}

// HistoryConfig bounds conversation listings
type HistoryConfig struct {
	DefaultLimit int `yaml:"default_limit" toml:"default_limit"`
	MaxLimit     int `yaml:"max_limit" toml:"max_limit"`
}

// SearchConfig bounds semantic search results
type SearchConfig struct {
	DefaultK int `yaml:"default_k" toml:"default_k"`
	MaxK     int `yaml:"max_k" toml:"max_k"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
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

	expanded := expandEnvVars(string(data))

	var cfg Config
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

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ApplyDefaults fills unset fields. Load calls it before Validate.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = "0.0.0.0:3001"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	c.Database.Path = ExpandHome(c.Database.Path)

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderHuggingFace
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "https://router.huggingface.co/hf-inference"
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = 5 * time.Second
	}

	if len(c.Realtime.AllowedOrigins) == 0 {
		c.Realtime.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.Realtime.SendBuffer == 0 {
		c.Realtime.SendBuffer = 64
	}
	if c.Realtime.MaxMessageBytes == 0 {
		c.Realtime.MaxMessageBytes = 64 * 1024
	}
	if c.Realtime.WriteWait == 0 {
		c.Realtime.WriteWait = 10 * time.Second
	}
	if c.Realtime.PongWait == 0 {
		c.Realtime.PongWait = 60 * time.Second
	}

	if c.History.DefaultLimit == 0 {
		c.History.DefaultLimit = 50
	}
	if c.History.MaxLimit == 0 {
		c.History.MaxLimit = 500
	}
	if c.Search.DefaultK == 0 {
		c.Search.DefaultK = 10
	}
	if c.Search.MaxK == 0 {
		c.Search.MaxK = 100
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverSQLite3:
	default:
		return fmt.Errorf("database.driver %q is not supported (use %q or %q)", c.Database.Driver, DriverSQLite, DriverSQLite3)
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	switch c.Embedding.Provider {
	case ProviderHuggingFace:
		if c.Embedding.APIToken == "" {
			return errors.New("embedding.api_token is required for the huggingface provider (or set provider to \"none\")")
		}
	case ProviderHashing, ProviderNone:
	default:
		return fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding.dimensions must be positive")
	}
	if c.Embedding.Timeout < 0 {
		return errors.New("embedding.timeout must not be negative")
	}

	if c.Realtime.SendBuffer < 0 || c.Realtime.MaxMessageBytes < 0 {
		return errors.New("realtime.send_buffer and realtime.max_message_bytes must not be negative")
	}
	if c.Realtime.WriteWait < 0 || c.Realtime.PongWait < 0 {
		return errors.New("realtime durations must not be negative")
	}

	if c.History.DefaultLimit < 0 || c.History.MaxLimit < c.History.DefaultLimit {
		return errors.New("history.max_limit must be at least history.default_limit")
	}
	if c.Search.DefaultK < 0 || c.Search.MaxK < c.Search.DefaultK {
		return errors.New("search.max_k must be at least search.default_k")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"embedding.timeout", cfg.Embedding.TimeoutRaw, &cfg.Embedding.Timeout},
		{"realtime.write_wait", cfg.Realtime.WriteWaitRaw, &cfg.Realtime.WriteWait},
		{"realtime.pong_wait", cfg.Realtime.PongWaitRaw, &cfg.Realtime.PongWait},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// DefaultPath returns the path to the config file.
// Priority: COVEN_CHAT_CONFIG env var > XDG_CONFIG_HOME/coven/chat.yaml > ~/.config/coven/chat.yaml
func DefaultPath() string {
	if envPath := os.Getenv("COVEN_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "chat.yaml")
}
