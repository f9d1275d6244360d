// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// validConfig returns a config that passes Validate.
func validConfig() Config {
	cfg := Config{
		Database:  DatabaseConfig{Path: "./test.db"},
		Auth:      AuthConfig{JWTSecret: testSecret},
		Embedding: EmbeddingConfig{Provider: ProviderNone},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", `
server:
  http_addr: "127.0.0.1:3001"

database:
  driver: "sqlite3"
  path: "./test.db"

auth:
  jwt_secret: "`+testSecret+`"

embedding:
  provider: "huggingface"
  api_token: "hf_test"
  model: "BAAI/bge-small-en-v1.5"
  dimensions: 384
  timeout: "3s"

realtime:
  allowed_origins:
    - "http://localhost:3000"
    - "https://chat.example.com"
  send_buffer: 32
  write_wait: "5s"
  pong_wait: "30s"

history:
  default_limit: 20
  max_limit: 200

search:
  default_k: 5
  max_k: 50

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:3001" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:3001")
	}
	if cfg.Database.Driver != DriverSQLite3 {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverSQLite3)
	}
	if cfg.Embedding.Model != "BAAI/bge-small-en-v1.5" {
		t.Errorf("Embedding.Model = %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Timeout != 3*time.Second {
		t.Errorf("Embedding.Timeout = %v, want 3s", cfg.Embedding.Timeout)
	}
	if len(cfg.Realtime.AllowedOrigins) != 2 {
		t.Errorf("len(Realtime.AllowedOrigins) = %d, want 2", len(cfg.Realtime.AllowedOrigins))
	}
	if cfg.Realtime.SendBuffer != 32 {
		t.Errorf("Realtime.SendBuffer = %d, want 32", cfg.Realtime.SendBuffer)
	}
	if cfg.Realtime.WriteWait != 5*time.Second || cfg.Realtime.PongWait != 30*time.Second {
		t.Errorf("Realtime waits = %v/%v, want 5s/30s", cfg.Realtime.WriteWait, cfg.Realtime.PongWait)
	}
	if cfg.History.DefaultLimit != 20 || cfg.History.MaxLimit != 200 {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.Search.DefaultK != 5 || cfg.Search.MaxK != 50 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "chat.toml", `
[server]
http_addr = "127.0.0.1:4000"

[database]
path = "./chat.db"

[auth]
jwt_secret = "`+testSecret+`"

[embedding]
provider = "hashing"
dimensions = 64
timeout = "750ms"

[realtime]
allowed_origins = ["*"]
pong_wait = "45s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:4000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Embedding.Provider != ProviderHashing || cfg.Embedding.Dimensions != 64 {
		t.Errorf("Embedding = %+v", cfg.Embedding)
	}
	if cfg.Embedding.Timeout != 750*time.Millisecond {
		t.Errorf("Embedding.Timeout = %v, want 750ms", cfg.Embedding.Timeout)
	}
	if cfg.Realtime.PongWait != 45*time.Second {
		t.Errorf("Realtime.PongWait = %v, want 45s", cfg.Realtime.PongWait)
	}
	if cfg.Realtime.WriteWait != 10*time.Second {
		t.Errorf("Realtime.WriteWait = %v, want default 10s", cfg.Realtime.WriteWait)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", `
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
embedding:
  provider: "none"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:3001" {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("Embedding.Dimensions = %d, want 384", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.Timeout != 5*time.Second {
		t.Errorf("Embedding.Timeout = %v, want 5s", cfg.Embedding.Timeout)
	}
	if cfg.History.DefaultLimit != 50 || cfg.History.MaxLimit != 500 {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.Search.DefaultK != 10 || cfg.Search.MaxK != 100 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if got := cfg.Realtime.AllowedOrigins; len(got) != 1 || got[0] != "http://localhost:3000" {
		t.Errorf("Realtime.AllowedOrigins = %v", got)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CHAT_SECRET", testSecret)
	t.Setenv("TEST_HF_TOKEN", "hf_from_env")
	t.Setenv("TEST_DB_PATH", "/tmp/chat-test.db")

	configPath := writeConfig(t, "chat.yaml", `
database:
  path: "${TEST_DB_PATH}"
auth:
  jwt_secret: "${TEST_CHAT_SECRET}"
embedding:
  api_token: "${TEST_HF_TOKEN}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Database.Path != "/tmp/chat-test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/chat-test.db")
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Embedding.APIToken != "hf_from_env" {
		t.Errorf("Embedding.APIToken = %q, want %q", cfg.Embedding.APIToken, "hf_from_env")
	}
}

func TestLoad_UnsetSecretFailsValidation(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", `
database:
  path: "./test.db"
auth:
  jwt_secret: "${CHAT_TEST_UNSET_SECRET}"
embedding:
  provider: "none"
`)

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "auth.jwt_secret is required") {
		t.Errorf("Load() error = %v, want jwt_secret required", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/chat.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", "server:\n  http_addr: [unclosed\n")
	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	configPath := writeConfig(t, "chat.toml", "[server\nhttp_addr = ")
	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid TOML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", `
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
embedding:
  provider: "none"
  timeout: "soon"
`)

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "embedding.timeout") {
		t.Errorf("Load() error = %v, want embedding.timeout parse error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		wantErrSubstr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:          "missing http_addr",
			mutate:        func(c *Config) { c.Server.HTTPAddr = "" },
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name: "tailscale allows empty http_addr",
			mutate: func(c *Config) {
				c.Server.HTTPAddr = ""
				c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "coven-chat"}
			},
		},
		{
			name: "tailscale requires hostname",
			mutate: func(c *Config) {
				c.Tailscale = TailscaleConfig{Enabled: true}
			},
			wantErrSubstr: "tailscale.hostname is required",
		},
		{
			name:          "missing database path",
			mutate:        func(c *Config) { c.Database.Path = "" },
			wantErrSubstr: "database.path is required",
		},
		{
			name:          "unknown driver",
			mutate:        func(c *Config) { c.Database.Driver = "postgres" },
			wantErrSubstr: "database.driver",
		},
		{
			name:          "missing secret",
			mutate:        func(c *Config) { c.Auth.JWTSecret = "" },
			wantErrSubstr: "auth.jwt_secret is required",
		},
		{
			name:          "short secret",
			mutate:        func(c *Config) { c.Auth.JWTSecret = "too-short" },
			wantErrSubstr: "at least 32 bytes",
		},
		{
			name:          "huggingface needs token",
			mutate:        func(c *Config) { c.Embedding.Provider = ProviderHuggingFace },
			wantErrSubstr: "embedding.api_token is required",
		},
		{
			name:          "unknown provider",
			mutate:        func(c *Config) { c.Embedding.Provider = "openai" },
			wantErrSubstr: "embedding.provider",
		},
		{
			name:          "non-positive dimensions",
			mutate:        func(c *Config) { c.Embedding.Dimensions = -1 },
			wantErrSubstr: "embedding.dimensions must be positive",
		},
		{
			name:          "history bounds",
			mutate:        func(c *Config) { c.History.MaxLimit = 10 },
			wantErrSubstr: "history.max_limit",
		},
		{
			name:          "search bounds",
			mutate:        func(c *Config) { c.Search.MaxK = 1 },
			wantErrSubstr: "search.max_k",
		},
		{
			name:          "log level",
			mutate:        func(c *Config) { c.Logging.Level = "loud" },
			wantErrSubstr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErrSubstr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single env var", "${FOO}", "bar"},
		{"env var with surrounding text", "prefix-${FOO}-suffix", "prefix-bar-suffix"},
		{"multiple env vars", "${FOO}/${BAZ}", "bar/qux"},
		{"no env vars", "no-vars-here", "no-vars-here"},
		{"unset env var", "${UNSET_VAR}", ""},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.input); got != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandHome("~/chat.db"); got != filepath.Join(home, "chat.db") {
		t.Errorf("ExpandHome(~/chat.db) = %q", got)
	}
	if got := ExpandHome("/var/lib/chat.db"); got != "/var/lib/chat.db" {
		t.Errorf("ExpandHome(absolute) = %q", got)
	}
	if got := ExpandHome("~other/chat.db"); got != "~other/chat.db" {
		t.Errorf("ExpandHome(~other) = %q", got)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv("COVEN_CHAT_CONFIG", "/etc/coven/chat.toml")
		if got := DefaultPath(); got != "/etc/coven/chat.toml" {
			t.Errorf("DefaultPath() = %q", got)
		}
	})

	t.Run("xdg config home", func(t *testing.T) {
		t.Setenv("COVEN_CHAT_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
		if got := DefaultPath(); got != filepath.Join("/tmp/xdg", "coven", "chat.yaml") {
			t.Errorf("DefaultPath() = %q", got)
		}
	})
}
