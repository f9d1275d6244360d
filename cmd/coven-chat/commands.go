// ABOUTME: Operator subcommands: init, user add and token
// ABOUTME: Seeds users and issues JWTs against the configured store and secret

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/store"
)

// defaultTokenTTL is used by the token command when --ttl is not given.
const defaultTokenTTL = 24 * time.Hour

// maxNameLength bounds display names accepted by user add.
const maxNameLength = 100

// openStore opens the configured SQLite store for an operator command.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path,
		store.WithDriver(cfg.Database.Driver),
		store.WithDimensions(cfg.Embedding.Dimensions),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

// userAddArgs are the parsed flags of "user add".
type userAddArgs struct {
	ID   string
	Name string
}

func parseUserAddArgs(args []string) (userAddArgs, error) {
	var out userAddArgs
	flagSet := pflag.NewFlagSet("user add", pflag.ContinueOnError)
	flagSet.StringVarP(&out.Name, "name", "n", "", "display name (required)")
	flagSet.StringVar(&out.ID, "id", "", "user id (default: random UUID)")
	if err := flagSet.Parse(args); err != nil {
		return out, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return out, fmt.Errorf("unexpected argument: %s", extra[0])
	}

	out.Name = strings.TrimSpace(out.Name)
	out.ID = strings.TrimSpace(out.ID)
	switch {
	case out.Name == "":
		return out, errors.New("--name flag is required")
	case len(out.Name) > maxNameLength:
		return out, fmt.Errorf("display name exceeds maximum length of %d characters", maxNameLength)
	}
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	return out, nil
}

func runUser(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "add" {
		return errors.New("usage: coven-chat user add --name NAME [--id ID]")
	}
	parsed, err := parseUserAddArgs(args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.CreateUser(ctx, &store.User{ID: parsed.ID, Name: parsed.Name}); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return fmt.Errorf("user %s already exists", parsed.ID)
		}
		return fmt.Errorf("creating user: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created user: %s\n", parsed.Name)
	fmt.Printf("  ID: %s\n", parsed.ID)
	return nil
}

// tokenArgs are the parsed flags of "token".
type tokenArgs struct {
	UserID string
	TTL    time.Duration
}

func parseTokenArgs(args []string) (tokenArgs, error) {
	var out tokenArgs
	flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
	flagSet.StringVarP(&out.UserID, "user", "u", "", "user id (required)")
	flagSet.DurationVar(&out.TTL, "ttl", defaultTokenTTL, "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		return out, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return out, fmt.Errorf("unexpected argument: %s", extra[0])
	}

	out.UserID = strings.TrimSpace(out.UserID)
	switch {
	case out.UserID == "":
		return out, errors.New("--user flag is required")
	case out.TTL <= 0:
		return out, errors.New("--ttl must be positive")
	}
	return out, nil
}

func runToken(ctx context.Context, args []string) error {
	parsed, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.GetUser(ctx, parsed.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("user %s not found (create it with: coven-chat user add --id %s --name NAME)", parsed.UserID, parsed.UserID)
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(parsed.UserID, parsed.TTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	// Token alone on stdout so it can be captured by scripts
	fmt.Println(token)
	return nil
}

// generateSecret returns a random base64 JWT secret.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// initAnswers holds the values collected by runInit.
type initAnswers struct {
	HTTPAddr          string
	DBPath            string
	JWTSecret         string
	EmbeddingProvider string
	AllowedOrigin     string
	TailscaleEnabled  bool
	TailscaleHostname string
	TailscaleAuthKey  string
	LogLevel          string
	LogFormat         string
}

// renderConfig produces the YAML written by runInit.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# coven-chat configuration\n")
	cfg.WriteString("# Generated by coven-chat init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n\n", a.HTTPAddr))

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.TailscaleEnabled))
	if a.TailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", a.TailscaleHostname))
		if a.TailscaleAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", a.TailscaleAuthKey))
		}
		cfg.WriteString("  https: true\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n\n", a.DBPath))

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n\n", a.JWTSecret))

	cfg.WriteString("embedding:\n")
	cfg.WriteString(fmt.Sprintf("  provider: %q\n", a.EmbeddingProvider))
	if a.EmbeddingProvider == config.ProviderHuggingFace {
		cfg.WriteString("  api_token: \"${HF_TOKEN}\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("realtime:\n")
	cfg.WriteString(fmt.Sprintf("  allowed_origins: [%q]\n\n", a.AllowedOrigin))

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))
	return cfg.String()
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("coven-chat configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	var a initAnswers
	a.JWTSecret = secret

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", "localhost:3001")
	a.AllowedOrigin = prompt(reader, "Allowed websocket origin", "http://localhost:3000")

	fmt.Println("\n--- Database Configuration ---")
	a.DBPath = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "chat.db"))

	fmt.Println("\n--- Embedding Configuration ---")
	a.EmbeddingProvider = prompt(reader, "Embedding provider (huggingface/hashing/none)", config.ProviderHuggingFace)

	fmt.Println("\n--- Tailscale Configuration ---")
	a.TailscaleEnabled = isYes(prompt(reader, "Enable Tailscale?", "no"))
	if a.TailscaleEnabled {
		a.TailscaleHostname = prompt(reader, "Tailscale hostname", "coven-chat")
		a.TailscaleAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(config.ExpandHome(a.DBPath))
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  coven-chat user add --name \"Your Name\"")
	fmt.Println("  coven-chat serve")
	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
