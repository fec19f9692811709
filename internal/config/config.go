// Package config loads process configuration from VB_-prefixed environment
// variables.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

const (
	// envPrefix is the prefix shared by all configuration variables.
	envPrefix = "VB_"

	// Defaults applied when the corresponding variable is unset.
	defaultHost        = "0.0.0.0"
	defaultPort        = 27150
	defaultObsidianURL = "http://127.0.0.1:27123"
	defaultTimeout     = 30 * time.Second
	defaultHistoryMax  = 10
	defaultHistoryPath = ".history/operations.json"

	apiKeyBytes = 32
)

// Config holds the server configuration.
type Config struct {
	Host           string        // Listen host (VB_HOST)
	Port           int           // Listen port (VB_PORT)
	ObsidianURL    string        // Base URL of the Obsidian Local REST API (VB_OBSIDIAN_URL)
	ObsidianToken  string        // Bearer token for the Obsidian API (VB_OBSIDIAN_TOKEN)
	APIKey         string        // Shared secret for incoming requests (VB_API_KEY)
	RequestTimeout time.Duration // Timeout for remote calls (VB_TIMEOUT)
	HistoryMax     int           // Ledger capacity, 0 disables history (VB_HISTORY_MAX)
	HistoryPath    string        // Ledger backing store path (VB_HISTORY_PATH)
}

// Load reads configuration from the environment and applies defaults.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		Host:           defaultHost,
		Port:           defaultPort,
		ObsidianURL:    defaultObsidianURL,
		RequestTimeout: defaultTimeout,
		HistoryMax:     defaultHistoryMax,
		HistoryPath:    defaultHistoryPath,
	}

	if v := k.String("host"); v != "" {
		cfg.Host = v
	}
	if k.Exists("port") {
		cfg.Port = k.Int("port")
	}
	if v := strings.TrimSuffix(k.String("obsidian_url"), "/"); v != "" {
		cfg.ObsidianURL = v
	}
	cfg.ObsidianToken = k.String("obsidian_token")
	cfg.APIKey = k.String("api_key")
	if k.Exists("timeout") {
		d, err := time.ParseDuration(k.String("timeout"))
		if err != nil {
			return nil, fmt.Errorf("parse VB_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if k.Exists("history_max") {
		cfg.HistoryMax = k.Int("history_max")
	}
	if cfg.HistoryMax < 0 {
		return nil, fmt.Errorf("VB_HISTORY_MAX must not be negative, got %d", cfg.HistoryMax)
	}
	if v := k.String("history_path"); v != "" {
		cfg.HistoryPath = v
	}

	return cfg, nil
}

// GenerateAPIKey returns a cryptographically random URL-safe key.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
