// Package config loads the server configuration from a JSON or YAML file,
// environment overrides and 1Password secret references.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the file and the environment are read.
const (
	DefaultServerPort           = 3000
	DefaultRateLimitWindowMS    = 60000
	DefaultRateLimitMaxRequests = 100
	DefaultMaxConcurrency       = 8
	DefaultMaxBatchSize         = 1000
)

// Candidate file names looked up when the config path is a directory.
var fileNames = []string{"config.json", "config.yaml", "config.yml"}

// Format selects the decoder for a config document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// Config is the server configuration. Keys match the upper-case names used
// in config files and environment variables.
type Config struct {
	ServerPort  int    `json:"SERVER_PORT" yaml:"SERVER_PORT" env:"SERVER_PORT"`
	TLSCertPath string `json:"TLS_CERT_PATH" yaml:"TLS_CERT_PATH" env:"TLS_CERT_PATH"`
	TLSKeyPath  string `json:"TLS_KEY_PATH" yaml:"TLS_KEY_PATH" env:"TLS_KEY_PATH"`

	BackendAPIBase     string `json:"BACKEND_API_BASE" yaml:"BACKEND_API_BASE" env:"BACKEND_API_BASE"`
	BackendUserAgent   string `json:"BACKEND_USER_AGENT" yaml:"BACKEND_USER_AGENT" env:"BACKEND_USER_AGENT"`
	BackendAccessToken string `json:"BACKEND_ACCESS_TOKEN" yaml:"BACKEND_ACCESS_TOKEN" env:"BACKEND_ACCESS_TOKEN"`

	RateLimitWindowMS    int `json:"RATE_LIMIT_WINDOW_MS" yaml:"RATE_LIMIT_WINDOW_MS" env:"RATE_LIMIT_WINDOW_MS"`
	RateLimitMaxRequests int `json:"RATE_LIMIT_MAX_REQUESTS" yaml:"RATE_LIMIT_MAX_REQUESTS" env:"RATE_LIMIT_MAX_REQUESTS"`

	// CORSOrigins is a comma separated list of allowed origins; "*" allows any.
	CORSOrigins string `json:"MCP_SERVER_CORS_ORIGINS" yaml:"MCP_SERVER_CORS_ORIGINS" env:"MCP_SERVER_CORS_ORIGINS"`

	MaxConcurrency int `json:"MAX_CONCURRENCY" yaml:"MAX_CONCURRENCY" env:"MAX_CONCURRENCY"`
	// MaxBatchSize caps how many items one batch tool call may touch.
	MaxBatchSize int `json:"MAX_BATCH_SIZE" yaml:"MAX_BATCH_SIZE" env:"MAX_BATCH_SIZE"`

	// TLSKeyPassphrase is accepted for compatibility but not supported.
	TLSKeyPassphrase string `json:"TLS_KEY_PASSPHRASE" yaml:"TLS_KEY_PASSPHRASE" env:"TLS_KEY_PASSPHRASE"`
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	return &Config{
		ServerPort:           DefaultServerPort,
		RateLimitWindowMS:    DefaultRateLimitWindowMS,
		RateLimitMaxRequests: DefaultRateLimitMaxRequests,
		MaxConcurrency:       DefaultMaxConcurrency,
		MaxBatchSize:         DefaultMaxBatchSize,
	}
}

// LoadFile loads configuration from path, overlays the environment,
// resolves secret references and validates the result. path may name a
// file or a directory holding config.json, config.yaml or config.yml. An
// empty path reads the environment only.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		file, err := findFile(path)
		if err != nil {
			return nil, err
		}

		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("error opening config file: %w", err)
		}
		defer f.Close()

		cfg, err = Load(f, formatFor(file))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(ctx); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load decodes a config document on top of the defaults
func Load(r io.Reader, format Format) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading config data: %w", err)
	}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config JSON: %w", err)
		}
	}

	return cfg, nil
}

// ApplyEnv overrides fields whose environment variable is set
func (c *Config) ApplyEnv() error {
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("error reading environment: %w", err)
	}
	return nil
}

// ResolveSecrets replaces 1Password references in secret fields with
// their values.
func (c *Config) ResolveSecrets(ctx context.Context) error {
	token, _, err := ResolveSecretReference(ctx, c.BackendAccessToken)
	if err != nil {
		return fmt.Errorf("BACKEND_ACCESS_TOKEN: %w", err)
	}
	c.BackendAccessToken = token
	return nil
}

// Validate reports the first configuration problem found
func (c *Config) Validate() error {
	if c.BackendAPIBase == "" {
		return errors.New("BACKEND_API_BASE is required")
	}
	u, err := url.Parse(c.BackendAPIBase)
	if err != nil {
		return fmt.Errorf("BACKEND_API_BASE: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BACKEND_API_BASE must be an absolute http(s) URL, got %q", c.BackendAPIBase)
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.ServerPort)
	}
	if (c.TLSCertPath == "") != (c.TLSKeyPath == "") {
		return errors.New("TLS_CERT_PATH and TLS_KEY_PATH must be set together")
	}
	if c.RateLimitWindowMS < 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must not be negative: %d", c.RateLimitWindowMS)
	}
	if c.RateLimitMaxRequests < 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must not be negative: %d", c.RateLimitMaxRequests)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("MAX_CONCURRENCY must not be negative: %d", c.MaxConcurrency)
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must not be negative: %d", c.MaxBatchSize)
	}
	return nil
}

// TLSEnabled reports whether the server should terminate TLS
func (c *Config) TLSEnabled() bool {
	return c.TLSCertPath != "" && c.TLSKeyPath != ""
}

// RateLimitWindow returns the rate limit window as a duration
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

// AllowedOrigins splits CORSOrigins into its entries
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func findFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("config path does not exist: %s", path)
		}
		return "", fmt.Errorf("error accessing config path %s: %w", path, err)
	}
	if !info.IsDir() {
		return filepath.Clean(path), nil
	}

	for _, name := range fileNames {
		candidate := filepath.Join(path, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no config file found in %s (looked for %s)", path, strings.Join(fileNames, ", "))
}

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}
