// Package config resolves monitorctl settings from defaults, an optional
// .env file and MONITORCTL_* environment variables. Command-line flags are
// applied on top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/habedi/monitorctl/client"
	"github.com/habedi/monitorctl/pkg/validation"
	"github.com/joho/godotenv"
)

const (
	EnvBaseURL        = "MONITORCTL_BASE_URL"
	EnvTimeout        = "MONITORCTL_TIMEOUT"
	EnvRefreshTimeout = "MONITORCTL_REFRESH_TIMEOUT"
	EnvDBPath         = "MONITORCTL_DB_PATH"
	EnvTokenBackend   = "MONITORCTL_TOKEN_BACKEND"
	EnvRedisURL       = "MONITORCTL_REDIS_URL"
	EnvRedisKey       = "MONITORCTL_REDIS_KEY"
	EnvReplayOrder    = "MONITORCTL_REPLAY_ORDER"
	EnvRetries        = "MONITORCTL_RETRIES"

	DefaultBaseURL      = "http://localhost:8080/api"
	DefaultTokenBackend = "sqlite"
	DefaultRedisURL     = "redis://localhost:6379/0"
	DefaultRedisKey     = "monitorctl:token"
)

// Config holds the resolved settings.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RefreshTimeout time.Duration
	DBPath         string
	TokenBackend   string
	RedisURL       string
	RedisKey       string
	ReplayOrder    client.ReplayOrder
	Retries        int
}

var ErrInvalidDuration = errors.New("invalid duration")

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Timeout:        client.DefaultTimeout,
		RefreshTimeout: client.DefaultRefreshTimeout,
		DBPath:         filepath.Join(os.Getenv("HOME"), ".monitorctl", "monitorctl.db"),
		TokenBackend:   DefaultTokenBackend,
		RedisURL:       DefaultRedisURL,
		RedisKey:       DefaultRedisKey,
		ReplayOrder:    client.ReplayQueuedFirst,
		Retries:        1,
	}
}

// Load reads .env files (missing ones are ignored), then the environment, and validates the result.
// With no files given it looks for .env in the working directory.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := Default()
	var err error

	cfg.BaseURL = getEnvOrDefault(EnvBaseURL, cfg.BaseURL)
	if cfg.Timeout, err = getEnvOrDefaultDuration(EnvTimeout, cfg.Timeout); err != nil {
		return nil, err
	}
	if cfg.RefreshTimeout, err = getEnvOrDefaultDuration(EnvRefreshTimeout, cfg.RefreshTimeout); err != nil {
		return nil, err
	}
	cfg.DBPath = getEnvOrDefault(EnvDBPath, cfg.DBPath)
	cfg.TokenBackend = strings.ToLower(getEnvOrDefault(EnvTokenBackend, cfg.TokenBackend))
	cfg.RedisURL = getEnvOrDefault(EnvRedisURL, cfg.RedisURL)
	cfg.RedisKey = getEnvOrDefault(EnvRedisKey, cfg.RedisKey)
	if cfg.ReplayOrder, err = client.ParseReplayOrder(os.Getenv(EnvReplayOrder)); err != nil {
		return nil, fmt.Errorf("%s: %w", EnvReplayOrder, err)
	}
	if cfg.Retries, err = getEnvOrDefaultInt(EnvRetries, cfg.Retries); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if err := validation.ValidateBaseURL(c.BaseURL); err != nil {
		return err
	}
	if err := validation.ValidateTimeout("timeout", c.Timeout); err != nil {
		return err
	}
	if err := validation.ValidateTimeout("refresh timeout", c.RefreshTimeout); err != nil {
		return err
	}
	if err := validation.ValidateTokenBackend(c.TokenBackend); err != nil {
		return err
	}
	if c.TokenBackend == "sqlite" {
		if err := validation.ValidateNonEmptyString("database path", c.DBPath); err != nil {
			return err
		}
	}
	if c.TokenBackend == "redis" {
		if err := validation.ValidateNonEmptyString("redis URL", c.RedisURL); err != nil {
			return err
		}
	}
	if c.Retries < 1 || c.Retries > 10 {
		return fmt.Errorf("retries must be between 1 and 10, got %d", c.Retries)
	}
	return nil
}

// ClientOptions translates the settings into client options.
func (c *Config) ClientOptions() []client.Option {
	return []client.Option{
		client.WithTimeout(c.Timeout),
		client.WithRefreshTimeout(c.RefreshTimeout),
		client.WithReplayOrder(c.ReplayOrder),
		client.WithRetry(c.Retries, time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w for %s: %q", ErrInvalidDuration, key, value)
	}
	return d, nil
}

func getEnvOrDefaultInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q", key, value)
	}
	return n, nil
}
