// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables (NEBULA_* overrides)
//  2. Config file (~/.nebula/config.yaml)
//  3. Default values
//
// The Gemini credential is never part of the configuration file or the
// source tree: Genkit reads GEMINI_API_KEY from the environment, and
// RequireAPIKey only verifies it is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is empty or not
	// provider-qualified.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidDataDir indicates the data directory is empty.
	ErrInvalidDataDir = errors.New("invalid data directory")

	// ErrInvalidTimeout indicates the request timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid request timeout")

	// ErrInvalidRateLimit indicates the rate limit values are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

// Request timeout bounds, in seconds.
const (
	MinRequestTimeout = 1
	MaxRequestTimeout = 600
)

// Config stores application configuration.
type Config struct {
	// ModelName is the provider-qualified model for the reply pipeline,
	// e.g. "googleai/gemini-2.5-flash".
	ModelName string `mapstructure:"model_name"`

	// DataDir is the directory backing durable key-value storage.
	DataDir string `mapstructure:"data_dir"`

	// DemoLogin auto-provisions a demo session when no session exists.
	DemoLogin bool `mapstructure:"demo_login"`

	// RequestTimeoutSeconds bounds each text-generation call.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`

	// RateLimitRPS / RateBurst throttle calls to the external service.
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
	RateBurst    int     `mapstructure:"rate_burst"`
}

// RequestTimeout returns the per-call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".nebula")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("model_name", "googleai/gemini-2.5-flash")
	v.SetDefault("data_dir", filepath.Join(configDir, "data"))
	v.SetDefault("demo_login", true)
	v.SetDefault("request_timeout_seconds", 60)
	v.SetDefault("rate_limit_rps", 2.0)
	v.SetDefault("rate_burst", 5)
}

func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}
	mustBind("model_name", "NEBULA_MODEL_NAME")
	mustBind("data_dir", "NEBULA_DATA_DIR")
	mustBind("demo_login", "NEBULA_DEMO_LOGIN")

	// GEMINI_API_KEY is read directly by Genkit, not via viper.
}

// Validate checks all configuration values, fail-fast.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration is nil")
	}
	if c.ModelName == "" || !strings.Contains(c.ModelName, "/") {
		return fmt.Errorf("%w: %q (want provider-qualified, e.g. \"googleai/gemini-2.5-flash\")",
			ErrInvalidModelName, c.ModelName)
	}
	if c.DataDir == "" {
		return ErrInvalidDataDir
	}
	if c.RequestTimeoutSeconds < MinRequestTimeout || c.RequestTimeoutSeconds > MaxRequestTimeout {
		return fmt.Errorf("%w: %d seconds (want %d..%d)",
			ErrInvalidTimeout, c.RequestTimeoutSeconds, MinRequestTimeout, MaxRequestTimeout)
	}
	if c.RateLimitRPS <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("%w: rps=%v burst=%d", ErrInvalidRateLimit, c.RateLimitRPS, c.RateBurst)
	}
	return nil
}

// RequireAPIKey verifies the Gemini credential is present in the
// environment.
func RequireAPIKey() error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}
