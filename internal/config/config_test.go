package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ModelName:             "googleai/gemini-2.5-flash",
		DataDir:               "/tmp/nebula-test",
		RequestTimeoutSeconds: 60,
		RateLimitRPS:          2.0,
		RateBurst:             5,
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("nil config", func(t *testing.T) {
		var cfg *Config
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty model name", func(t *testing.T) {
		cfg := validConfig()
		cfg.ModelName = ""
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidModelName)
	})

	t.Run("model name without provider prefix", func(t *testing.T) {
		cfg := validConfig()
		cfg.ModelName = "gemini-2.5-flash"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidModelName)
	})

	t.Run("empty data dir", func(t *testing.T) {
		cfg := validConfig()
		cfg.DataDir = ""
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidDataDir)
	})

	t.Run("timeout out of range", func(t *testing.T) {
		cfg := validConfig()
		cfg.RequestTimeoutSeconds = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidTimeout)

		cfg.RequestTimeoutSeconds = MaxRequestTimeout + 1
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidTimeout)
	})

	t.Run("rate limit out of range", func(t *testing.T) {
		cfg := validConfig()
		cfg.RateLimitRPS = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidRateLimit)

		cfg = validConfig()
		cfg.RateBurst = -1
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidRateLimit)
	})
}

func TestConfig_RequestTimeout(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "1m0s", cfg.RequestTimeout().String())
}

func TestLoad_Defaults(t *testing.T) {
	// Keep the host environment out of the test.
	t.Setenv("NEBULA_MODEL_NAME", "")
	t.Setenv("NEBULA_DATA_DIR", "")
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "googleai/gemini-2.5-flash", cfg.ModelName)
	assert.NotEmpty(t, cfg.DataDir)
	assert.True(t, cfg.DemoLogin)
	assert.Equal(t, 60, cfg.RequestTimeoutSeconds)
	assert.InDelta(t, 2.0, cfg.RateLimitRPS, 0.001)
	assert.Equal(t, 5, cfg.RateBurst)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NEBULA_MODEL_NAME", "googleai/gemini-2.5-pro")
	t.Setenv("NEBULA_DATA_DIR", "/tmp/nebula-alt")
	t.Setenv("NEBULA_DEMO_LOGIN", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "googleai/gemini-2.5-pro", cfg.ModelName)
	assert.Equal(t, "/tmp/nebula-alt", cfg.DataDir)
	assert.False(t, cfg.DemoLogin)
}

func TestRequireAPIKey(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		assert.ErrorIs(t, RequireAPIKey(), ErrMissingAPIKey)
	})

	t.Run("present", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "test-key")
		assert.NoError(t, RequireAPIKey())
	})
}
