package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Collection.RootURL = "https://digital.example.org/aerial/"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "index.html", cfg.Collection.FirstPage)
	assert.Equal(t, "index.%d.html", cfg.Collection.PageFormat)
	assert.Equal(t, "aws-waf-token", cfg.Token.CookieName)
	assert.Equal(t, "browser_cookies.json", cfg.Token.File)
	assert.Equal(t, 60, cfg.HTTP.RequestsPerMinute)
	assert.Equal(t, 7*24*time.Hour, cfg.HTTP.CacheMaxAge)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 6, cfg.Output.IDPadding)
	assert.Equal(t, 1000*time.Millisecond, cfg.Pace.ItemDelayMin)
	assert.Equal(t, 2500*time.Millisecond, cfg.Pace.ItemDelayMax)
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing root URL", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Error(t, cfg.Validate())
	})

	t.Run("relative root URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Collection.RootURL = "/aerial/"
		assert.Error(t, cfg.Validate())
	})

	t.Run("page format without placeholder", func(t *testing.T) {
		cfg := validConfig()
		cfg.Collection.PageFormat = "index.html"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad token storage", func(t *testing.T) {
		cfg := validConfig()
		cfg.Token.Storage = "carrier-pigeon"
		assert.Error(t, cfg.Validate())
	})

	t.Run("inverted pace window", func(t *testing.T) {
		cfg := validConfig()
		cfg.Pace.ItemDelayMin = 3 * time.Second
		cfg.Pace.ItemDelayMax = 1 * time.Second
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "loud"
		assert.Error(t, cfg.Validate())
	})
}

func TestCookieDomain(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "digital.example.org", cfg.CookieDomain())

	cfg.Token.CookieDomain = "example.org"
	assert.Equal(t, "example.org", cfg.CookieDomain())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LIBHARVEST_COLLECTION_URL", "https://env.example.org/maps/")
	t.Setenv("LIBHARVEST_TOKEN_COOKIE", "env-token")
	t.Setenv("LIBHARVEST_REQUESTS_PER_MINUTE", "30")
	t.Setenv("LIBHARVEST_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://env.example.org/maps/", cfg.Collection.RootURL)
	assert.Equal(t, "env-token", cfg.Token.CookieName)
	assert.Equal(t, 30, cfg.HTTP.RequestsPerMinute)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := validConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"output":              "/data/harvest",
		"requests-per-minute": 15,
		"metrics-addr":        ":9191",
		"no-cache":            true,
	})

	assert.Equal(t, "/data/harvest", cfg.Output.BaseDirectory)
	assert.Equal(t, 15, cfg.HTTP.RequestsPerMinute)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9191", cfg.Metrics.ListenAddr)
	assert.False(t, cfg.HTTP.CacheEnabled)
}

func TestSaveAndLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := validConfig()
	cfg.Output.BaseDirectory = "/data/harvest"
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg.Collection.RootURL, loaded.Collection.RootURL)
	assert.Equal(t, "/data/harvest", loaded.Output.BaseDirectory)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	fileCfg := validConfig()
	fileCfg.HTTP.RequestsPerMinute = 45
	require.NoError(t, fileCfg.Save(path))

	t.Setenv("LIBHARVEST_REQUESTS_PER_MINUTE", "20")

	// Flags beat environment beats file.
	cfg, err := Load(path, map[string]interface{}{"requests-per-minute": 10})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.HTTP.RequestsPerMinute)

	cfg, err = Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.HTTP.RequestsPerMinute)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadValidationFailure(t *testing.T) {
	// No root URL anywhere.
	t.Setenv("LIBHARVEST_COLLECTION_URL", "")
	_, err := Load("", nil)
	assert.Error(t, err)
}
