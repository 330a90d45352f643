package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the collection harvester.
type Config struct {
	// Collection describes the target collection layout
	Collection CollectionConfig `yaml:"collection" json:"collection"`

	// HTTP session settings
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Token holds bot-protection token settings
	Token TokenConfig `yaml:"token" json:"token"`

	// Retry configuration for transient faults
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Pace bounds the request rate with randomized delays
	Pace PaceConfig `yaml:"pace" json:"pace"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Metrics exposition settings
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// CollectionConfig holds the target collection's URL layout.
type CollectionConfig struct {
	// RootURL is the collection index root, with trailing slash.
	RootURL string `yaml:"root_url" json:"root_url"`
	// FirstPage is the first index page, relative to RootURL.
	FirstPage string `yaml:"first_page" json:"first_page"`
	// PageFormat is the fmt pattern for index page N (N >= 2).
	PageFormat string `yaml:"page_format" json:"page_format"`
}

// HTTPConfig holds HTTP session configuration.
type HTTPConfig struct {
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	BrowserUserAgent  string        `yaml:"browser_user_agent" json:"browser_user_agent"`
	PageTimeout       time.Duration `yaml:"page_timeout" json:"page_timeout"`
	DownloadTimeout   time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	CacheEnabled      bool          `yaml:"cache_enabled" json:"cache_enabled"`
	CacheDir          string        `yaml:"cache_dir" json:"cache_dir"`
	CacheEntries      int           `yaml:"cache_entries" json:"cache_entries"`
	// CacheMaxAge bounds how long a cached page is served before it is
	// refetched. Zero or negative disables expiry.
	CacheMaxAge time.Duration `yaml:"cache_max_age" json:"cache_max_age"`
}

// TokenConfig holds bot-protection token settings.
type TokenConfig struct {
	// CookieName is the bot-protection cookie, e.g. aws-waf-token.
	CookieName string `yaml:"cookie_name" json:"cookie_name"`
	// CookieDomain scopes the cookie; derived from RootURL when empty.
	CookieDomain string `yaml:"cookie_domain" json:"cookie_domain"`
	// File is the persisted token record path.
	File string `yaml:"file" json:"file"`
	// Storage selects the file store format: "plain" or "encrypted".
	Storage string `yaml:"storage" json:"storage"`
	// UseKeyring mirrors the token into the system keychain when available.
	UseKeyring bool `yaml:"use_keyring" json:"use_keyring"`
}

// RetryConfig holds automatic retry configuration for transient faults.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
}

// PaceConfig holds the randomized politeness delays.
type PaceConfig struct {
	ItemDelayMin time.Duration `yaml:"item_delay_min" json:"item_delay_min"`
	ItemDelayMax time.Duration `yaml:"item_delay_max" json:"item_delay_max"`
	PageDelayMin time.Duration `yaml:"page_delay_min" json:"page_delay_min"`
	PageDelayMax time.Duration `yaml:"page_delay_max" json:"page_delay_max"`
}

// OutputConfig holds the output directory layout.
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	ItemsSubdir   string `yaml:"items_subdir" json:"items_subdir"`
	IDPadding     int    `yaml:"id_padding" json:"id_padding"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Collection: CollectionConfig{
			FirstPage:  "index.html",
			PageFormat: "index.%d.html",
		},
		HTTP: HTTPConfig{
			UserAgent: "libharvest/1.0 (+metadata harvester)",
			BrowserUserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
				"AppleWebKit/537.36 (KHTML, like Gecko) " +
				"Chrome/122.0.0.0 Safari/537.36",
			PageTimeout:       60 * time.Second,
			DownloadTimeout:   5 * time.Minute,
			RequestsPerMinute: 60,
			CacheEnabled:      true,
			CacheDir:          "",
			CacheEntries:      4096,
			CacheMaxAge:       7 * 24 * time.Hour,
		},
		Token: TokenConfig{
			CookieName: "aws-waf-token",
			File:       "browser_cookies.json",
			Storage:    "plain",
			UseKeyring: false,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   1500 * time.Millisecond,
			MaxDelay:    60 * time.Second,
			Multiplier:  2.0,
		},
		Pace: PaceConfig{
			ItemDelayMin: 1000 * time.Millisecond,
			ItemDelayMax: 2500 * time.Millisecond,
			PageDelayMin: 500 * time.Millisecond,
			PageDelayMax: 1000 * time.Millisecond,
		},
		Output: OutputConfig{
			BaseDirectory: "./output",
			ItemsSubdir:   "items",
			IDPadding:     6,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9090",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if root := os.Getenv("LIBHARVEST_COLLECTION_URL"); root != "" {
		c.Collection.RootURL = root
	}
	if ua := os.Getenv("LIBHARVEST_USER_AGENT"); ua != "" {
		c.HTTP.UserAgent = ua
	}
	if ua := os.Getenv("LIBHARVEST_BROWSER_USER_AGENT"); ua != "" {
		c.HTTP.BrowserUserAgent = ua
	}
	if rpm := os.Getenv("LIBHARVEST_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.HTTP.RequestsPerMinute = val
		}
	}
	if name := os.Getenv("LIBHARVEST_TOKEN_COOKIE"); name != "" {
		c.Token.CookieName = name
	}
	if file := os.Getenv("LIBHARVEST_TOKEN_FILE"); file != "" {
		c.Token.File = file
	}
	if outputDir := os.Getenv("LIBHARVEST_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if cacheDir := os.Getenv("LIBHARVEST_CACHE_DIR"); cacheDir != "" {
		c.HTTP.CacheDir = cacheDir
	}
	if logLevel := os.Getenv("LIBHARVEST_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for a config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".libharvest.yaml",
		".libharvest.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "libharvest", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "libharvest", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".libharvest.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// CookieDomain returns the configured cookie domain, falling back to the
// collection host.
func (c *Config) CookieDomain() string {
	if c.Token.CookieDomain != "" {
		return c.Token.CookieDomain
	}
	u, err := url.Parse(c.Collection.RootURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Collection.RootURL == "" {
		errs = append(errs, errors.New("collection root URL is required"))
	} else {
		u, err := url.Parse(c.Collection.RootURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, errors.New("collection root URL must be absolute http(s)"))
		}
	}
	if c.Collection.FirstPage == "" {
		errs = append(errs, errors.New("collection first page is required"))
	}
	if !strings.Contains(c.Collection.PageFormat, "%d") {
		errs = append(errs, errors.New("collection page format must contain %d"))
	}

	if c.Token.CookieName == "" {
		errs = append(errs, errors.New("token cookie name is required"))
	}
	switch strings.ToLower(c.Token.Storage) {
	case "plain", "encrypted":
	default:
		errs = append(errs, errors.New("token storage must be plain or encrypted"))
	}

	if c.HTTP.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	if c.Pace.ItemDelayMax < c.Pace.ItemDelayMin || c.Pace.PageDelayMax < c.Pace.PageDelayMin {
		errs = append(errs, errors.New("pace delay ceilings must not be below their floors"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.IDPadding < 1 {
		errs = append(errs, errors.New("id padding must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if root, ok := flags["collection-url"].(string); ok && root != "" {
		c.Collection.RootURL = root
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if tokenFile, ok := flags["token-file"].(string); ok && tokenFile != "" {
		c.Token.File = tokenFile
	}
	if rpm, ok := flags["requests-per-minute"].(int); ok && rpm > 0 {
		c.HTTP.RequestsPerMinute = rpm
	}
	if maxAttempts, ok := flags["max-retries"].(int); ok && maxAttempts > 0 {
		c.Retry.MaxAttempts = maxAttempts
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.Enabled = true
		c.Metrics.ListenAddr = addr
	}
	if noCache, ok := flags["no-cache"].(bool); ok && noCache {
		c.HTTP.CacheEnabled = false
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env file >
// config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".libharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
