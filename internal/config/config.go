// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis. Optional: when empty, the result cache runs in-process.
	RedisURL string `koanf:"redis_url"`

	// Search pipeline
	CacheTTLMinutes        int `koanf:"cache_ttl_minutes"`
	SearchTimeoutSeconds   int `koanf:"search_timeout_seconds"`
	RequestDeadlineSeconds int `koanf:"request_deadline_seconds"`
	TrendingWindowHours    int `koanf:"trending_window_hours"`

	// Rate limiting
	SearchRateLimitPerMinute int `koanf:"search_rate_limit_per_minute"`

	// Feed composition
	FeedInterleave bool `koanf:"feed_interleave"`

	// Ranking weight calibration file. Optional: defaults apply when empty.
	RankingConfigPath string `koanf:"ranking_config_path"`

	// CORS. Empty list disables cross-origin requests.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// OpenTelemetry
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPProtocol string `koanf:"otlp_protocol"` // "http" or "grpc"
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
	ErrInvalidCacheTTL    = errors.New("CACHE_TTL_MINUTES must be positive")
	ErrInvalidTimeout     = errors.New("SEARCH_TIMEOUT_SECONDS must be positive")
	ErrInvalidDeadline    = errors.New("REQUEST_DEADLINE_SECONDS must be positive")
	ErrInvalidWindow      = errors.New("TRENDING_WINDOW_HOURS must be positive")
	ErrInvalidRateLimit   = errors.New("SEARCH_RATE_LIMIT_PER_MINUTE must be positive")
	ErrInvalidProtocol    = errors.New("OTLP_PROTOCOL must be \"http\" or \"grpc\"")
)

// Default values for non-secret configuration.
const (
	DefaultPort                     = 8080
	DefaultEnv                      = "development"
	DefaultCacheTTLMinutes          = 60
	DefaultSearchTimeoutSeconds     = 3
	DefaultRequestDeadlineSeconds   = 10
	DefaultTrendingWindowHours      = 24
	DefaultSearchRateLimitPerMinute = 60
	DefaultOTLPProtocol             = "http"
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try EVENTIDE_PORT first, then PORT for container conventions
	port, portErr := getEnvIntOrDefaultMulti([]string{"EVENTIDE_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	cacheTTL, err := getEnvIntOrDefault("CACHE_TTL_MINUTES", k.Int("cache_ttl_minutes"), DefaultCacheTTLMinutes)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	searchTimeout, err := getEnvIntOrDefault("SEARCH_TIMEOUT_SECONDS", k.Int("search_timeout_seconds"), DefaultSearchTimeoutSeconds)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	requestDeadline, err := getEnvIntOrDefault("REQUEST_DEADLINE_SECONDS", k.Int("request_deadline_seconds"), DefaultRequestDeadlineSeconds)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	trendingWindow, err := getEnvIntOrDefault("TRENDING_WINDOW_HOURS", k.Int("trending_window_hours"), DefaultTrendingWindowHours)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	rateLimit, err := getEnvIntOrDefault("SEARCH_RATE_LIMIT_PER_MINUTE", k.Int("search_rate_limit_per_minute"), DefaultSearchRateLimitPerMinute)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	feedInterleave := false
	if k.Exists("feed_interleave") {
		feedInterleave = k.Bool("feed_interleave")
	}
	if val := os.Getenv("FEED_INTERLEAVE"); val != "" {
		// Env var takes precedence over file config
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			feedInterleave = true
		case "false", "0", "no", "off":
			feedInterleave = false
		}
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                     port,
		Env:                      getEnvOrDefaultMulti([]string{"EVENTIDE_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:              getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                 getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		CacheTTLMinutes:          cacheTTL,
		SearchTimeoutSeconds:     searchTimeout,
		RequestDeadlineSeconds:   requestDeadline,
		TrendingWindowHours:      trendingWindow,
		SearchRateLimitPerMinute: rateLimit,
		FeedInterleave:           feedInterleave,
		RankingConfigPath:        getEnvOrKoanf("RANKING_CONFIG_PATH", k, "ranking_config_path"),
		CORSAllowedOrigins:       corsOrigins(k.Strings("cors_allowed_origins")),
		OTLPEndpoint:             getEnvOrKoanf("OTEL_EXPORTER_OTLP_ENDPOINT", k, "otlp_endpoint"),
		OTLPProtocol:             getEnvOrDefault("OTEL_EXPORTER_OTLP_PROTOCOL", k.String("otlp_protocol"), DefaultOTLPProtocol),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// CacheTTL returns the result cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// SearchTimeout returns the per-branch fetch timeout.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}

// RequestDeadline returns the outer request deadline.
func (c *Config) RequestDeadline() time.Duration {
	return time.Duration(c.RequestDeadlineSeconds) * time.Second
}

// TrendingWindow returns the rolling trending window.
func (c *Config) TrendingWindow() time.Duration {
	return time.Duration(c.TrendingWindowHours) * time.Hour
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
// corsOrigins resolves the allowed CORS origins: the CORS_ALLOWED_ORIGINS
// env var (comma-separated) takes precedence over the file value.
func corsOrigins(fileVal []string) []string {
	if env := os.Getenv("CORS_ALLOWED_ORIGINS"); env != "" {
		var origins []string
		for _, o := range strings.Split(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return origins
	}
	return fileVal
}

func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// Note: a zero value from a YAML file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer", envKey)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present and
// numeric values are sane. Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.CacheTTLMinutes <= 0 {
		errs = append(errs, ErrInvalidCacheTTL)
	}
	if c.SearchTimeoutSeconds <= 0 {
		errs = append(errs, ErrInvalidTimeout)
	}
	if c.RequestDeadlineSeconds <= 0 {
		errs = append(errs, ErrInvalidDeadline)
	}
	if c.TrendingWindowHours <= 0 {
		errs = append(errs, ErrInvalidWindow)
	}
	if c.SearchRateLimitPerMinute <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if c.OTLPProtocol != "http" && c.OTLPProtocol != "grpc" {
		errs = append(errs, ErrInvalidProtocol)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                         fmt.Sprintf("%d", c.Port),
		"env":                          c.Env,
		"database_url":                 maskDatabaseURL(c.DatabaseURL),
		"redis_url":                    maskDatabaseURL(c.RedisURL),
		"cache_ttl_minutes":            fmt.Sprintf("%d", c.CacheTTLMinutes),
		"search_timeout_seconds":       fmt.Sprintf("%d", c.SearchTimeoutSeconds),
		"request_deadline_seconds":     fmt.Sprintf("%d", c.RequestDeadlineSeconds),
		"trending_window_hours":        fmt.Sprintf("%d", c.TrendingWindowHours),
		"search_rate_limit_per_minute": fmt.Sprintf("%d", c.SearchRateLimitPerMinute),
		"feed_interleave":              fmt.Sprintf("%t", c.FeedInterleave),
		"ranking_config_path":          c.RankingConfigPath,
		"otlp_endpoint":                c.OTLPEndpoint,
		"otlp_protocol":                c.OTLPProtocol,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres://, postgresql://, and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
