package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the shelfscan server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Vision   VisionConfig
	Analysis AnalysisConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// VisionConfig configures the external vision-language model call.
type VisionConfig struct {
	Provider       string
	AttemptTimeout time.Duration
	RetryCount     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	MaxImageBytes  int64
	Anthropic      AnthropicConfig
}

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// AnalysisConfig bounds the client-facing polling loop. PollTimeout is the
// overall budget for one analyze call and is independent of the per-attempt
// timeout the retry loop uses against the model.
type AnalysisConfig struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	CacheTTL     time.Duration
}

var validProviders = map[string]bool{
	"anthropic": true,
	"mock":      true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("SHELFSCAN_PORT", 8080),
			Env:               envString("SHELFSCAN_ENV", "development"),
			RequestsPerMinute: envInt("SHELFSCAN_REQUESTS_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Vision: VisionConfig{
			Provider:       os.Getenv("VISION_PROVIDER"),
			AttemptTimeout: envDurationSecs("VISION_ATTEMPT_TIMEOUT_SECS", 60*time.Second),
			RetryCount:     envInt("VISION_RETRY_COUNT", 3),
			BackoffBase:    envDuration("VISION_BACKOFF_BASE", 2*time.Second),
			BackoffMax:     envDuration("VISION_BACKOFF_MAX", 10*time.Second),
			MaxImageBytes:  envInt64("VISION_MAX_IMAGE_BYTES", 10*1024*1024),
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-3-opus-20240229"),
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			},
		},
		Analysis: AnalysisConfig{
			PollInterval: envDuration("ANALYSIS_POLL_INTERVAL", 2*time.Second),
			PollTimeout:  envDuration("ANALYSIS_POLL_TIMEOUT", 3*time.Minute),
			CacheTTL:     envDuration("ANALYSIS_CACHE_TTL", 30*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Vision.Provider == "" {
		return fmt.Errorf("VISION_PROVIDER is required")
	}
	if !validProviders[c.Vision.Provider] {
		return fmt.Errorf("VISION_PROVIDER must be one of anthropic, mock; got %q", c.Vision.Provider)
	}

	if c.Vision.Provider == "anthropic" {
		if c.Vision.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when VISION_PROVIDER is anthropic")
		}
		if !strings.HasPrefix(c.Vision.Anthropic.BaseURL, "http://") && !strings.HasPrefix(c.Vision.Anthropic.BaseURL, "https://") {
			return fmt.Errorf("ANTHROPIC_BASE_URL must start with http:// or https://, got %q", c.Vision.Anthropic.BaseURL)
		}
	}

	if c.Vision.RetryCount < 0 {
		return fmt.Errorf("VISION_RETRY_COUNT must not be negative, got %d", c.Vision.RetryCount)
	}
	if c.Vision.MaxImageBytes <= 0 {
		return fmt.Errorf("VISION_MAX_IMAGE_BYTES must be positive, got %d", c.Vision.MaxImageBytes)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
