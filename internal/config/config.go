package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dvloznov/moneychat-nlp/internal/cache/redis"
	"github.com/dvloznov/moneychat-nlp/internal/pipeline"
)

// Extraction providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// MemoryRedisURL selects the in-process cache store instead of Redis.
const MemoryRedisURL = "memory://"

const (
	DefaultPort    = "8000"
	DefaultDataset = "moneychat"
)

// Config is the service configuration.
type Config struct {
	Provider        string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	Model           string // empty means the provider's default
	MaxConcurrency  int    // 0 means unbounded
	RedisURL        string
	Port            string
	Timezone        string
	UpstreamTimeout time.Duration
	BatchPolicy     pipeline.BatchPolicy
	LogLevel        string
	LogFormat       string
	BigQueryProject string // empty disables the audit tables
	BigQueryDataset string
	GCSBucket       string // empty disables upload archiving
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Provider:        ProviderGemini,
		GeminiAPIKey:    getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:    getenv("OPENAI_API_KEY"),
		Model:           getenv("LLM_MODEL"),
		RedisURL:        redis.DefaultURL,
		Port:            DefaultPort,
		Timezone:        pipeline.DefaultTimezone,
		UpstreamTimeout: pipeline.DefaultUpstreamTimeout,
		BatchPolicy:     pipeline.SkipInvalid,
		LogLevel:        getenv("LOG_LEVEL"),
		LogFormat:       getenv("LOG_FORMAT"),
		BigQueryProject: getenv("BIGQUERY_PROJECT"),
		BigQueryDataset: DefaultDataset,
		GCSBucket:       getenv("GCS_BUCKET"),
	}

	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = getenv("GOOGLE_API_KEY")
	}
	if v := getenv("LLM_PROVIDER"); v != "" {
		cfg.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := getenv("BIGQUERY_DATASET"); v != "" {
		cfg.BigQueryDataset = v
	}

	if v := getenv("LLM_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("LLM_MAX_CONCURRENCY must be a non-negative integer, got %q", v)
		}
		cfg.MaxConcurrency = n
	}

	if v := getenv("UPSTREAM_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("UPSTREAM_TIMEOUT: %w", err)
		}
		cfg.UpstreamTimeout = d
	}

	if v := getenv("BATCH_POLICY"); v != "" {
		p, err := pipeline.ParseBatchPolicy(v)
		if err != nil {
			return nil, fmt.Errorf("BATCH_POLICY: %w", err)
		}
		cfg.BatchPolicy = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected provider has credentials.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY (or GOOGLE_API_KEY) is required for provider %q", c.Provider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (want %s or %s)", c.Provider, ProviderGemini, ProviderOpenAI)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// UseMemoryCache reports whether the in-process cache store is selected.
func (c *Config) UseMemoryCache() bool {
	return strings.HasPrefix(c.RedisURL, MemoryRedisURL)
}

// parseDuration accepts Go durations ("90s") and bare seconds ("60").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %q", v)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", v)
	}
	return d, nil
}
