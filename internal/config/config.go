package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the PromptLab binaries. The server and
// the worker load the same config; each reads the sections it needs.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	Dedup     DedupConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port int
	Env  string
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

// LLMConfig configures the generation backends. A backend is considered
// configured when its API key is set; selecting an unconfigured provider
// is a request-time error, not a startup error.
type LLMConfig struct {
	GenerateTimeout time.Duration
	MaxTokens       int
	OpenAI          OpenAIConfig
	Anthropic       AnthropicConfig
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
}

type DedupConfig struct {
	CacheTTL time.Duration
}

type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	MaxAttempts  int
	Backoff      []time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	backoff, err := parseBackoff(envString("WORKER_BACKOFF", "1s,3s,10s"))
	if err != nil {
		return nil, fmt.Errorf("WORKER_BACKOFF: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PROMPTLAB_PORT", 4000),
			Env:  envString("PROMPTLAB_ENV", "development"),
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
		LLM: LLMConfig{
			GenerateTimeout: envDuration("LLM_GENERATE_TIMEOUT", 30*time.Second),
			MaxTokens:       envInt("LLM_MAX_TOKENS", 4096),
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
			},
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   envInt("RATELIMIT_MAX_REQUESTS", 100),
			WindowSeconds: envInt("RATELIMIT_WINDOW_SECS", 60),
		},
		Dedup: DedupConfig{
			CacheTTL: envDuration("DEDUP_CACHE_TTL", time.Hour),
		},
		Worker: WorkerConfig{
			PollInterval: envDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			BatchSize:    envInt("WORKER_BATCH_SIZE", 10),
			Concurrency:  envInt("WORKER_CONCURRENCY", 4),
			MaxAttempts:  envInt("WORKER_MAX_ATTEMPTS", 3),
			Backoff:      backoff,
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

	if c.LLM.OpenAI.APIKey == "" && c.LLM.Anthropic.APIKey == "" {
		return fmt.Errorf("at least one of OPENAI_API_KEY or ANTHROPIC_API_KEY is required")
	}
	if !strings.HasPrefix(c.LLM.OpenAI.BaseURL, "http://") && !strings.HasPrefix(c.LLM.OpenAI.BaseURL, "https://") {
		return fmt.Errorf("OPENAI_BASE_URL must start with http:// or https://, got %q", c.LLM.OpenAI.BaseURL)
	}

	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("RATELIMIT_MAX_REQUESTS must be positive, got %d", c.RateLimit.MaxRequests)
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("RATELIMIT_WINDOW_SECS must be positive, got %d", c.RateLimit.WindowSeconds)
	}

	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("WORKER_MAX_ATTEMPTS must be positive, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("WORKER_BATCH_SIZE must be positive, got %d", c.Worker.BatchSize)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	if len(c.Worker.Backoff) == 0 {
		return fmt.Errorf("WORKER_BACKOFF must contain at least one delay")
	}

	return nil
}

// parseBackoff parses a comma-separated list of durations, e.g. "1s,3s,10s".
func parseBackoff(s string) ([]time.Duration, error) {
	parts := strings.Split(s, ",")
	delays := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, fmt.Errorf("invalid delay %q: %w", p, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("delay %q must not be negative", p)
		}
		delays = append(delays, d)
	}
	return delays, nil
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
