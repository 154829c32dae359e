package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// We use a struct (not globals) so it's testable and explicit.
type Config struct {
	// Server
	ServerAddr string
	Env        string // "development" or "production"

	// CORS
	AllowedOrigins []string

	// Rate limiting (per remote IP, requests per minute; 0 disables)
	RateLimitPerMin int

	// Event stream
	RedisURL   string // e.g., "redis://localhost:6379"
	PubSubType string // "memory" or "redis"
}

const defaultPort = "8083"

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment
// variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := getEnvOrDefault("PORT", defaultPort)

	cfg := &Config{
		ServerAddr:      "0.0.0.0:" + port,
		Env:             getEnvOrDefault("APP_ENV", "development"),
		AllowedOrigins:  splitEnv("ALLOWED_ORIGINS", "*"),
		RateLimitPerMin: 0,
		RedisURL:        os.Getenv("REDIS_URL"),
		PubSubType:      getEnvOrDefault("PUBSUB_TYPE", "memory"),
	}

	if v := os.Getenv("RATE_LIMIT_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MIN: %q", v)
		}
		cfg.RateLimitPerMin = n
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if _, _, ok := strings.Cut(c.ServerAddr, ":"); !ok {
		return fmt.Errorf("invalid server address %q", c.ServerAddr)
	}
	if c.PubSubType != "memory" && c.PubSubType != "redis" {
		return fmt.Errorf("PUBSUB_TYPE must be \"memory\" or \"redis\", got %q", c.PubSubType)
	}
	if c.PubSubType == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when PUBSUB_TYPE=redis")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// splitEnv splits a comma-separated env var into a slice
func splitEnv(key, defaultVal string) []string {
	val := os.Getenv(key)
	if val == "" {
		val = defaultVal
	}
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
