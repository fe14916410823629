package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken      string // server-wide fallback credential, optional
	GitHubAPIURL     string
	GitHubGraphQLURL string
	ProviderTimeout  time.Duration

	// Storage
	StorageType   string // "sqlite", "postgres", "redis" or "memory"
	SQLitePath    string
	PostgresURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Cache policy
	PastYearTTL    time.Duration
	CurrentYearTTL time.Duration

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		GitHubToken:      getEnv("GITHUB_TOKEN", ""),
		GitHubAPIURL:     getEnv("GITHUB_API_URL", "https://api.github.com/"),
		GitHubGraphQLURL: getEnv("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql"),
		StorageType:      strings.ToLower(getEnv("STORAGE_TYPE", "sqlite")),
		SQLitePath:       getEnv("SQLITE_PATH", "./yearbook.db"),
		PostgresURL:      getEnv("POSTGRES_URL", ""),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		APIPort:          getEnv("API_PORT", "8080"),
		APIHost:          getEnv("API_HOST", "localhost"),
		APIEndpoint:      getEnv("API_ENDPOINT", "http://localhost:8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.ProviderTimeout, err = getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.PastYearTTL, err = getEnvDuration("PAST_YEAR_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CurrentYearTTL, err = getEnvDuration("CURRENT_YEAR_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be a duration such as 24h or 30s"}
	}
	return d, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.StorageType {
	case "sqlite", "postgres", "redis", "memory":
	default:
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite', 'postgres', 'redis' or 'memory'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	if c.StorageType == "redis" && c.RedisAddr == "" {
		return &ConfigError{Field: "REDIS_ADDR", Message: "Redis address is required when STORAGE_TYPE is 'redis'"}
	}
	if c.PastYearTTL <= 0 || c.CurrentYearTTL <= 0 {
		return &ConfigError{Field: "PAST_YEAR_TTL/CURRENT_YEAR_TTL", Message: "must be positive"}
	}
	if c.ProviderTimeout <= 0 {
		return &ConfigError{Field: "PROVIDER_TIMEOUT", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
