// Package bootstrap wires configuration into the storage, provider and
// aggregator used by both binaries.
package bootstrap

import (
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kurihiro0119/github-yearbook/internal/aggregator"
	"github.com/kurihiro0119/github-yearbook/internal/collector"
	"github.com/kurihiro0119/github-yearbook/internal/config"
	"github.com/kurihiro0119/github-yearbook/internal/metrics"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
	"github.com/kurihiro0119/github-yearbook/internal/storage/memory"
	"github.com/kurihiro0119/github-yearbook/internal/storage/postgres"
	"github.com/kurihiro0119/github-yearbook/internal/storage/redis"
	"github.com/kurihiro0119/github-yearbook/internal/storage/sqlite"
)

// OpenStorage opens and migrates the configured store
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		store, err := postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL storage: %w", err)
		}
		return store, nil
	case "redis":
		store, err := redis.NewRedisStorage(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis storage: %w", err)
		}
		return store, nil
	case "memory":
		return memory.NewMemoryStorage(), nil
	case "sqlite", "":
		store, err := sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		return store, nil
	default:
		return nil, &config.ConfigError{Field: "STORAGE_TYPE", Message: "unknown storage type " + cfg.StorageType}
	}
}

// NewCollector creates the GitHub provider from cfg
func NewCollector(cfg *config.Config, logger *slog.Logger) (collector.Collector, error) {
	return collector.NewGitHubCollector(collector.Options{
		BaseURL:    cfg.GitHubAPIURL,
		GraphQLURL: cfg.GitHubGraphQLURL,
		Timeout:    cfg.ProviderTimeout,
		Logger:     logger.With("component", "collector"),
	})
}

// NewAggregator builds the stats engine over store and provider
func NewAggregator(cfg *config.Config, store storage.Storage, provider collector.Collector, logger *slog.Logger, recorder metrics.Recorder) aggregator.Aggregator {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return aggregator.NewAggregator(store, provider,
		aggregator.WithTTLPolicy(aggregator.TTLPolicy{
			PastYear:    cfg.PastYearTTL,
			CurrentYear: cfg.CurrentYearTTL,
		}),
		aggregator.WithFallbackToken(cfg.GitHubToken),
		aggregator.WithLogger(logger.With("component", "aggregator")),
		aggregator.WithMetrics(recorder),
	)
}
