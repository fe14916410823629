package storage

import (
	"context"
	"errors"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
)

// ErrNotFound is returned by update and delete operations when the row is gone
var ErrNotFound = errors.New("storage: row not found")

// YearStatsStore is the cache store for per-year statistics.
// More than one row per (username, year) may exist; callers reconcile.
type YearStatsStore interface {
	// ListYearStats returns every row for the key, most recently updated first
	ListYearStats(ctx context.Context, username string, year int) ([]*domain.YearStats, error)
	InsertYearStats(ctx context.Context, stats *domain.YearStats) error
	UpdateYearStats(ctx context.Context, stats *domain.YearStats) error
	DeleteYearStats(ctx context.Context, id string) error
}

// TokenStore holds saved GitHub credentials
type TokenStore interface {
	// ListTokens returns the user's tokens, most recently updated first
	ListTokens(ctx context.Context, username string, validOnly bool) ([]*domain.StoredToken, error)
	InsertToken(ctx context.Context, token *domain.StoredToken) error
	UpdateToken(ctx context.Context, token *domain.StoredToken) error
	DeleteToken(ctx context.Context, id string) error
}

// ProfileStore keeps the latest profile snapshot per user
type ProfileStore interface {
	UpsertUserProfile(ctx context.Context, profile *domain.UserProfile) error
	// GetUserProfile returns nil, nil when the user is unknown
	GetUserProfile(ctx context.Context, username string) (*domain.UserProfile, error)
}

// Storage is the abstract interface for the persistence layer
type Storage interface {
	YearStatsStore
	TokenStore
	ProfileStore

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
