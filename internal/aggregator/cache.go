package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	apperrors "github.com/kurihiro0119/github-yearbook/internal/errors"
	"github.com/kurihiro0119/github-yearbook/internal/metrics"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
)

// TTLPolicy decides how long a cached year stays fresh
type TTLPolicy struct {
	PastYear    time.Duration
	CurrentYear time.Duration
}

// DefaultTTLPolicy keeps past years for 30 days and the current year for a day
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		PastYear:    30 * 24 * time.Hour,
		CurrentYear: 24 * time.Hour,
	}
}

// For returns the TTL of year as seen at now
func (p TTLPolicy) For(year int, now time.Time) time.Duration {
	if year < now.UTC().Year() {
		return p.PastYear
	}
	return p.CurrentYear
}

// CacheManager reads and writes YearStats while keeping one live row per (username, year).
// Every access collapses duplicates to the most recently updated row first.
type CacheManager struct {
	store   storage.YearStatsStore
	policy  TTLPolicy
	now     func() time.Time
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewCacheManager creates a cache manager over store
func NewCacheManager(store storage.YearStatsStore, policy TTLPolicy) *CacheManager {
	return &CacheManager{
		store:   store,
		policy:  policy,
		now:     time.Now,
		metrics: metrics.Nop{},
		logger:  slog.Default(),
	}
}

// ReadLatest returns the live row for the key, or nil on a miss.
// An expired row is deleted and reported as a miss.
func (m *CacheManager) ReadLatest(ctx context.Context, username string, year int) (*domain.YearStats, error) {
	row, err := m.reconcile(ctx, username, year)
	if err != nil {
		return nil, err
	}
	if row == nil {
		m.metrics.RecordCacheMiss(metrics.MissAbsent)
		return nil, nil
	}

	now := m.now()
	ttl := m.policy.For(year, now)
	if age := now.Sub(row.UpdatedAt); age > ttl {
		m.logger.Debug("cached year stats expired",
			"username", username, "year", year, "age", age.Round(time.Second), "ttl", ttl)
		if err := m.delete(ctx, row.ID); err != nil {
			return nil, apperrors.NewCacheError("delete expired year stats", err)
		}
		m.metrics.RecordCacheMiss(metrics.MissExpired)
		return nil, nil
	}

	m.metrics.RecordCacheHit(year, year >= now.UTC().Year())
	return row, nil
}

// Upsert stores stats as the single live row for its key, overwriting any existing row.
// ID, CreatedAt and UpdatedAt of stats are set from the stored state.
func (m *CacheManager) Upsert(ctx context.Context, stats *domain.YearStats) error {
	existing, err := m.reconcile(ctx, stats.Username, stats.Year)
	if err != nil {
		return err
	}

	now := m.now()
	stats.UpdatedAt = now

	if existing != nil {
		stats.ID = existing.ID
		stats.CreatedAt = existing.CreatedAt
		err := m.store.UpdateYearStats(ctx, stats)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return apperrors.NewCacheError("update year stats", err)
		}
		// Deleted by a concurrent reconciler; write a fresh row instead
	}

	stats.ID = uuid.NewString()
	stats.CreatedAt = now
	if err := m.store.InsertYearStats(ctx, stats); err != nil {
		return apperrors.NewCacheError("insert year stats", err)
	}
	return nil
}

// Invalidate deletes every row for the key and returns how many were removed
func (m *CacheManager) Invalidate(ctx context.Context, username string, year int) (int, error) {
	rows, err := m.store.ListYearStats(ctx, username, year)
	if err != nil {
		return 0, apperrors.NewCacheError("list year stats", err)
	}
	for _, row := range rows {
		if err := m.delete(ctx, row.ID); err != nil {
			return 0, apperrors.NewCacheError("delete year stats", err)
		}
	}
	return len(rows), nil
}

// reconcile keeps the newest row for the key and deletes the rest
func (m *CacheManager) reconcile(ctx context.Context, username string, year int) (*domain.YearStats, error) {
	rows, err := m.store.ListYearStats(ctx, username, year)
	if err != nil {
		return nil, apperrors.NewCacheError("list year stats", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	storage.SortYearStatsNewestFirst(rows)

	for _, stale := range rows[1:] {
		if err := m.delete(ctx, stale.ID); err != nil {
			return nil, apperrors.NewCacheError("delete duplicate year stats", err)
		}
	}
	if removed := len(rows) - 1; removed > 0 {
		m.logger.Warn("reconciled duplicate year stats",
			"username", username, "year", year, "removed", removed)
		m.metrics.RecordReconciled("year_stats", removed)
	}
	return rows[0], nil
}

// delete treats a row that is already gone as deleted
func (m *CacheManager) delete(ctx context.Context, id string) error {
	if err := m.store.DeleteYearStats(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}
