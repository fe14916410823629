// Package memory is an in-process Storage used for local runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
)

// memoryStorage implements the Storage interface with maps guarded by a mutex
type memoryStorage struct {
	mu       sync.RWMutex
	stats    map[string]*domain.YearStats
	tokens   map[string]*domain.StoredToken
	profiles map[string]*domain.UserProfile
}

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() storage.Storage {
	return &memoryStorage{
		stats:    make(map[string]*domain.YearStats),
		tokens:   make(map[string]*domain.StoredToken),
		profiles: make(map[string]*domain.UserProfile),
	}
}

func (s *memoryStorage) ListYearStats(ctx context.Context, username string, year int) ([]*domain.YearStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*domain.YearStats
	for _, row := range s.stats {
		if row.Username == username && row.Year == year {
			rows = append(rows, row.Clone())
		}
	}
	storage.SortYearStatsNewestFirst(rows)
	return rows, nil
}

func (s *memoryStorage) InsertYearStats(ctx context.Context, stats *domain.YearStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats[stats.ID] = stats.Clone()
	return nil
}

func (s *memoryStorage) UpdateYearStats(ctx context.Context, stats *domain.YearStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stats[stats.ID]; !ok {
		return storage.ErrNotFound
	}
	s.stats[stats.ID] = stats.Clone()
	return nil
}

func (s *memoryStorage) DeleteYearStats(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.stats, id)
	return nil
}

func (s *memoryStorage) ListTokens(ctx context.Context, username string, validOnly bool) ([]*domain.StoredToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*domain.StoredToken
	for _, row := range s.tokens {
		if row.Username != username || (validOnly && !row.IsValid) {
			continue
		}
		token := *row
		rows = append(rows, &token)
	}
	storage.SortTokensNewestFirst(rows)
	return rows, nil
}

func (s *memoryStorage) InsertToken(ctx context.Context, token *domain.StoredToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *token
	s.tokens[token.ID] = &row
	return nil
}

func (s *memoryStorage) UpdateToken(ctx context.Context, token *domain.StoredToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.ID]; !ok {
		return storage.ErrNotFound
	}
	row := *token
	s.tokens[token.ID] = &row
	return nil
}

func (s *memoryStorage) DeleteToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, id)
	return nil
}

func (s *memoryStorage) UpsertUserProfile(ctx context.Context, profile *domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *profile
	if existing, ok := s.profiles[profile.Username]; ok {
		row.CreatedAt = existing.CreatedAt
	}
	s.profiles[profile.Username] = &row
	return nil
}

func (s *memoryStorage) GetUserProfile(ctx context.Context, username string) (*domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.profiles[username]
	if !ok {
		return nil, nil
	}
	profile := *row
	return &profile, nil
}

func (s *memoryStorage) Migrate(ctx context.Context) error {
	return nil
}

func (s *memoryStorage) Close() error {
	return nil
}
