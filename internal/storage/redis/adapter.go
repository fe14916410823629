package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
)

const keyPrefix = "yearbook"

// Each row is stored as a JSON string under its own key; a sorted set per
// (username, year) or username indexes the row ids by updated_at.

// redisStorage implements the Storage interface for Redis
type redisStorage struct {
	client *goredis.Client
}

type statsRow struct {
	ID    string            `json:"id"`
	Stats *domain.YearStats `json:"stats"`
}

// NewRedisStorage creates a Redis storage instance from connection options
func NewRedisStorage(opts *goredis.Options) (storage.Storage, error) {
	return NewRedisStorageWithClient(goredis.NewClient(opts))
}

// NewRedisStorageWithClient wraps an existing client
func NewRedisStorageWithClient(client *goredis.Client) (storage.Storage, error) {
	s := &redisStorage{client: client}
	if err := s.Migrate(context.Background()); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// Migrate only checks connectivity; Redis has no schema
func (s *redisStorage) Migrate(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func statsIndexKey(username string, year int) string {
	return fmt.Sprintf("%s:stats:%s:%d", keyPrefix, username, year)
}

func statsRowKey(id string) string {
	return keyPrefix + ":stats:row:" + id
}

func tokenIndexKey(username string) string {
	return keyPrefix + ":tokens:" + username
}

func tokenRowKey(id string) string {
	return keyPrefix + ":token:" + id
}

func profileKey(username string) string {
	return keyPrefix + ":user:" + username
}

// ListYearStats returns every cached row for the key, newest first
func (s *redisStorage) ListYearStats(ctx context.Context, username string, year int) ([]*domain.YearStats, error) {
	indexKey := statsIndexKey(username, year)
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = statsRowKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var result []*domain.YearStats
	var dangling []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			dangling = append(dangling, ids[i])
			continue
		}
		var row statsRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("decode stats row %s: %w", ids[i], err)
		}
		row.Stats.ID = row.ID
		result = append(result, row.Stats)
	}

	if len(dangling) > 0 {
		if err := s.client.ZRem(ctx, indexKey, dangling...).Err(); err != nil {
			return nil, err
		}
	}

	storage.SortYearStatsNewestFirst(result)
	return result, nil
}

// InsertYearStats adds a new cached row
func (s *redisStorage) InsertYearStats(ctx context.Context, stats *domain.YearStats) error {
	payload, err := json.Marshal(statsRow{ID: stats.ID, Stats: stats})
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, statsRowKey(stats.ID), payload, 0)
		pipe.ZAdd(ctx, statsIndexKey(stats.Username, stats.Year), goredis.Z{
			Score:  float64(stats.UpdatedAt.UnixMilli()),
			Member: stats.ID,
		})
		return nil
	})
	return err
}

// UpdateYearStats overwrites an existing row
func (s *redisStorage) UpdateYearStats(ctx context.Context, stats *domain.YearStats) error {
	payload, err := json.Marshal(statsRow{ID: stats.ID, Stats: stats})
	if err != nil {
		return err
	}

	updated, err := s.client.SetXX(ctx, statsRowKey(stats.ID), payload, 0).Result()
	if err != nil {
		return err
	}
	if !updated {
		return storage.ErrNotFound
	}

	return s.client.ZAdd(ctx, statsIndexKey(stats.Username, stats.Year), goredis.Z{
		Score:  float64(stats.UpdatedAt.UnixMilli()),
		Member: stats.ID,
	}).Err()
}

// DeleteYearStats removes a cached row and its index entry
func (s *redisStorage) DeleteYearStats(ctx context.Context, id string) error {
	raw, err := s.client.Get(ctx, statsRowKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	var row statsRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return fmt.Errorf("decode stats row %s: %w", id, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, statsRowKey(id))
		pipe.ZRem(ctx, statsIndexKey(row.Stats.Username, row.Stats.Year), id)
		return nil
	})
	return err
}

// ListTokens returns the user's tokens, newest first
func (s *redisStorage) ListTokens(ctx context.Context, username string, validOnly bool) ([]*domain.StoredToken, error) {
	indexKey := tokenIndexKey(username)
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = tokenRowKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var result []*domain.StoredToken
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var token domain.StoredToken
		if err := json.Unmarshal([]byte(raw), &token); err != nil {
			return nil, fmt.Errorf("decode token %s: %w", ids[i], err)
		}
		if validOnly && !token.IsValid {
			continue
		}
		result = append(result, &token)
	}

	storage.SortTokensNewestFirst(result)
	return result, nil
}

// InsertToken saves a new token row
func (s *redisStorage) InsertToken(ctx context.Context, token *domain.StoredToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, tokenRowKey(token.ID), payload, 0)
		pipe.ZAdd(ctx, tokenIndexKey(token.Username), goredis.Z{
			Score:  float64(token.UpdatedAt.UnixMilli()),
			Member: token.ID,
		})
		return nil
	})
	return err
}

// UpdateToken overwrites an existing token row
func (s *redisStorage) UpdateToken(ctx context.Context, token *domain.StoredToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return err
	}

	updated, err := s.client.SetXX(ctx, tokenRowKey(token.ID), payload, 0).Result()
	if err != nil {
		return err
	}
	if !updated {
		return storage.ErrNotFound
	}

	return s.client.ZAdd(ctx, tokenIndexKey(token.Username), goredis.Z{
		Score:  float64(token.UpdatedAt.UnixMilli()),
		Member: token.ID,
	}).Err()
}

// DeleteToken removes a token row and its index entry
func (s *redisStorage) DeleteToken(ctx context.Context, id string) error {
	raw, err := s.client.Get(ctx, tokenRowKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	var token domain.StoredToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return fmt.Errorf("decode token %s: %w", id, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, tokenRowKey(id))
		pipe.ZRem(ctx, tokenIndexKey(token.Username), id)
		return nil
	})
	return err
}

// UpsertUserProfile saves the latest profile snapshot, keeping the first created_at
func (s *redisStorage) UpsertUserProfile(ctx context.Context, profile *domain.UserProfile) error {
	existing, err := s.GetUserProfile(ctx, profile.Username)
	if err != nil {
		return err
	}

	row := *profile
	if existing != nil {
		row.CreatedAt = existing.CreatedAt
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, profileKey(profile.Username), payload, 0).Err()
}

// GetUserProfile returns the stored profile or nil when absent
func (s *redisStorage) GetUserProfile(ctx context.Context, username string) (*domain.UserProfile, error) {
	raw, err := s.client.Get(ctx, profileKey(username)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", username, err)
	}
	return &profile, nil
}

// Close closes the client
func (s *redisStorage) Close() error {
	return s.client.Close()
}
