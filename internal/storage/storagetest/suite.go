// Package storagetest holds the behaviour every Storage implementation must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
)

// Run exercises store against the Storage contract.
// newStore must return an empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Run("YearStatsRoundTrip", func(t *testing.T) { testYearStatsRoundTrip(t, newStore(t)) })
	t.Run("YearStatsDuplicatesNewestFirst", func(t *testing.T) { testYearStatsDuplicates(t, newStore(t)) })
	t.Run("YearStatsUpdateAndDelete", func(t *testing.T) { testYearStatsUpdateAndDelete(t, newStore(t)) })
	t.Run("Tokens", func(t *testing.T) { testTokens(t, newStore(t)) })
	t.Run("Profiles", func(t *testing.T) { testProfiles(t, newStore(t)) })
}

// NewYearStats builds a populated row for username and year
func NewYearStats(username string, year int, updatedAt time.Time) *domain.YearStats {
	return &domain.YearStats{
		ID:       uuid.New().String(),
		Username: username,
		Year:     year,
		Profile: domain.Profile{
			AvatarURL:       "https://avatars.example/" + username,
			Bio:             "bio",
			Followers:       10,
			Following:       2,
			PublicRepoCount: 4,
			TotalRepoCount:  5,
		},
		TotalContributions: 3,
		TotalCommits:       2,
		PullRequests:       1,
		LongestStreak:      2,
		CurrentStreak:      1,
		ActiveDays:         2,
		RepoCount:          1,
		DailyContributions: []domain.DailyContribution{
			{Date: "2023-01-01", Count: 1},
			{Date: "2023-01-02", Count: 2},
		},
		LanguageStats: []domain.LanguageStat{{Name: "Go", Color: "#00ADD8", Size: 100, RepoCount: 1, Percentage: 100}},
		TopRepos:      []domain.RepoContribution{{RepoKey: username + "/repo", Name: "repo", Count: 3, Stars: 1}},
		Organizations: []domain.Organization{{Login: "org", AvatarURL: "https://avatars.example/org"}},
		CreatedAt:     updatedAt,
		UpdatedAt:     updatedAt,
	}
}

func testYearStatsRoundTrip(t *testing.T, store storage.Storage) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	row := NewYearStats("octocat", 2023, now)

	require.NoError(t, store.InsertYearStats(ctx, row))

	rows, err := store.ListYearStats(ctx, "octocat", 2023)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, row.ID, got.ID)
	assert.Equal(t, row.Profile, got.Profile)
	assert.Equal(t, row.TotalContributions, got.TotalContributions)
	assert.Equal(t, row.LongestStreak, got.LongestStreak)
	assert.Equal(t, row.DailyContributions, got.DailyContributions)
	assert.Equal(t, row.LanguageStats, got.LanguageStats)
	assert.Equal(t, row.TopRepos, got.TopRepos)
	assert.Equal(t, row.Organizations, got.Organizations)
	assert.True(t, row.UpdatedAt.Equal(got.UpdatedAt), "updated_at %v != %v", row.UpdatedAt, got.UpdatedAt)

	other, err := store.ListYearStats(ctx, "octocat", 2022)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testYearStatsDuplicates(t *testing.T, store storage.Storage) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	older := NewYearStats("octocat", 2023, now.Add(-time.Hour))
	newer := NewYearStats("octocat", 2023, now)

	require.NoError(t, store.InsertYearStats(ctx, older))
	require.NoError(t, store.InsertYearStats(ctx, newer))

	rows, err := store.ListYearStats(ctx, "octocat", 2023)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newer.ID, rows[0].ID)
	assert.Equal(t, older.ID, rows[1].ID)
}

func testYearStatsUpdateAndDelete(t *testing.T, store storage.Storage) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	row := NewYearStats("octocat", 2023, now.Add(-time.Hour))
	require.NoError(t, store.InsertYearStats(ctx, row))

	row.TotalContributions = 77
	row.UpdatedAt = now
	require.NoError(t, store.UpdateYearStats(ctx, row))

	rows, err := store.ListYearStats(ctx, "octocat", 2023)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 77, rows[0].TotalContributions)
	assert.True(t, now.Equal(rows[0].UpdatedAt))

	require.NoError(t, store.DeleteYearStats(ctx, row.ID))
	rows, err = store.ListYearStats(ctx, "octocat", 2023)
	require.NoError(t, err)
	assert.Empty(t, rows)

	err = store.UpdateYearStats(ctx, row)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testTokens(t *testing.T, store storage.Storage) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	valid := &domain.StoredToken{ID: uuid.New().String(), Username: "octocat", Token: "ghp_valid", IsValid: true, CreatedAt: now, UpdatedAt: now.Add(-time.Minute)}
	invalid := &domain.StoredToken{ID: uuid.New().String(), Username: "octocat", Token: "ghp_invalid", IsValid: false, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertToken(ctx, valid))
	require.NoError(t, store.InsertToken(ctx, invalid))

	all, err := store.ListTokens(ctx, "octocat", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, invalid.ID, all[0].ID)

	onlyValid, err := store.ListTokens(ctx, "octocat", true)
	require.NoError(t, err)
	require.Len(t, onlyValid, 1)
	assert.Equal(t, "ghp_valid", onlyValid[0].Token)

	valid.Token = "ghp_rotated"
	valid.Scopes = "repo,read:org"
	valid.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.UpdateToken(ctx, valid))

	all, err = store.ListTokens(ctx, "octocat", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ghp_rotated", all[0].Token)
	assert.Equal(t, "repo,read:org", all[0].Scopes)

	require.NoError(t, store.DeleteToken(ctx, valid.ID))
	require.NoError(t, store.DeleteToken(ctx, invalid.ID))
	all, err = store.ListTokens(ctx, "octocat", false)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, store.UpdateToken(ctx, valid), storage.ErrNotFound)
}

func testProfiles(t *testing.T, store storage.Storage) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	missing, err := store.GetUserProfile(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	profile := &domain.UserProfile{
		Username:  "octocat",
		Profile:   domain.Profile{Bio: "first", Followers: 1},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertUserProfile(ctx, profile))

	profile.Bio = "second"
	profile.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.UpsertUserProfile(ctx, profile))

	got, err := store.GetUserProfile(ctx, "octocat")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Bio)
	assert.Equal(t, 1, got.Followers)
	assert.True(t, now.Add(time.Minute).Equal(got.UpdatedAt))
}
