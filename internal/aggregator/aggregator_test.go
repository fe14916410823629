package aggregator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	apperrors "github.com/kurihiro0119/github-yearbook/internal/errors"
	"github.com/kurihiro0119/github-yearbook/internal/metrics"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
	"github.com/kurihiro0119/github-yearbook/internal/storage/storagetest"
)

func TestGetStats_SecondCallServedFromCache(t *testing.T) {
	f := newFixture(t)
	f.collector.set(2023, rawYear("octo", []domain.DailyContribution{
		{Date: "2023-01-01", Count: 1},
		{Date: "2023-01-02", Count: 1},
		{Date: "2023-01-03", Count: 0},
		{Date: "2023-01-04", Count: 1},
	}))
	ctx := context.Background()

	first, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 3, first.TotalContributions)
	assert.Equal(t, 3, first.ActiveDays)
	assert.Equal(t, 2, first.LongestStreak)
	assert.Equal(t, 1, first.CurrentStreak)

	second, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, f.collector.callCount())

	assert.Equal(t, first.DailyContributions, second.DailyContributions)
	assert.Equal(t, first.TotalContributions, second.TotalContributions)
	assert.Equal(t, first.LongestStreak, second.LongestStreak)
	assert.Equal(t, first.CurrentStreak, second.CurrentStreak)
	assert.Equal(t, first.Profile, second.Profile)
	assert.Len(t, f.rows(t, "octo", 2023), 1)
}

func TestGetStats_FetchesExactYearBounds(t *testing.T) {
	f := newFixture(t)
	f.collector.set(2023, rawYear("octo", []domain.DailyContribution{
		{Date: "2022-12-31", Count: 4},
		{Date: "2023-06-01", Count: 2},
		{Date: "2024-01-01", Count: 7},
	}))

	result, err := f.agg.GetStats(context.Background(), StatsRequest{Username: "octo", Year: 2023})
	require.NoError(t, err)

	call := f.collector.lastCall()
	assert.Equal(t, "2023-01-01", call.start.Format(domain.DateLayout))
	assert.Equal(t, "2023-12-31", call.end.Format(domain.DateLayout))

	assert.Equal(t, []domain.DailyContribution{{Date: "2023-06-01", Count: 2}}, result.DailyContributions)
	assert.Equal(t, 2, result.TotalContributions)
	assert.Equal(t, 1, result.ActiveDays)
	assert.Empty(t, result.StartDate)
}

func TestGetStats_ReconcilesDuplicateRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older := storagetest.NewYearStats("octo", 2023, testNow.Add(-48*time.Hour))
	older.TotalContributions = 1
	newer := storagetest.NewYearStats("octo", 2023, testNow.Add(-time.Hour))
	newer.TotalContributions = 2
	require.NoError(t, f.store.InsertYearStats(ctx, older))
	require.NoError(t, f.store.InsertYearStats(ctx, newer))

	result, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023})
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Equal(t, 2, result.TotalContributions)
	assert.Zero(t, f.collector.callCount())

	rows := f.rows(t, "octo", 2023)
	require.Len(t, rows, 1)
	assert.Equal(t, newer.ID, rows[0].ID)
}

func TestGetStats_TTLBoundary(t *testing.T) {
	tests := []struct {
		name       string
		year       int
		age        time.Duration
		wantCached bool
	}{
		{name: "past year 29 days old", year: 2023, age: 29 * 24 * time.Hour, wantCached: true},
		{name: "past year 31 days old", year: 2023, age: 31 * 24 * time.Hour, wantCached: false},
		{name: "current year 23 hours old", year: 2024, age: 23 * time.Hour, wantCached: true},
		{name: "current year 25 hours old", year: 2024, age: 25 * time.Hour, wantCached: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			stale := storagetest.NewYearStats("octo", tt.year, testNow.Add(-tt.age))
			require.NoError(t, f.store.InsertYearStats(ctx, stale))

			result, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: tt.year})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCached, result.Cached)

			rows := f.rows(t, "octo", tt.year)
			require.Len(t, rows, 1)
			if tt.wantCached {
				assert.Zero(t, f.collector.callCount())
				assert.Equal(t, stale.ID, rows[0].ID)
			} else {
				assert.Equal(t, 1, f.collector.callCount())
				assert.NotEqual(t, stale.ID, rows[0].ID)
				assert.True(t, rows[0].UpdatedAt.Equal(testNow))
			}
		})
	}
}

func TestGetStats_ConfigurableTTL(t *testing.T) {
	f := newFixture(t, WithTTLPolicy(TTLPolicy{PastYear: time.Hour, CurrentYear: time.Minute}))
	ctx := context.Background()

	require.NoError(t, f.store.InsertYearStats(ctx, storagetest.NewYearStats("octo", 2023, testNow.Add(-2*time.Hour))))

	result, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023})
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 1, f.collector.callCount())
}

func TestGetStats_ForceRefreshOverwritesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.collector.set(2023, rawYear("octo", days(3, "2023-03-01")))

	_, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023})
	require.NoError(t, err)
	before := f.rows(t, "octo", 2023)
	require.Len(t, before, 1)

	f.clock.Advance(time.Hour)
	f.collector.set(2023, rawYear("octo", days(5, "2023-03-01")))

	result, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023, ForceRefresh: true})
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 5, result.TotalContributions)
	assert.Equal(t, 2, f.collector.callCount())

	after := f.rows(t, "octo", 2023)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.True(t, after[0].CreatedAt.Equal(before[0].CreatedAt))
	assert.True(t, after[0].UpdatedAt.Equal(testNow.Add(time.Hour)))
	assert.Equal(t, 5, after[0].TotalContributions)
}

func TestGetStats_RangeCrossingYearBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	daily2023 := append([]domain.DailyContribution{
		{Date: "2023-10-31", Count: 5},
		{Date: "2023-11-15", Count: 2},
	}, days(4, "2023-12-28")...)
	raw2023 := rawYear("octo", daily2023,
		domain.RepoContribution{RepoKey: "octo/a", Name: "a", Count: 5, Stars: 1},
		domain.RepoContribution{RepoKey: "octo/b", Name: "b", Count: 3},
	)
	raw2023.Bio = "old"
	raw2023.TotalCommits = 10

	daily2024 := append(days(5, "2024-01-01"), domain.DailyContribution{Date: "2024-02-02", Count: 3})
	raw2024 := rawYear("octo", daily2024,
		domain.RepoContribution{RepoKey: "octo/a", Name: "a", Count: 2, Stars: 1},
		domain.RepoContribution{RepoKey: "octo/c", Name: "c", Count: 4},
	)
	raw2024.Bio = "new"
	raw2024.TotalCommits = 5

	f.collector.set(2023, raw2023)
	f.collector.set(2024, raw2024)

	req := StatsRequest{Username: "octo", Year: 2024, StartDate: "2023-11-01", EndDate: "2024-02-01"}
	result, err := f.agg.GetStats(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, map[int]int{2023: 1, 2024: 1}, f.collector.yearsFetched())
	assert.False(t, result.Cached)
	assert.Equal(t, "2023-11-01", result.StartDate)
	assert.Equal(t, "2024-02-01", result.EndDate)

	for _, d := range result.DailyContributions {
		assert.GreaterOrEqual(t, d.Date, "2023-11-01")
		assert.LessOrEqual(t, d.Date, "2024-02-01")
	}
	assert.Len(t, result.DailyContributions, 10)
	assert.Equal(t, 11, result.TotalContributions)
	assert.Equal(t, 10, result.ActiveDays)
	assert.Equal(t, 9, result.LongestStreak)
	assert.Equal(t, 9, result.CurrentStreak)

	// No single year row shows the cross-year run
	assert.Equal(t, 4, f.rows(t, "octo", 2023)[0].LongestStreak)
	assert.Equal(t, 5, f.rows(t, "octo", 2024)[0].LongestStreak)

	require.Len(t, result.TopRepos, 3)
	assert.Equal(t, "octo/c", result.TopRepos[0].RepoKey)
	assert.Equal(t, "octo/b", result.TopRepos[1].RepoKey)
	assert.Equal(t, "octo/a", result.TopRepos[2].RepoKey)
	assert.Equal(t, 2, result.TopRepos[2].Count)
	assert.Equal(t, 3, result.RepoCount)

	assert.Equal(t, "new", result.Bio)
	assert.Equal(t, 2024, result.Year)
	// 2023 has 6 of its 11 contributions in range, 2024 has 5 of 8
	assert.Equal(t, 10*6/11+5*5/8, result.TotalCommits)

	again, err := f.agg.GetStats(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, 2, f.collector.callCount())
	assert.Equal(t, result.DailyContributions, again.DailyContributions)
}

func TestGetStats_RangeIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.collector.set(2023, rawYear("octo", days(4, "2023-12-28")))
	f.collector.fail(2024, apperrors.NewProviderError("GitHub user not found", http.StatusNotFound, nil))

	result, err := f.agg.GetStats(context.Background(), StatsRequest{
		Username: "octo", Year: 2024, StartDate: "2023-11-01", EndDate: "2024-02-01",
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperrors.IsMergeAborted(err))

	var appErr *apperrors.AppError
	require.ErrorAs(t, errors.Unwrap(err), &appErr)
	assert.Equal(t, apperrors.ErrCodeProvider, appErr.Code)

	// The sibling still ran to completion
	assert.Equal(t, map[int]int{2023: 1, 2024: 1}, f.collector.yearsFetched())
	assert.Empty(t, f.rows(t, "octo", 2024))
}

func TestGetStats_RangeDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023, StartDate: "2023-06-01"})
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01", result.StartDate)
	assert.Equal(t, "2023-12-31", result.EndDate)

	tests := []struct {
		name string
		req  StatsRequest
	}{
		{name: "bad start", req: StatsRequest{Username: "octo", Year: 2023, StartDate: "2023-13-01"}},
		{name: "bad end", req: StatsRequest{Username: "octo", Year: 2023, EndDate: "31/12/2023"}},
		{name: "start after end", req: StatsRequest{Username: "octo", StartDate: "2024-02-01", EndDate: "2024-01-01"}},
		{name: "too many years", req: StatsRequest{Username: "octo", StartDate: "2000-01-01", EndDate: "2024-01-01"}},
		{name: "missing username", req: StatsRequest{Year: 2023}},
		{name: "missing year", req: StatsRequest{Username: "octo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.agg.GetStats(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeBadRequest, apperrors.CodeOf(err))
		})
	}
}

func TestGetStats_TokenPrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit wins", func(t *testing.T) {
		f := newFixture(t, WithFallbackToken("fallback"))
		_, err := f.agg.SaveToken(ctx, "octo", "stored-token", "", "")
		require.NoError(t, err)

		_, err = f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023, Token: "explicit"})
		require.NoError(t, err)
		assert.Equal(t, "explicit", f.collector.lastCall().token)
	})

	t.Run("stored token", func(t *testing.T) {
		f := newFixture(t, WithFallbackToken("fallback"))
		_, err := f.agg.SaveToken(ctx, "octo", "stored-token", "", "")
		require.NoError(t, err)

		_, err = f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023})
		require.NoError(t, err)
		assert.Equal(t, "stored-token", f.collector.lastCall().token)
	})

	t.Run("fallback", func(t *testing.T) {
		f := newFixture(t, WithFallbackToken("fallback"))

		_, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023})
		require.NoError(t, err)
		assert.Equal(t, "fallback", f.collector.lastCall().token)
	})

	t.Run("public mode", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023})
		require.NoError(t, err)
		assert.Empty(t, f.collector.lastCall().token)
	})
}

func TestGetStats_UpsertsProfileInBackground(t *testing.T) {
	f := newFixture(t)
	raw := rawYear("octo", days(1, "2023-05-05"))
	raw.Bio = "gopher"
	f.collector.set(2023, raw)
	ctx := context.Background()

	_, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		profile, err := f.agg.GetUserProfile(ctx, "octo")
		return err == nil && profile.Bio == "gopher"
	}, time.Second, 10*time.Millisecond)
}

func TestGetUserProfile_Unknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.agg.GetUserProfile(context.Background(), "nobody")
	assert.True(t, apperrors.IsNotFound(err))
}

type failingStore struct {
	storage.Storage
	err error
}

func (s *failingStore) ListYearStats(ctx context.Context, username string, year int) ([]*domain.YearStats, error) {
	return nil, s.err
}

func TestGetStats_StorageFailureIsNotAMiss(t *testing.T) {
	f := newFixture(t)
	store := &failingStore{Storage: f.store, err: errors.New("connection refused")}
	agg := NewAggregator(store, f.collector, WithClock(f.clock.Now))

	_, err := agg.GetStats(context.Background(), StatsRequest{Username: "octo", Year: 2023})
	require.Error(t, err)
	assert.True(t, apperrors.IsCacheError(err))
	assert.Zero(t, f.collector.callCount())
}

func TestGetStats_ProviderErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.collector.fail(2023, errors.New("dial tcp: timeout"))

	_, err := f.agg.GetStats(context.Background(), StatsRequest{Username: "octo", Year: 2023})
	require.Error(t, err)
	assert.True(t, apperrors.IsProviderError(err))
	assert.Empty(t, f.rows(t, "octo", 2023))
}

func TestGetStats_ConcurrentMissesShareOneFetch(t *testing.T) {
	f := newFixture(t)
	f.collector.set(2023, rawYear("octo", days(2, "2023-02-01")))
	gate := make(chan struct{})
	f.collector.gate = gate

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*domain.YearbookResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.agg.GetStats(context.Background(), StatsRequest{Username: "octo", Year: 2023})
		}()
	}

	require.Eventually(t, func() bool { return f.collector.callCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, f.collector.callCount())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 2, results[i].TotalContributions)
	}
	assert.Len(t, f.rows(t, "octo", 2023), 1)

	// Each caller owns its result
	results[0].DailyContributions[0].Count = 99
	assert.Equal(t, 1, results[1].DailyContributions[0].Count)
}

func TestGetStats_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	f := newFixture(t)
	f.collector.set(2023, rawYear("octo", days(3, "2023-03-01")))
	gate := make(chan struct{})
	f.collector.gate = gate

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.agg.GetStats(ctxA, StatsRequest{Username: "octo", Year: 2023})
		errA <- err
	}()
	require.Eventually(t, func() bool { return f.collector.callCount() == 1 }, time.Second, 5*time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	type outcome struct {
		result *domain.YearbookResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := f.agg.GetStats(context.Background(), StatsRequest{Username: "octo", Year: 2023})
		done <- outcome{result, err}
	}()

	time.Sleep(50 * time.Millisecond)
	close(gate)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, 3, got.result.TotalContributions)
	assert.Equal(t, 1, f.collector.callCount())
	assert.Len(t, f.rows(t, "octo", 2023), 1)
}

type fetchRecorder struct {
	metrics.Nop
	mu      sync.Mutex
	fetches int
}

func (r *fetchRecorder) RecordProviderFetch(string, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
}

func TestFetchYear_CancellationIsNotAProviderError(t *testing.T) {
	rec := &fetchRecorder{}
	f := newFixture(t, WithMetrics(rec))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.agg.(*aggregator).fetchYear(ctx, "octo", 2023, "ghp_explicit")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, apperrors.CodeOf(err))
	assert.Zero(t, rec.fetches)
}

func TestFetchYear_DeadlineIsAProviderError(t *testing.T) {
	f := newFixture(t)
	f.collector.fail(2023, context.DeadlineExceeded)

	_, err := f.agg.GetStats(context.Background(), StatsRequest{Username: "octo", Year: 2023})
	assert.True(t, apperrors.IsProviderError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetPeriodStats(t *testing.T) {
	ctx := context.Background()

	t.Run("pastweek", func(t *testing.T) {
		f := newFixture(t)
		f.collector.set(2024, rawYear("octo", days(100, "2024-01-01")))
		result, err := f.agg.GetPeriodStats(ctx, "octo", "pastweek", "", false)
		require.NoError(t, err)
		assert.Equal(t, "2024-06-03", result.StartDate)
		assert.Equal(t, "2024-06-10", result.EndDate)
		assert.Zero(t, result.TotalContributions)
		assert.Zero(t, result.TotalCommits)
		assert.Equal(t, map[int]int{2024: 1}, f.collector.yearsFetched())
	})

	t.Run("pastyear spans two years", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.agg.GetPeriodStats(ctx, "octo", "pastyear", "", false)
		require.NoError(t, err)
		assert.Equal(t, "2023-06-11", result.StartDate)
		assert.Equal(t, map[int]int{2023: 1, 2024: 1}, f.collector.yearsFetched())
	})

	t.Run("literal year", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.agg.GetPeriodStats(ctx, "octo", "2022", "", false)
		require.NoError(t, err)
		assert.Equal(t, 2022, result.Year)
		assert.Empty(t, result.StartDate)
	})

	t.Run("invalid", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.agg.GetPeriodStats(ctx, "octo", "notaperiod", "", false)
		assert.True(t, apperrors.IsInvalidPeriod(err))
		assert.Zero(t, f.collector.callCount())
	})
}

func TestInvalidateStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.InsertYearStats(ctx, storagetest.NewYearStats("octo", 2023, testNow)))
	require.NoError(t, f.store.InsertYearStats(ctx, storagetest.NewYearStats("octo", 2023, testNow.Add(-time.Hour))))

	removed, err := f.agg.InvalidateStats(ctx, "octo", 2023)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Empty(t, f.rows(t, "octo", 2023))

	result, err := f.agg.GetStats(ctx, StatsRequest{Username: "octo", Year: 2023})
	require.NoError(t, err)
	assert.False(t, result.Cached)
}

func TestTokenManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.GetToken(ctx, "octo")
	assert.True(t, apperrors.IsNotFound(err))

	saved, err := f.agg.SaveToken(ctx, "octo", "ghp_abcdefghijklmnop", "", "repo")
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenType, saved.TokenType)

	f.clock.Advance(time.Minute)
	updated, err := f.agg.SaveToken(ctx, "octo", "ghp_zyxwvutsrqponmlk", "fine_grained", "")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)

	got, err := f.agg.GetToken(ctx, "octo")
	require.NoError(t, err)
	assert.Equal(t, "ghp_zyxwvutsrqponmlk", got.Token)
	assert.Equal(t, "ghp_zyxw...nmlk", got.Masked())

	removed, err := f.agg.DeleteToken(ctx, "octo")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = f.agg.DeleteToken(ctx, "octo")
	assert.True(t, apperrors.IsNotFound(err))
}
