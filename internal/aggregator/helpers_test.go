package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	"github.com/kurihiro0119/github-yearbook/internal/logger"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
	"github.com/kurihiro0119/github-yearbook/internal/storage/memory"
)

type fetchCall struct {
	username   string
	start, end time.Time
	token      string
}

// fakeCollector serves canned data keyed by the year of the requested start date
type fakeCollector struct {
	mu    sync.Mutex
	calls []fetchCall
	data  map[int]*domain.RawContributionData
	errs  map[int]error

	// gate, when set, blocks every fetch until it is closed
	gate chan struct{}
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{
		data: make(map[int]*domain.RawContributionData),
		errs: make(map[int]error),
	}
}

func (f *fakeCollector) FetchContributions(ctx context.Context, username string, start, end time.Time, token string) (*domain.RawContributionData, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{username: username, start: start, end: end, token: token})
	gate := f.gate
	err := f.errs[start.Year()]
	data := f.data[start.Year()]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &domain.RawContributionData{Username: username}, nil
	}
	cp := *data
	cp.DailyContributions = append([]domain.DailyContribution(nil), data.DailyContributions...)
	cp.RepositoryContributions = append([]domain.RepoContribution(nil), data.RepositoryContributions...)
	return &cp, nil
}

func (f *fakeCollector) set(year int, data *domain.RawContributionData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[year] = data
}

func (f *fakeCollector) fail(year int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[year] = err
}

func (f *fakeCollector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCollector) lastCall() fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeCollector) yearsFetched() map[int]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	years := make(map[int]int)
	for _, c := range f.calls {
		years[c.start.Year()]++
	}
	return years
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testNow is the wall clock of every aggregator test: 2024-06-10 12:00 UTC
var testNow = time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     storage.Storage
	collector *fakeCollector
	clock     *testClock
	agg       Aggregator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewMemoryStorage(),
		collector: newFakeCollector(),
		clock:     newTestClock(testNow),
	}
	opts = append([]Option{WithClock(f.clock.Now), WithLogger(logger.Discard())}, opts...)
	f.agg = NewAggregator(f.store, f.collector, opts...)
	return f
}

func (f *fixture) rows(t *testing.T, username string, year int) []*domain.YearStats {
	t.Helper()
	rows, err := f.store.ListYearStats(context.Background(), username, year)
	require.NoError(t, err)
	return rows
}

func days(count int, from string) []domain.DailyContribution {
	start, err := time.Parse(domain.DateLayout, from)
	if err != nil {
		panic(err)
	}
	out := make([]domain.DailyContribution, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, domain.DailyContribution{Date: start.AddDate(0, 0, i).Format(domain.DateLayout), Count: 1})
	}
	return out
}

func rawYear(username string, daily []domain.DailyContribution, repos ...domain.RepoContribution) *domain.RawContributionData {
	total := 0
	for _, d := range daily {
		total += d.Count
	}
	return &domain.RawContributionData{
		Username:                username,
		Profile:                 domain.Profile{AvatarURL: "https://avatars.example/" + username, Followers: 1},
		TotalContributions:      total,
		TotalCommits:            total,
		DailyContributions:      daily,
		RepositoryContributions: repos,
		LanguageStats:           []domain.LanguageStat{{Name: "Go", Size: 10, RepoCount: 1, Percentage: 100}},
		Organizations:           []domain.Organization{},
	}
}
