package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-yearbook/internal/storage/memory"
	"github.com/kurihiro0119/github-yearbook/internal/storage/storagetest"
)

func TestTTLPolicy_For(t *testing.T) {
	p := DefaultTTLPolicy()

	assert.Equal(t, 30*24*time.Hour, p.For(2023, testNow))
	assert.Equal(t, 30*24*time.Hour, p.For(1999, testNow))
	assert.Equal(t, 24*time.Hour, p.For(2024, testNow))
	assert.Equal(t, 24*time.Hour, p.For(2025, testNow))
}

func newTestCacheManager(t *testing.T) (*CacheManager, *testClock) {
	t.Helper()
	clock := newTestClock(testNow)
	m := NewCacheManager(memory.NewMemoryStorage(), DefaultTTLPolicy())
	m.now = clock.Now
	return m, clock
}

func TestCacheManager_ReadLatestMiss(t *testing.T) {
	m, _ := newTestCacheManager(t)

	row, err := m.ReadLatest(context.Background(), "octo", 2023)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestCacheManager_ExpiredRowIsDeleted(t *testing.T) {
	m, _ := newTestCacheManager(t)
	ctx := context.Background()
	require.NoError(t, m.store.InsertYearStats(ctx, storagetest.NewYearStats("octo", 2024, testNow.Add(-25*time.Hour))))

	row, err := m.ReadLatest(ctx, "octo", 2024)
	require.NoError(t, err)
	assert.Nil(t, row)

	rows, err := m.store.ListYearStats(ctx, "octo", 2024)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCacheManager_UpsertCollapsesDuplicates(t *testing.T) {
	m, clock := newTestCacheManager(t)
	ctx := context.Background()

	oldest := storagetest.NewYearStats("octo", 2023, testNow.Add(-3*time.Hour))
	newest := storagetest.NewYearStats("octo", 2023, testNow.Add(-time.Hour))
	require.NoError(t, m.store.InsertYearStats(ctx, oldest))
	require.NoError(t, m.store.InsertYearStats(ctx, newest))

	clock.Advance(time.Minute)
	fresh := storagetest.NewYearStats("octo", 2023, time.Time{})
	fresh.TotalContributions = 42
	require.NoError(t, m.Upsert(ctx, fresh))

	rows, err := m.store.ListYearStats(ctx, "octo", 2023)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, newest.ID, rows[0].ID)
	assert.Equal(t, 42, rows[0].TotalContributions)
	assert.True(t, rows[0].CreatedAt.Equal(newest.CreatedAt))
	assert.True(t, rows[0].UpdatedAt.Equal(testNow.Add(time.Minute)))
}

func TestCacheManager_UpsertInsertsWhenEmpty(t *testing.T) {
	m, _ := newTestCacheManager(t)
	ctx := context.Background()

	stats := storagetest.NewYearStats("octo", 2023, time.Time{})
	stats.ID = ""
	require.NoError(t, m.Upsert(ctx, stats))
	assert.NotEmpty(t, stats.ID)
	assert.True(t, stats.CreatedAt.Equal(testNow))

	row, err := m.ReadLatest(ctx, "octo", 2023)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, stats.ID, row.ID)
}

func TestCacheManager_Invalidate(t *testing.T) {
	m, _ := newTestCacheManager(t)
	ctx := context.Background()
	require.NoError(t, m.store.InsertYearStats(ctx, storagetest.NewYearStats("octo", 2023, testNow)))
	require.NoError(t, m.store.InsertYearStats(ctx, storagetest.NewYearStats("octo", 2022, testNow)))

	removed, err := m.Invalidate(ctx, "octo", 2023)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	row, err := m.ReadLatest(ctx, "octo", 2022)
	require.NoError(t, err)
	assert.NotNil(t, row)
}
