package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kurihiro0119/github-yearbook/internal/collector"
	"github.com/kurihiro0119/github-yearbook/internal/domain"
	apperrors "github.com/kurihiro0119/github-yearbook/internal/errors"
	"github.com/kurihiro0119/github-yearbook/internal/metrics"
	"github.com/kurihiro0119/github-yearbook/internal/stats"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
)

// MaxRangeYears bounds the number of calendar years one range request may span
const MaxRangeYears = 10

// StatsRequest is the input of GetStats
type StatsRequest struct {
	Username string
	Year     int
	// Token overrides the stored credential when set
	Token string
	// StartDate and EndDate (YYYY-MM-DD) make this a custom range request.
	// A missing bound defaults to the matching edge of Year.
	StartDate    string
	EndDate      string
	ForceRefresh bool
}

// IsRange reports whether the request asks for a custom range
func (r StatsRequest) IsRange() bool {
	return r.StartDate != "" || r.EndDate != ""
}

// Aggregator defines the yearbook stats engine
type Aggregator interface {
	// GetStats returns the stats for a calendar year or a custom range
	GetStats(ctx context.Context, req StatsRequest) (*domain.YearbookResult, error)

	// GetPeriodStats resolves a period token (YYYY, pastyear, pastmonth, pastweek) and returns its stats
	GetPeriodStats(ctx context.Context, username, period, token string, forceRefresh bool) (*domain.YearbookResult, error)

	// InvalidateStats drops the cached rows of a year
	InvalidateStats(ctx context.Context, username string, year int) (int, error)

	// GetUserProfile returns the last profile snapshot recorded for the user
	GetUserProfile(ctx context.Context, username string) (*domain.UserProfile, error)

	// SaveToken stores the user's GitHub credential
	SaveToken(ctx context.Context, username, token, tokenType, scopes string) (*domain.StoredToken, error)

	// GetToken returns the user's stored credential
	GetToken(ctx context.Context, username string) (*domain.StoredToken, error)

	// DeleteToken removes the user's stored credentials
	DeleteToken(ctx context.Context, username string) (int, error)
}

// Option configures the aggregator
type Option func(*aggregator)

// WithTTLPolicy overrides the cache TTL policy
func WithTTLPolicy(p TTLPolicy) Option {
	return func(a *aggregator) { a.policy = p }
}

// WithMetrics reports to r
func WithMetrics(r metrics.Recorder) Option {
	return func(a *aggregator) { a.metrics = r }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(a *aggregator) { a.logger = l }
}

// WithClock replaces time.Now for TTL and period decisions
func WithClock(now func() time.Time) Option {
	return func(a *aggregator) { a.now = now }
}

// WithFallbackToken sets the server credential used when a user has none
func WithFallbackToken(token string) Option {
	return func(a *aggregator) { a.fallbackToken = token }
}

// WithProfileTimeout bounds the background profile upsert
func WithProfileTimeout(d time.Duration) Option {
	return func(a *aggregator) { a.profileTimeout = d }
}

// WithFetchTimeout bounds one shared year fetch, which outlives the callers waiting on it
func WithFetchTimeout(d time.Duration) Option {
	return func(a *aggregator) { a.fetchTimeout = d }
}

// aggregator implements the Aggregator interface
type aggregator struct {
	storage  storage.Storage
	provider collector.Collector
	cache    *CacheManager
	tokens   *TokenResolver
	group    singleflight.Group

	policy         TTLPolicy
	metrics        metrics.Recorder
	logger         *slog.Logger
	now            func() time.Time
	fallbackToken  string
	profileTimeout time.Duration
	fetchTimeout   time.Duration
}

// NewAggregator creates a new aggregator
func NewAggregator(store storage.Storage, provider collector.Collector, opts ...Option) Aggregator {
	a := &aggregator{
		storage:        store,
		provider:       provider,
		policy:         DefaultTTLPolicy(),
		metrics:        metrics.Nop{},
		logger:         slog.Default(),
		now:            time.Now,
		profileTimeout: 10 * time.Second,
		fetchTimeout:   2 * time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.cache = NewCacheManager(store, a.policy)
	a.cache.now = a.now
	a.cache.metrics = a.metrics
	a.cache.logger = a.logger

	a.tokens = NewTokenResolver(store, a.fallbackToken)
	a.tokens.now = a.now
	a.tokens.metrics = a.metrics
	a.tokens.logger = a.logger

	return a
}

// GetStats returns the stats for a calendar year or a custom range
func (a *aggregator) GetStats(ctx context.Context, req StatsRequest) (*domain.YearbookResult, error) {
	if req.Username == "" {
		return nil, apperrors.NewBadRequestError("username is required")
	}
	if req.IsRange() {
		return a.getRange(ctx, req)
	}
	if req.Year < 1 || req.Year > 9999 {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("invalid year %d", req.Year))
	}
	return a.getYear(ctx, req.Username, req.Year, req.Token, req.ForceRefresh)
}

// GetPeriodStats resolves a period token and returns its stats
func (a *aggregator) GetPeriodStats(ctx context.Context, username, period, token string, forceRefresh bool) (*domain.YearbookResult, error) {
	today := a.now().UTC()
	start, end, err := stats.ParsePeriodAt(period, today)
	if err != nil {
		return nil, err
	}

	req := StatsRequest{Username: username, Token: token, ForceRefresh: forceRefresh}
	if stats.IsYear(period) {
		req.Year, _ = strconv.Atoi(period)
	} else {
		req.Year = today.Year()
		req.StartDate, req.EndDate = start, end
	}
	return a.GetStats(ctx, req)
}

// getRange fans out one request per calendar year and merges the results.
// Every year must succeed; siblings of a failed year still run to completion.
func (a *aggregator) getRange(ctx context.Context, req StatsRequest) (*domain.YearbookResult, error) {
	start, end, err := rangeBounds(req)
	if err != nil {
		return nil, err
	}

	years := make([]int, 0, end.Year()-start.Year()+1)
	for y := start.Year(); y <= end.Year(); y++ {
		years = append(years, y)
	}
	if len(years) > MaxRangeYears {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("range spans %d years, at most %d are allowed", len(years), MaxRangeYears))
	}

	logger := a.logger.With("username", req.Username,
		"start", start.Format(domain.DateLayout), "end", end.Format(domain.DateLayout))
	logger.Debug("decomposing range request", "years", len(years))

	results := make([]*domain.YearbookResult, len(years))
	var g errgroup.Group
	for i, year := range years {
		i, year := i, year
		g.Go(func() error {
			result, err := a.getYear(ctx, req.Username, year, req.Token, req.ForceRefresh)
			if err != nil {
				return apperrors.NewMergeAbortedError(year, err)
			}
			results[i] = result
			return nil
		})
	}
	err = g.Wait()
	a.metrics.RecordRangeRequest(len(years), err)
	if err != nil {
		logger.Warn("range request aborted", "error", err)
		return nil, err
	}

	return MergeYears(results, start, end), nil
}

// rangeBounds parses the request's custom range, defaulting a missing bound to the year edge
func rangeBounds(req StatsRequest) (time.Time, time.Time, error) {
	yearStart, yearEnd := stats.YearBounds(req.Year)

	start, end := yearStart, yearEnd
	if req.StartDate != "" {
		d, err := time.Parse(domain.DateLayout, req.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.NewBadRequestError("startDate must be YYYY-MM-DD")
		}
		start = d
	}
	if req.EndDate != "" {
		d, err := time.Parse(domain.DateLayout, req.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.NewBadRequestError("endDate must be YYYY-MM-DD")
		}
		end = d
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, apperrors.NewBadRequestError("startDate must not be after endDate")
	}
	return start, end, nil
}

// getYear serves a plain calendar year, from cache unless forced or stale
func (a *aggregator) getYear(ctx context.Context, username string, year int, token string, force bool) (*domain.YearbookResult, error) {
	if force {
		a.metrics.RecordCacheMiss(metrics.MissForced)
	} else {
		cached, err := a.cache.ReadLatest(ctx, username, year)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return &domain.YearbookResult{YearStats: *cached, Cached: true}, nil
		}
	}

	// Concurrent identical fetches share one provider call. The call runs
	// detached from any single caller; each caller only stops waiting on
	// its own cancellation.
	key := fmt.Sprintf("%s/%d/%t/%s", username, year, force, token)
	ch := a.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.fetchTimeout)
		defer cancel()
		return a.fetchYear(fetchCtx, username, year, token)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		a.logger.Debug("shared in-flight year fetch", "username", username, "year", year)
	}

	fresh := res.Val.(*domain.YearStats).Clone()
	return &domain.YearbookResult{YearStats: *fresh, Cached: false}, nil
}

// fetchYear fetches, filters and caches one calendar year
func (a *aggregator) fetchYear(ctx context.Context, username string, year int, explicitToken string) (*domain.YearStats, error) {
	token, err := a.tokens.Resolve(ctx, explicitToken, username)
	if err != nil {
		return nil, err
	}

	start, end := stats.YearBounds(year)
	mode := collector.ModeFor(token)

	began := time.Now()
	raw, err := a.provider.FetchContributions(ctx, username, start, end, token)
	if errors.Is(err, context.Canceled) {
		return nil, err
	}
	a.metrics.RecordProviderFetch(mode, time.Since(began), err)
	if err != nil {
		a.logger.Warn("provider fetch failed", "username", username, "year", year, "mode", mode, "error", err)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewProviderError("timed out fetching contributions", 0, err)
		}
		return nil, apperrors.NewProviderError("failed to fetch contributions", 0, err)
	}

	a.saveProfile(ctx, username, raw.Profile)

	filtered, activeDays := stats.FilterRange(raw, start, end)
	longest, current := stats.ComputeStreaks(filtered.DailyContributions)

	ys := &domain.YearStats{
		Username:           username,
		Year:               year,
		Profile:            filtered.Profile,
		TotalContributions: filtered.TotalContributions,
		TotalCommits:       filtered.TotalCommits,
		PullRequests:       filtered.PullRequests,
		PullRequestReviews: filtered.PullRequestReviews,
		Issues:             filtered.Issues,
		LongestStreak:      longest,
		CurrentStreak:      current,
		ActiveDays:         activeDays,
		RepoCount:          len(filtered.RepositoryContributions),
		DailyContributions: filtered.DailyContributions,
		LanguageStats:      filtered.LanguageStats,
		TopRepos:           filtered.RepositoryContributions,
		Organizations:      filtered.Organizations,
	}
	if err := a.cache.Upsert(ctx, ys); err != nil {
		return nil, err
	}

	a.logger.Info("cached year stats",
		"username", username, "year", year, "mode", mode,
		"contributions", ys.TotalContributions, "activeDays", ys.ActiveDays)
	return ys, nil
}

// saveProfile upserts the profile snapshot in the background; failures are only logged
func (a *aggregator) saveProfile(ctx context.Context, username string, profile domain.Profile) {
	now := a.now()
	snapshot := &domain.UserProfile{
		Username:  username,
		Profile:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.profileTimeout)

	go func() {
		defer cancel()
		if err := a.storage.UpsertUserProfile(ctx, snapshot); err != nil {
			a.logger.Warn("failed to upsert user profile", "username", username, "error", err)
		}
	}()
}

// InvalidateStats drops the cached rows of a year
func (a *aggregator) InvalidateStats(ctx context.Context, username string, year int) (int, error) {
	if username == "" {
		return 0, apperrors.NewBadRequestError("username is required")
	}
	removed, err := a.cache.Invalidate(ctx, username, year)
	if err != nil {
		return 0, err
	}
	a.logger.Info("invalidated year stats", "username", username, "year", year, "removed", removed)
	return removed, nil
}

// GetUserProfile returns the last profile snapshot recorded for the user
func (a *aggregator) GetUserProfile(ctx context.Context, username string) (*domain.UserProfile, error) {
	profile, err := a.storage.GetUserProfile(ctx, username)
	if err != nil {
		return nil, apperrors.NewCacheError("get user profile", err)
	}
	if profile == nil {
		return nil, apperrors.NewNotFoundError("user " + username)
	}
	return profile, nil
}

// SaveToken stores the user's GitHub credential
func (a *aggregator) SaveToken(ctx context.Context, username, token, tokenType, scopes string) (*domain.StoredToken, error) {
	saved, err := a.tokens.Save(ctx, username, token, tokenType, scopes)
	if err != nil {
		return nil, err
	}
	a.logger.Info("saved token", "username", username, "token", saved.Masked())
	return saved, nil
}

// GetToken returns the user's stored credential
func (a *aggregator) GetToken(ctx context.Context, username string) (*domain.StoredToken, error) {
	token, err := a.tokens.Lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, apperrors.NewNotFoundError("token for " + username)
	}
	return token, nil
}

// DeleteToken removes the user's stored credentials
func (a *aggregator) DeleteToken(ctx context.Context, username string) (int, error) {
	removed, err := a.tokens.Delete(ctx, username)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, apperrors.NewNotFoundError("token for " + username)
	}
	return removed, nil
}
