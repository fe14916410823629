package aggregator

import (
	"sort"
	"time"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	"github.com/kurihiro0119/github-yearbook/internal/stats"
)

// MergeYears combines per-year results, given in ascending year order, into a
// single result covering [start, end].
//
// Daily contributions are trimmed to the range and streaks recomputed over the
// trimmed days, so runs crossing a year boundary count in full. Repositories
// merge by key with later years winning. Profile, languages and organizations
// come from the latest year. Counters that have no daily breakdown are summed;
// a year the range only partly covers contributes them in proportion to its
// contributions inside the range.
func MergeYears(results []*domain.YearbookResult, start, end time.Time) *domain.YearbookResult {
	merged := &domain.YearbookResult{
		StartDate: stats.Truncate(start).Format(domain.DateLayout),
		EndDate:   stats.Truncate(end).Format(domain.DateLayout),
		Cached:    len(results) > 0,
	}
	if len(results) == 0 {
		merged.DailyContributions = []domain.DailyContribution{}
		merged.TopRepos = []domain.RepoContribution{}
		return merged
	}

	latest := results[len(results)-1]
	merged.Username = latest.Username
	merged.Year = latest.Year
	merged.Profile = latest.Profile
	merged.LanguageStats = append([]domain.LanguageStat(nil), latest.LanguageStats...)
	merged.Organizations = append([]domain.Organization(nil), latest.Organizations...)

	var daily []domain.DailyContribution
	repos := make(map[string]domain.RepoContribution)
	for _, r := range results {
		daily = append(daily, r.DailyContributions...)

		share := rangeShare(r, start, end)
		merged.TotalCommits += share(r.TotalCommits)
		merged.PullRequests += share(r.PullRequests)
		merged.PullRequestReviews += share(r.PullRequestReviews)
		merged.Issues += share(r.Issues)

		for _, repo := range r.TopRepos {
			repos[repoKey(repo)] = repo
		}

		if !r.Cached {
			merged.Cached = false
		}
		if merged.CreatedAt.IsZero() || (!r.CreatedAt.IsZero() && r.CreatedAt.Before(merged.CreatedAt)) {
			merged.CreatedAt = r.CreatedAt
		}
		if r.UpdatedAt.After(merged.UpdatedAt) {
			merged.UpdatedAt = r.UpdatedAt
		}
	}

	kept, total, active := stats.FilterDaily(daily, start, end)
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Date < kept[j].Date })
	merged.DailyContributions = kept
	merged.TotalContributions = total
	merged.ActiveDays = active
	merged.LongestStreak, merged.CurrentStreak = stats.ComputeStreaks(kept)

	merged.TopRepos = make([]domain.RepoContribution, 0, len(repos))
	for _, repo := range repos {
		merged.TopRepos = append(merged.TopRepos, repo)
	}
	sort.Slice(merged.TopRepos, func(i, j int) bool {
		a, b := merged.TopRepos[i], merged.TopRepos[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Stars != b.Stars {
			return a.Stars > b.Stars
		}
		return repoKey(a) < repoKey(b)
	})
	merged.RepoCount = len(merged.TopRepos)

	return merged
}

// rangeShare returns a scaler for the counters of one year result. Whole
// years keep their counters; otherwise they scale by the fraction of the
// year's contributions that fall inside [start, end].
func rangeShare(r *domain.YearbookResult, start, end time.Time) func(int) int {
	yearStart, yearEnd := stats.YearBounds(r.Year)
	if !stats.Truncate(start).After(yearStart) && !stats.Truncate(end).Before(yearEnd) {
		return func(n int) int { return n }
	}

	_, inRange, _ := stats.FilterDaily(r.DailyContributions, start, end)
	yearTotal := r.TotalContributions
	if yearTotal <= 0 || inRange <= 0 {
		return func(int) int { return 0 }
	}
	if inRange >= yearTotal {
		return func(n int) int { return n }
	}
	return func(n int) int { return n * inRange / yearTotal }
}

func repoKey(r domain.RepoContribution) string {
	if r.RepoKey != "" {
		return r.RepoKey
	}
	return r.Name
}
