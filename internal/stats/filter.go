package stats

import (
	"time"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
)

// FilterDaily keeps the days within [start, end] (both inclusive, date precision)
// and returns them with their contribution total and number of active days.
// Entries whose date cannot be parsed are dropped.
func FilterDaily(daily []domain.DailyContribution, start, end time.Time) (kept []domain.DailyContribution, total, activeDays int) {
	start, end = Truncate(start), Truncate(end)

	kept = make([]domain.DailyContribution, 0, len(daily))
	for _, d := range daily {
		day, err := d.Day()
		if err != nil {
			continue
		}
		if day.Before(start) || day.After(end) {
			continue
		}
		kept = append(kept, d)
		total += d.Count
		if d.Count > 0 {
			activeDays++
		}
	}
	return kept, total, activeDays
}

// FilterRange returns a copy of data restricted to [start, end] with
// TotalContributions recomputed from the retained days, plus the number of
// active days in the range. All other fields pass through unchanged.
func FilterRange(data *domain.RawContributionData, start, end time.Time) (*domain.RawContributionData, int) {
	filtered := *data
	daily, total, active := FilterDaily(data.DailyContributions, start, end)

	filtered.DailyContributions = daily
	filtered.TotalContributions = total
	filtered.RepositoryContributions = append([]domain.RepoContribution(nil), data.RepositoryContributions...)
	filtered.LanguageStats = append([]domain.LanguageStat(nil), data.LanguageStats...)
	filtered.Organizations = append([]domain.Organization(nil), data.Organizations...)

	return &filtered, active
}
