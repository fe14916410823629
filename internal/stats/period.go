// Package stats holds the pure computations behind yearbook results:
// period parsing, date-range filtering and streak calculation.
package stats

import (
	"time"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	apperrors "github.com/kurihiro0119/github-yearbook/internal/errors"
)

const (
	PeriodPastYear  = "pastyear"
	PeriodPastMonth = "pastmonth"
	PeriodPastWeek  = "pastweek"
)

// ParsePeriod converts a period token into an inclusive [start, end] date pair
// relative to the current UTC date.
func ParsePeriod(period string) (start, end string, err error) {
	return ParsePeriodAt(period, time.Now().UTC())
}

// ParsePeriodAt is ParsePeriod with an explicit "today"
func ParsePeriodAt(period string, today time.Time) (start, end string, err error) {
	today = Truncate(today)

	switch period {
	case PeriodPastYear:
		return today.AddDate(0, 0, -365).Format(domain.DateLayout), today.Format(domain.DateLayout), nil
	case PeriodPastMonth:
		return today.AddDate(0, 0, -30).Format(domain.DateLayout), today.Format(domain.DateLayout), nil
	case PeriodPastWeek:
		return today.AddDate(0, 0, -7).Format(domain.DateLayout), today.Format(domain.DateLayout), nil
	}

	if IsYear(period) {
		return period + "-01-01", period + "-12-31", nil
	}
	return "", "", apperrors.NewInvalidPeriodError(period)
}

// IsYear reports whether s is a four digit year
func IsYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Truncate returns the UTC midnight of t's date
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// YearBounds returns January 1st and December 31st of year
func YearBounds(year int) (time.Time, time.Time) {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}
