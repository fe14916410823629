package stats

import (
	"sort"
	"time"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
)

// ComputeStreaks returns the longest run of consecutive active days and the
// run ending at the latest active day in daily. The current streak is anchored
// to the data, not to the wall clock, so past years still get a value.
func ComputeStreaks(daily []domain.DailyContribution) (longest, current int) {
	active := make(map[time.Time]bool)
	for _, d := range daily {
		if d.Count <= 0 {
			continue
		}
		day, err := d.Day()
		if err != nil {
			continue
		}
		active[day] = true
	}
	if len(active) == 0 {
		return 0, 0
	}

	days := make([]time.Time, 0, len(active))
	for day := range active {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Before(days[j])
	})

	streak := 0
	var prev time.Time
	for i, day := range days {
		if i > 0 && prev.AddDate(0, 0, 1).Equal(day) {
			streak++
		} else {
			streak = 1
		}
		if streak > longest {
			longest = streak
		}
		prev = day
	}

	for day := days[len(days)-1]; active[day]; day = day.AddDate(0, 0, -1) {
		current++
	}

	return longest, current
}
