package storage

import (
	"sort"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
)

// SortYearStatsNewestFirst orders rows by UpdatedAt, most recent first
func SortYearStatsNewestFirst(rows []*domain.YearStats) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].UpdatedAt.After(rows[j].UpdatedAt)
	})
}

// SortTokensNewestFirst orders tokens by UpdatedAt, most recent first
func SortTokensNewestFirst(rows []*domain.StoredToken) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].UpdatedAt.After(rows[j].UpdatedAt)
	})
}
