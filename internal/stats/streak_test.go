package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
)

func TestComputeStreaks(t *testing.T) {
	tests := []struct {
		name        string
		daily       []domain.DailyContribution
		wantLongest int
		wantCurrent int
	}{
		{
			name:        "no days",
			daily:       nil,
			wantLongest: 0,
			wantCurrent: 0,
		},
		{
			name: "no active days",
			daily: []domain.DailyContribution{
				{Date: "2024-01-01", Count: 0},
				{Date: "2024-01-02", Count: 0},
			},
			wantLongest: 0,
			wantCurrent: 0,
		},
		{
			name:        "single active day",
			daily:       []domain.DailyContribution{{Date: "2024-03-05", Count: 3}},
			wantLongest: 1,
			wantCurrent: 1,
		},
		{
			name: "gap resets the run and current is anchored at the last active day",
			daily: []domain.DailyContribution{
				{Date: "2024-01-01", Count: 1},
				{Date: "2024-01-02", Count: 1},
				{Date: "2024-01-03", Count: 0},
				{Date: "2024-01-04", Count: 1},
			},
			wantLongest: 2,
			wantCurrent: 1,
		},
		{
			name: "unsorted input",
			daily: []domain.DailyContribution{
				{Date: "2024-02-03", Count: 2},
				{Date: "2024-01-10", Count: 1},
				{Date: "2024-02-01", Count: 5},
				{Date: "2024-02-02", Count: 1},
			},
			wantLongest: 3,
			wantCurrent: 3,
		},
		{
			name: "trailing inactive days do not reset current",
			daily: []domain.DailyContribution{
				{Date: "2023-12-30", Count: 1},
				{Date: "2023-12-31", Count: 1},
				{Date: "2024-01-01", Count: 0},
				{Date: "2024-01-02", Count: 0},
			},
			wantLongest: 2,
			wantCurrent: 2,
		},
		{
			name: "run across a year boundary",
			daily: func() []domain.DailyContribution {
				var out []domain.DailyContribution
				for d := day("2023-12-28"); !d.After(day("2024-01-05")); d = d.AddDate(0, 0, 1) {
					out = append(out, domain.DailyContribution{Date: d.Format(domain.DateLayout), Count: 1})
				}
				return out
			}(),
			wantLongest: 9,
			wantCurrent: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			longest, current := ComputeStreaks(tt.daily)
			assert.Equal(t, tt.wantLongest, longest)
			assert.Equal(t, tt.wantCurrent, current)
		})
	}
}
