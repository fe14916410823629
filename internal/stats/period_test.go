package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kurihiro0119/github-yearbook/internal/errors"
)

func TestParsePeriodAt(t *testing.T) {
	today := time.Date(2024, 6, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		period    string
		wantStart string
		wantEnd   string
	}{
		{name: "literal year", period: "2023", wantStart: "2023-01-01", wantEnd: "2023-12-31"},
		{name: "past week", period: "pastweek", wantStart: "2024-06-03", wantEnd: "2024-06-10"},
		{name: "past month", period: "pastmonth", wantStart: "2024-05-11", wantEnd: "2024-06-10"},
		{name: "past year crosses leap day", period: "pastyear", wantStart: "2023-06-11", wantEnd: "2024-06-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ParsePeriodAt(tt.period, today)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestParsePeriodAt_Invalid(t *testing.T) {
	for _, period := range []string{"notaperiod", "", "20234", "202a", "PastWeek", "-202"} {
		_, _, err := ParsePeriodAt(period, time.Now())
		require.Error(t, err, period)
		assert.True(t, apperrors.IsInvalidPeriod(err), period)
		assert.Contains(t, err.Error(), apperrors.InvalidPeriodMessage)
	}
}

func TestParsePeriod_UsesCurrentDate(t *testing.T) {
	_, end, err := ParsePeriod(PeriodPastWeek)
	require.NoError(t, err)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), end)
}
