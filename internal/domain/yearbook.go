package domain

import "time"

// YearStats is the cached unit: one record per (username, year)
type YearStats struct {
	ID       string `json:"-"`
	Username string `json:"username"`
	Year     int    `json:"year"`
	Profile

	TotalContributions int `json:"totalContributions"`
	TotalCommits       int `json:"totalCommits"`
	PullRequests       int `json:"pullRequests"`
	PullRequestReviews int `json:"pullRequestReviews"`
	Issues             int `json:"issues"`

	LongestStreak int `json:"longestStreak"`
	CurrentStreak int `json:"currentStreak"`
	ActiveDays    int `json:"activeDays"`
	RepoCount     int `json:"repoCount"`

	DailyContributions []DailyContribution `json:"dailyContributions"`
	LanguageStats      []LanguageStat      `json:"languageStats"`
	TopRepos           []RepoContribution  `json:"repositoryContributions"`
	Organizations      []Organization      `json:"organizations"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy of s that shares no slices with it
func (s *YearStats) Clone() *YearStats {
	if s == nil {
		return nil
	}
	c := *s
	c.DailyContributions = append([]DailyContribution(nil), s.DailyContributions...)
	c.LanguageStats = append([]LanguageStat(nil), s.LanguageStats...)
	c.TopRepos = append([]RepoContribution(nil), s.TopRepos...)
	c.Organizations = append([]Organization(nil), s.Organizations...)
	return &c
}

// YearbookResult is what callers receive for a year or a custom range
type YearbookResult struct {
	YearStats

	// StartDate and EndDate are set when the result covers a custom range
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`

	Cached bool `json:"cached"`
}
