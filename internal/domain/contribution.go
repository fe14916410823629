package domain

import "time"

// DateLayout is the wire format of every calendar date in the system
const DateLayout = "2006-01-02"

// DailyContribution is the contribution count of a single calendar day
type DailyContribution struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Day returns the UTC midnight of the contribution date.
// Timestamps with a time component are truncated to their date.
func (d DailyContribution) Day() (time.Time, error) {
	s := d.Date
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	return time.Parse(DateLayout, s)
}

// RepoContribution represents the commit activity of a user in one repository
type RepoContribution struct {
	RepoKey     string `json:"fullName"` // owner/name, unique within a result
	Name        string `json:"repo"`
	Count       int    `json:"count"`
	IsPrivate   bool   `json:"isPrivate"`
	Stars       int    `json:"stars"`
	Forks       int    `json:"forks"`
	Language    string `json:"language,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// LanguageStat is the share of a language across the user's repositories
type LanguageStat struct {
	Name       string  `json:"name"`
	Color      string  `json:"color"`
	Size       int64   `json:"size"`
	RepoCount  int     `json:"repoCount"`
	Percentage float64 `json:"percentage"`
}

// Organization is an organization the user belongs to
type Organization struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
}

// Profile holds the current-state profile attributes of a user.
// Empty strings mean the attribute is not set upstream.
type Profile struct {
	AvatarURL        string `json:"avatarUrl"`
	Bio              string `json:"bio"`
	Company          string `json:"company"`
	Location         string `json:"location"`
	Followers        int    `json:"followers"`
	Following        int    `json:"following"`
	PublicRepoCount  int    `json:"publicRepoCount"`
	PrivateRepoCount int    `json:"privateRepoCount"`
	TotalRepoCount   int    `json:"totalRepoCount"`
}

// RawContributionData is the provider output for one user and date range
type RawContributionData struct {
	Username string `json:"username"`
	Profile

	TotalContributions int `json:"totalContributions"`
	TotalCommits       int `json:"totalCommits"`
	PullRequests       int `json:"pullRequests"`
	PullRequestReviews int `json:"pullRequestReviews"`
	Issues             int `json:"issues"`

	DailyContributions      []DailyContribution `json:"dailyContributions"`
	RepositoryContributions []RepoContribution  `json:"repositoryContributions"`
	LanguageStats           []LanguageStat      `json:"languageStats"`
	Organizations           []Organization      `json:"organizations"`
}
