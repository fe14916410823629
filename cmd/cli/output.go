package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	"github.com/kurihiro0119/github-yearbook/pkg/client"
)

const topRepoLimit = 10

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderStats(w io.Writer, r *domain.YearbookResult) {
	if r.StartDate != "" {
		fmt.Fprintf(w, "\nYearbook: %s (%s to %s)\n", r.Username, r.StartDate, r.EndDate)
	} else {
		fmt.Fprintf(w, "\nYearbook: %s %d\n", r.Username, r.Year)
	}
	if r.Cached {
		fmt.Fprintf(w, "Served from cache (updated %s)\n", r.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Contributions", strconv.Itoa(r.TotalContributions)})
	table.Append([]string{"Commits", strconv.Itoa(r.TotalCommits)})
	table.Append([]string{"Pull Requests", strconv.Itoa(r.PullRequests)})
	table.Append([]string{"Reviews", strconv.Itoa(r.PullRequestReviews)})
	table.Append([]string{"Issues", strconv.Itoa(r.Issues)})
	table.Append([]string{"Active Days", strconv.Itoa(r.ActiveDays)})
	table.Append([]string{"Longest Streak", strconv.Itoa(r.LongestStreak)})
	table.Append([]string{"Current Streak", strconv.Itoa(r.CurrentStreak)})
	table.Append([]string{"Repositories", strconv.Itoa(r.RepoCount)})
	table.Render()

	if len(r.TopRepos) > 0 {
		fmt.Fprintln(w, "\nTop Repositories")
		repos := tablewriter.NewWriter(w)
		repos.SetHeader([]string{"Repository", "Commits", "Stars", "Language"})
		for i, repo := range r.TopRepos {
			if i == topRepoLimit {
				break
			}
			repos.Append([]string{repo.RepoKey, strconv.Itoa(repo.Count), strconv.Itoa(repo.Stars), repo.Language})
		}
		repos.Render()
	}

	if len(r.LanguageStats) > 0 {
		fmt.Fprintln(w, "\nLanguages")
		langs := tablewriter.NewWriter(w)
		langs.SetHeader([]string{"Language", "Repos", "Share"})
		for _, lang := range r.LanguageStats {
			langs.Append([]string{lang.Name, strconv.Itoa(lang.RepoCount), fmt.Sprintf("%.1f%%", lang.Percentage)})
		}
		langs.Render()
	}
}

func renderToken(w io.Writer, t *client.TokenInfo) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Username", "Token", "Type", "Scopes", "Valid", "Updated"})
	table.Append([]string{
		t.Username,
		t.MaskedToken,
		t.TokenType,
		t.Scopes,
		strconv.FormatBool(t.IsValid),
		t.UpdatedAt.Format("2006-01-02 15:04"),
	})
	table.Render()
}

func renderProfile(w io.Writer, p *domain.UserProfile) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.Append([]string{"Username", p.Username})
	table.Append([]string{"Company", p.Company})
	table.Append([]string{"Location", p.Location})
	table.Append([]string{"Followers", strconv.Itoa(p.Followers)})
	table.Append([]string{"Following", strconv.Itoa(p.Following)})
	table.Append([]string{"Public Repos", strconv.Itoa(p.PublicRepoCount)})
	table.Append([]string{"Total Repos", strconv.Itoa(p.TotalRepoCount)})
	table.Append([]string{"Last Seen", p.UpdatedAt.Format("2006-01-02 15:04")})
	table.Render()
}
