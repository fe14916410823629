package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
)

// GitHub serves at most this many pages of public events
const maxEventPages = 3

// githubCollector implements Collector using the GitHub REST and GraphQL APIs
type githubCollector struct {
	opts        Options
	public      *github.Client
	rateLimiter RateLimiter
}

// NewGitHubCollector creates a new GitHub collector
func NewGitHubCollector(opts Options) (Collector, error) {
	opts.setDefaults()

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
	}
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}

	client := github.NewClient(&http.Client{Timeout: opts.Timeout, Transport: opts.Transport})
	client.BaseURL = baseURL

	return &githubCollector{
		opts:        opts,
		public:      client,
		rateLimiter: opts.RateLimiter,
	}, nil
}

// FetchContributions retrieves contributions in token mode when a token is given, else in public mode
func (c *githubCollector) FetchContributions(ctx context.Context, username string, start, end time.Time, token string) (*domain.RawContributionData, error) {
	logger := c.opts.Logger.With("username", username, "mode", ModeFor(token))
	logger.Debug("fetching contributions",
		"start", start.Format(domain.DateLayout), "end", end.Format(domain.DateLayout))

	if token != "" {
		return c.fetchWithGraphQL(ctx, username, start, end, token)
	}
	return c.fetchPublic(ctx, username, start, end)
}

// authClient returns an HTTP client that sends token as a bearer credential
func (c *githubCollector) authClient(token string) *http.Client {
	return &http.Client{
		Timeout: c.opts.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   c.opts.Transport,
		},
	}
}

// fetchPublic builds the dataset from public profile, push events and organizations
func (c *githubCollector) fetchPublic(ctx context.Context, username string, start, end time.Time) (*domain.RawContributionData, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	user, resp, err := c.public.Users.Get(ctx, username)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, mapGitHubError(err, fmt.Sprintf("failed to get user %s", username))
	}

	data := &domain.RawContributionData{
		Username: user.GetLogin(),
		Profile: domain.Profile{
			AvatarURL:       user.GetAvatarURL(),
			Bio:             user.GetBio(),
			Company:         user.GetCompany(),
			Location:        user.GetLocation(),
			Followers:       user.GetFollowers(),
			Following:       user.GetFollowing(),
			PublicRepoCount: user.GetPublicRepos(),
			TotalRepoCount:  user.GetPublicRepos(),
		},
	}
	if data.Username == "" {
		data.Username = username
	}

	daily, repos, err := c.collectPushEvents(ctx, username, start, end)
	if err != nil {
		return nil, err
	}
	for _, d := range daily {
		data.TotalCommits += d.Count
	}
	data.TotalContributions = data.TotalCommits
	data.DailyContributions = daily
	data.RepositoryContributions = repos
	data.LanguageStats = []domain.LanguageStat{}

	orgs, err := c.listOrganizations(ctx, username)
	if err != nil {
		return nil, err
	}
	data.Organizations = orgs

	return data, nil
}

// collectPushEvents sums push event commit counts per day and per repository
func (c *githubCollector) collectPushEvents(ctx context.Context, username string, start, end time.Time) ([]domain.DailyContribution, []domain.RepoContribution, error) {
	endExclusive := end.AddDate(0, 0, 1)
	dailyMap := make(map[string]int)
	repoMap := make(map[string]*domain.RepoContribution)

	opts := &github.ListOptions{PerPage: 100}
	for page := 0; page < maxEventPages; page++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
		events, resp, err := c.public.Activity.ListEventsPerformedByUser(ctx, username, true, opts)
		c.updateRateLimitFromResponse(resp)
		if err != nil {
			return nil, nil, mapGitHubError(err, fmt.Sprintf("failed to list events for %s", username))
		}

		olderThanRange := false
		for _, event := range events {
			createdAt := event.GetCreatedAt().Time.UTC()
			if createdAt.Before(start) {
				// Events are newest first
				olderThanRange = true
				continue
			}
			if !createdAt.Before(endExclusive) || event.GetType() != "PushEvent" {
				continue
			}

			size := 0
			if payload, err := event.ParsePayload(); err == nil {
				if push, ok := payload.(*github.PushEvent); ok {
					size = push.GetSize()
				}
			}

			dailyMap[createdAt.Format(domain.DateLayout)] += size

			fullName := event.GetRepo().GetName()
			rc, ok := repoMap[fullName]
			if !ok {
				name := fullName
				if i := strings.LastIndex(fullName, "/"); i >= 0 {
					name = fullName[i+1:]
				}
				rc = &domain.RepoContribution{
					RepoKey: fullName,
					Name:    name,
					URL:     "https://github.com/" + fullName,
				}
				repoMap[fullName] = rc
			}
			rc.Count += size
		}

		if olderThanRange || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	daily := make([]domain.DailyContribution, 0, len(dailyMap))
	for date, count := range dailyMap {
		daily = append(daily, domain.DailyContribution{Date: date, Count: count})
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })

	repos := make([]domain.RepoContribution, 0, len(repoMap))
	for _, rc := range repoMap {
		repos = append(repos, *rc)
	}
	sortRepos(repos)

	return daily, repos, nil
}

func (c *githubCollector) listOrganizations(ctx context.Context, username string) ([]domain.Organization, error) {
	orgs := []domain.Organization{}
	opts := &github.ListOptions{PerPage: 100}
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, resp, err := c.public.Organizations.List(ctx, username, opts)
		c.updateRateLimitFromResponse(resp)
		if err != nil {
			return nil, mapGitHubError(err, fmt.Sprintf("failed to list organizations for %s", username))
		}
		for _, org := range page {
			orgs = append(orgs, domain.Organization{Login: org.GetLogin(), AvatarURL: org.GetAvatarURL()})
		}
		if resp.NextPage == 0 {
			return orgs, nil
		}
		opts.Page = resp.NextPage
	}
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (c *githubCollector) updateRateLimitFromResponse(resp *github.Response) {
	if resp != nil && resp.Rate.Limit > 0 {
		c.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}

// sortRepos orders repositories by count, then stars, then key
func sortRepos(repos []domain.RepoContribution) {
	sort.SliceStable(repos, func(i, j int) bool {
		if repos[i].Count != repos[j].Count {
			return repos[i].Count > repos[j].Count
		}
		if repos[i].Stars != repos[j].Stars {
			return repos[i].Stars > repos[j].Stars
		}
		return repos[i].RepoKey < repos[j].RepoKey
	})
}
