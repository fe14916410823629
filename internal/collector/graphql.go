package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	apperrors "github.com/kurihiro0119/github-yearbook/internal/errors"
)

const defaultLanguageColor = "#8b949e"

const contributionsQuery = `
query($login: String!, $from: DateTime!, $to: DateTime!) {
  user(login: $login) {
    login
    avatarUrl
    bio
    company
    location
    followers { totalCount }
    following { totalCount }
    repositories(first: 100, ownerAffiliations: [OWNER, COLLABORATOR, ORGANIZATION_MEMBER]) {
      totalCount
      nodes {
        isPrivate
        languages(first: 10, orderBy: {field: SIZE, direction: DESC}) {
          edges { size node { name color } }
        }
      }
    }
    contributionsCollection(from: $from, to: $to) {
      totalCommitContributions
      totalPullRequestContributions
      totalPullRequestReviewContributions
      totalIssueContributions
      contributionCalendar {
        totalContributions
        weeks { contributionDays { date contributionCount } }
      }
      commitContributionsByRepository(maxRepositories: 100) {
        repository {
          name
          nameWithOwner
          isPrivate
          stargazerCount
          forkCount
          description
          url
          primaryLanguage { name color }
        }
        contributions { totalCount }
      }
    }
    organizations(first: 100) {
      nodes { login avatarUrl }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type totalCount struct {
	TotalCount int `json:"totalCount"`
}

type gqlLanguage struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type gqlUser struct {
	Login        string     `json:"login"`
	AvatarURL    string     `json:"avatarUrl"`
	Bio          string     `json:"bio"`
	Company      string     `json:"company"`
	Location     string     `json:"location"`
	Followers    totalCount `json:"followers"`
	Following    totalCount `json:"following"`
	Repositories struct {
		TotalCount int `json:"totalCount"`
		Nodes      []struct {
			IsPrivate bool `json:"isPrivate"`
			Languages struct {
				Edges []struct {
					Size int64       `json:"size"`
					Node gqlLanguage `json:"node"`
				} `json:"edges"`
			} `json:"languages"`
		} `json:"nodes"`
	} `json:"repositories"`
	ContributionsCollection struct {
		TotalCommitContributions            int `json:"totalCommitContributions"`
		TotalPullRequestContributions       int `json:"totalPullRequestContributions"`
		TotalPullRequestReviewContributions int `json:"totalPullRequestReviewContributions"`
		TotalIssueContributions             int `json:"totalIssueContributions"`
		ContributionCalendar                struct {
			TotalContributions int `json:"totalContributions"`
			Weeks              []struct {
				ContributionDays []struct {
					Date              string `json:"date"`
					ContributionCount int    `json:"contributionCount"`
				} `json:"contributionDays"`
			} `json:"weeks"`
		} `json:"contributionCalendar"`
		CommitContributionsByRepository []struct {
			Repository struct {
				Name            string       `json:"name"`
				NameWithOwner   string       `json:"nameWithOwner"`
				IsPrivate       bool         `json:"isPrivate"`
				StargazerCount  int          `json:"stargazerCount"`
				ForkCount       int          `json:"forkCount"`
				Description     string       `json:"description"`
				URL             string       `json:"url"`
				PrimaryLanguage *gqlLanguage `json:"primaryLanguage"`
			} `json:"repository"`
			Contributions totalCount `json:"contributions"`
		} `json:"commitContributionsByRepository"`
	} `json:"contributionsCollection"`
	Organizations struct {
		Nodes []domain.Organization `json:"nodes"`
	} `json:"organizations"`
}

type graphQLResponse struct {
	Data struct {
		User *gqlUser `json:"user"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// fetchWithGraphQL fetches the rich dataset, including private contributions the token can see
func (c *githubCollector) fetchWithGraphQL(ctx context.Context, username string, start, end time.Time, token string) (*domain.RawContributionData, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(graphQLRequest{
		Query: contributionsQuery,
		Variables: map[string]any{
			"login": username,
			"from":  start.UTC().Format(time.RFC3339),
			"to":    end.UTC().Add(24*time.Hour - time.Second).Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode GraphQL query", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build GraphQL request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.authClient(token).Do(req)
	if err != nil {
		return nil, apperrors.NewProviderError("GitHub GraphQL request failed", 0, err)
	}
	defer resp.Body.Close()
	updateFromHeaders(c.rateLimiter, resp.Header)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewProviderError("failed to read GitHub GraphQL response", 0, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, fmt.Sprintf("GitHub GraphQL returned %d", resp.StatusCode), string(raw))
	}

	var result graphQLResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperrors.NewProviderError("failed to decode GitHub GraphQL response", 0, err)
	}
	if len(result.Errors) > 0 {
		return nil, graphQLErrorToAppError(username, result.Errors[0])
	}
	if result.Data.User == nil {
		return nil, apperrors.NewProviderError(fmt.Sprintf("user '%s' not found", username), http.StatusNotFound, nil)
	}

	return convertGraphQLUser(username, result.Data.User), nil
}

func convertGraphQLUser(username string, u *gqlUser) *domain.RawContributionData {
	cc := u.ContributionsCollection
	data := &domain.RawContributionData{
		Username: u.Login,
		Profile: domain.Profile{
			AvatarURL:      u.AvatarURL,
			Bio:            u.Bio,
			Company:        u.Company,
			Location:       u.Location,
			Followers:      u.Followers.TotalCount,
			Following:      u.Following.TotalCount,
			TotalRepoCount: u.Repositories.TotalCount,
		},
		TotalContributions: cc.ContributionCalendar.TotalContributions,
		TotalCommits:       cc.TotalCommitContributions,
		PullRequests:       cc.TotalPullRequestContributions,
		PullRequestReviews: cc.TotalPullRequestReviewContributions,
		Issues:             cc.TotalIssueContributions,
		Organizations:      u.Organizations.Nodes,
	}
	if data.Username == "" {
		data.Username = username
	}
	if data.Organizations == nil {
		data.Organizations = []domain.Organization{}
	}

	for _, week := range cc.ContributionCalendar.Weeks {
		for _, day := range week.ContributionDays {
			data.DailyContributions = append(data.DailyContributions,
				domain.DailyContribution{Date: day.Date, Count: day.ContributionCount})
		}
	}

	repos := make([]domain.RepoContribution, 0, len(cc.CommitContributionsByRepository))
	for _, item := range cc.CommitContributionsByRepository {
		r := item.Repository
		rc := domain.RepoContribution{
			RepoKey:     r.NameWithOwner,
			Name:        r.Name,
			Count:       item.Contributions.TotalCount,
			IsPrivate:   r.IsPrivate,
			Stars:       r.StargazerCount,
			Forks:       r.ForkCount,
			Description: r.Description,
			URL:         r.URL,
		}
		if r.PrimaryLanguage != nil {
			rc.Language = r.PrimaryLanguage.Name
		}
		repos = append(repos, rc)
	}
	sortRepos(repos)
	data.RepositoryContributions = repos

	type langAcc struct {
		stat  domain.LanguageStat
		order int
	}
	langs := make(map[string]*langAcc)
	var totalSize int64
	for _, repo := range u.Repositories.Nodes {
		if repo.IsPrivate {
			data.PrivateRepoCount++
		} else {
			data.PublicRepoCount++
		}
		for _, edge := range repo.Languages.Edges {
			acc, ok := langs[edge.Node.Name]
			if !ok {
				color := edge.Node.Color
				if color == "" {
					color = defaultLanguageColor
				}
				acc = &langAcc{stat: domain.LanguageStat{Name: edge.Node.Name, Color: color}, order: len(langs)}
				langs[edge.Node.Name] = acc
			}
			acc.stat.Size += edge.Size
			acc.stat.RepoCount++
			totalSize += edge.Size
		}
	}
	if totalSize == 0 {
		totalSize = 1
	}

	accs := make([]*langAcc, 0, len(langs))
	for _, acc := range langs {
		acc.stat.Percentage = float64(acc.stat.Size) / float64(totalSize) * 100
		accs = append(accs, acc)
	}
	sort.Slice(accs, func(i, j int) bool {
		if accs[i].stat.Size != accs[j].stat.Size {
			return accs[i].stat.Size > accs[j].stat.Size
		}
		return accs[i].order < accs[j].order
	})
	data.LanguageStats = make([]domain.LanguageStat, 0, len(accs))
	for _, acc := range accs {
		data.LanguageStats = append(data.LanguageStats, acc.stat)
	}

	return data
}
