package collector

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
)

// Collector defines the contribution provider contract
type Collector interface {
	// FetchContributions returns the user's activity between start and end, both inclusive dates.
	// An empty token selects public mode.
	FetchContributions(ctx context.Context, username string, start, end time.Time, token string) (*domain.RawContributionData, error)
}

// Provider modes
const (
	ModeToken  = "token"
	ModePublic = "public"
)

// ModeFor returns the mode a fetch with token will use
func ModeFor(token string) string {
	if token == "" {
		return ModePublic
	}
	return ModeToken
}

// Options configures the GitHub collector
type Options struct {
	// BaseURL is the REST API root and must end with a slash
	BaseURL    string
	GraphQLURL string
	Timeout    time.Duration

	// Transport overrides the HTTP transport, mostly for tests
	Transport   http.RoundTripper
	RateLimiter RateLimiter
	Logger      *slog.Logger
}

const (
	defaultBaseURL    = "https://api.github.com/"
	defaultGraphQLURL = "https://api.github.com/graphql"
	defaultTimeout    = 30 * time.Second
)

func (o *Options) setDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.GraphQLURL == "" {
		o.GraphQLURL = defaultGraphQLURL
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Transport == nil {
		o.Transport = http.DefaultTransport
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.RateLimiter == nil {
		o.RateLimiter = NewRateLimiter(o.Logger)
	}
}
