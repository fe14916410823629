package collector

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v55/github"

	apperrors "github.com/kurihiro0119/github-yearbook/internal/errors"
)

// mapGitHubError converts a go-github error into a provider error carrying the upstream status
func mapGitHubError(err error, message string) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperrors.NewProviderError("GitHub rate limit exceeded", http.StatusTooManyRequests, err)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperrors.NewProviderError("GitHub secondary rate limit exceeded", http.StatusTooManyRequests, err)
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return statusError(respErr.Response.StatusCode, message, respErr.Message)
	}
	return apperrors.NewProviderError(message, 0, err)
}

func statusError(status int, message, detail string) error {
	var cause error
	if detail != "" {
		cause = errors.New(detail)
	}
	switch status {
	case http.StatusNotFound:
		message = "GitHub user not found"
	case http.StatusUnauthorized:
		message = "GitHub rejected the credential"
	case http.StatusTooManyRequests:
		message = "GitHub rate limit exceeded"
	}
	return apperrors.NewProviderError(message, status, cause)
}

func graphQLErrorToAppError(username string, e graphQLError) error {
	cause := errors.New(e.Message)
	switch e.Type {
	case "NOT_FOUND":
		return apperrors.NewProviderError(fmt.Sprintf("user '%s' not found", username), http.StatusNotFound, cause)
	case "RATE_LIMITED":
		return apperrors.NewProviderError("GitHub rate limit exceeded", http.StatusTooManyRequests, cause)
	case "FORBIDDEN":
		return apperrors.NewProviderError("GitHub denied access", http.StatusForbidden, cause)
	default:
		return apperrors.NewProviderError("GitHub GraphQL error", 0, cause)
	}
}
