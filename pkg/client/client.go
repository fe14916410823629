package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
)

// Client is the API client for the yearbook server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Range requests fan out to GitHub, so allow more than a single fetch
			Timeout: 2 * time.Minute,
		},
	}
}

// APIError is a non-200 response from the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: %d", e.StatusCode)
	}
	return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, e.Code, e.Message)
}

// StatsOptions are the optional parameters of GetStats
type StatsOptions struct {
	Token     string
	StartDate string
	EndDate   string
	Refresh   bool
}

// TokenInfo is the masked view of a stored token
type TokenInfo struct {
	Username    string    `json:"username"`
	MaskedToken string    `json:"maskedToken"`
	TokenType   string    `json:"tokenType"`
	Scopes      string    `json:"scopes"`
	IsValid     bool      `json:"isValid"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GetStats retrieves the stats of a year or custom range
func (c *Client) GetStats(ctx context.Context, username string, year int, opts StatsOptions) (*domain.YearbookResult, error) {
	path := fmt.Sprintf("/api/v1/stats/%s/%d", url.PathEscape(username), year)
	params := url.Values{}
	if opts.Token != "" {
		params.Set("token", opts.Token)
	}
	if opts.StartDate != "" {
		params.Set("start", opts.StartDate)
	}
	if opts.EndDate != "" {
		params.Set("end", opts.EndDate)
	}

	method := http.MethodGet
	if opts.Refresh {
		method = http.MethodPost
		path += "/refresh"
	}

	var response struct {
		Data *domain.YearbookResult `json:"data"`
	}
	if err := c.do(ctx, method, path, params, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetPeriodStats retrieves the stats of a period token
func (c *Client) GetPeriodStats(ctx context.Context, username, period, token string, refresh bool) (*domain.YearbookResult, error) {
	path := fmt.Sprintf("/api/v1/period/%s/%s", url.PathEscape(username), url.PathEscape(period))
	params := url.Values{}
	if token != "" {
		params.Set("token", token)
	}
	if refresh {
		params.Set("refresh", strconv.FormatBool(refresh))
	}

	var response struct {
		Data *domain.YearbookResult `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, params, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// InvalidateStats drops the cached stats of a year
func (c *Client) InvalidateStats(ctx context.Context, username string, year int) (int, error) {
	path := fmt.Sprintf("/api/v1/stats/%s/%d", url.PathEscape(username), year)

	var response struct {
		Data struct {
			Removed int `json:"removed"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, &response); err != nil {
		return 0, err
	}
	return response.Data.Removed, nil
}

// SaveToken stores a GitHub token for a user
func (c *Client) SaveToken(ctx context.Context, username, token, tokenType, scopes string) (*TokenInfo, error) {
	body := map[string]string{
		"username":    username,
		"githubToken": token,
		"tokenType":   tokenType,
		"scopes":      scopes,
	}

	var response struct {
		Data *TokenInfo `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/token", nil, body, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetToken retrieves the masked token of a user
func (c *Client) GetToken(ctx context.Context, username string) (*TokenInfo, error) {
	var response struct {
		Data *TokenInfo `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/token/"+url.PathEscape(username), nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// DeleteToken removes the tokens of a user
func (c *Client) DeleteToken(ctx context.Context, username string) (int, error) {
	var response struct {
		Data struct {
			Removed int `json:"removed"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/token/"+url.PathEscape(username), nil, nil, &response); err != nil {
		return 0, err
	}
	return response.Data.Removed, nil
}

// GetUserProfile retrieves the last recorded profile of a user
func (c *Client) GetUserProfile(ctx context.Context, username string) (*domain.UserProfile, error) {
	var response struct {
		Data *domain.UserProfile `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(username), nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, result any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &errBody) == nil {
			apiErr.Code = errBody.Error.Code
			apiErr.Message = errBody.Error.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = string(raw)
		}
		return apiErr
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
