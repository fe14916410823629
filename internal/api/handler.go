package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/github-yearbook/internal/aggregator"
	"github.com/kurihiro0119/github-yearbook/internal/domain"
	apperrors "github.com/kurihiro0119/github-yearbook/internal/errors"
)

// Handler handles API requests
type Handler struct {
	aggregator aggregator.Aggregator
}

// NewHandler creates a new API handler
func NewHandler(agg aggregator.Aggregator) *Handler {
	return &Handler{
		aggregator: agg,
	}
}

// GetStats returns the stats for a year, or a custom range with start/end
// GET /api/v1/stats/:username/:year?start=&end=&token=
func (h *Handler) GetStats(c *gin.Context) {
	h.serveStats(c, false)
}

// RefreshStats refetches the year from GitHub, bypassing the cache
// POST /api/v1/stats/:username/:year/refresh?token=
func (h *Handler) RefreshStats(c *gin.Context) {
	h.serveStats(c, true)
}

func (h *Handler) serveStats(c *gin.Context, force bool) {
	year, err := parseYearParam(c)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.aggregator.GetStats(c.Request.Context(), aggregator.StatsRequest{
		Username:     c.Param("username"),
		Year:         year,
		Token:        c.Query("token"),
		StartDate:    c.Query("start"),
		EndDate:      c.Query("end"),
		ForceRefresh: force,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result,
	})
}

// InvalidateStats drops the cached stats of a year
// DELETE /api/v1/stats/:username/:year
func (h *Handler) InvalidateStats(c *gin.Context) {
	year, err := parseYearParam(c)
	if err != nil {
		respondError(c, err)
		return
	}

	removed, err := h.aggregator.InvalidateStats(c.Request.Context(), c.Param("username"), year)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{"removed": removed},
	})
}

// GetPeriodStats returns the stats for a period token
// GET /api/v1/period/:username/:period?token=
func (h *Handler) GetPeriodStats(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("refresh"))

	result, err := h.aggregator.GetPeriodStats(c.Request.Context(), c.Param("username"), c.Param("period"), c.Query("token"), force)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result,
	})
}

// SaveTokenRequest is the body of POST /api/v1/token
type SaveTokenRequest struct {
	Username    string `json:"username" binding:"required"`
	GitHubToken string `json:"githubToken" binding:"required"`
	TokenType   string `json:"tokenType"`
	Scopes      string `json:"scopes"`
}

// TokenView is a stored token with the credential masked
type TokenView struct {
	Username    string    `json:"username"`
	MaskedToken string    `json:"maskedToken"`
	TokenType   string    `json:"tokenType"`
	Scopes      string    `json:"scopes"`
	IsValid     bool      `json:"isValid"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newTokenView(t *domain.StoredToken) TokenView {
	return TokenView{
		Username:    t.Username,
		MaskedToken: t.Masked(),
		TokenType:   t.TokenType,
		Scopes:      t.Scopes,
		IsValid:     t.IsValid,
		UpdatedAt:   t.UpdatedAt,
	}
}

// SaveToken stores a user's GitHub token
// POST /api/v1/token
func (h *Handler) SaveToken(c *gin.Context) {
	var req SaveTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("username and githubToken are required"))
		return
	}

	saved, err := h.aggregator.SaveToken(c.Request.Context(), req.Username, req.GitHubToken, req.TokenType, req.Scopes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": newTokenView(saved),
	})
}

// GetToken returns the masked token of a user
// GET /api/v1/token/:username
func (h *Handler) GetToken(c *gin.Context) {
	token, err := h.aggregator.GetToken(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": newTokenView(token),
	})
}

// DeleteToken removes the tokens of a user
// DELETE /api/v1/token/:username
func (h *Handler) DeleteToken(c *gin.Context) {
	removed, err := h.aggregator.DeleteToken(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{"removed": removed},
	})
}

// GetUserProfile returns the last recorded profile of a user
// GET /api/v1/users/:username
func (h *Handler) GetUserProfile(c *gin.Context) {
	profile, err := h.aggregator.GetUserProfile(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": profile,
	})
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func parseYearParam(c *gin.Context) (int, error) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1 {
		return 0, apperrors.NewBadRequestError("year must be a positive integer")
	}
	return year, nil
}

// respondError writes err as a JSON error with the matching status
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if upstream := upstreamStatus(appErr); upstream != 0 {
			body["upstreamStatus"] = upstream
		}
		c.JSON(statusFor(appErr), gin.H{"error": body})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}

func statusFor(appErr *apperrors.AppError) int {
	switch appErr.Code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeBadRequest, apperrors.ErrCodeInvalidPeriod:
		return http.StatusBadRequest
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeCache:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeProvider:
		return providerStatus(appErr.UpstreamStatus)
	case apperrors.ErrCodeMergeAborted:
		var inner *apperrors.AppError
		if errors.As(appErr.Err, &inner) {
			return statusFor(inner)
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// providerStatus passes through the upstream statuses a caller can act on
func providerStatus(upstream int) int {
	switch upstream {
	case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return upstream
	}
	return http.StatusBadGateway
}

func upstreamStatus(appErr *apperrors.AppError) int {
	if appErr.UpstreamStatus != 0 {
		return appErr.UpstreamStatus
	}
	var inner *apperrors.AppError
	if appErr.Err != nil && errors.As(appErr.Err, &inner) {
		return inner.UpstreamStatus
	}
	return 0
}
