package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kurihiro0119/github-yearbook/internal/metrics"
)

// SetupRoutes sets up the API routes. /metrics is served when gatherer is not nil.
func SetupRoutes(handler *Handler, logger *slog.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery(logger))
	router.Use(CORS())
	router.Use(Logger(logger))

	// Health check
	router.GET("/health", handler.HealthCheck)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		stats := v1.Group("/stats/:username/:year")
		{
			stats.GET("", handler.GetStats)
			stats.POST("/refresh", handler.RefreshStats)
			stats.DELETE("", handler.InvalidateStats)
		}

		v1.GET("/period/:username/:period", handler.GetPeriodStats)

		tokens := v1.Group("/token")
		{
			tokens.POST("", handler.SaveToken)
			tokens.GET("/:username", handler.GetToken)
			tokens.DELETE("/:username", handler.DeleteToken)
		}

		v1.GET("/users/:username", handler.GetUserProfile)
	}

	return router
}
