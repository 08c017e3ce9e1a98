package api

import (
	"context"

	"github.com/RishiKendai/contestguard/internal/config"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(ctx context.Context, cfg *config.Config, deps Dependencies) (*gin.Engine, *Handler) {
	router := gin.Default()

	handler := NewHandler(ctx, cfg, deps)

	rateLimiter := NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2))

	router.Use(MetricsMiddleware())
	router.Use(ErrorHandlerMiddleware())

	// Health endpoint (no auth)
	router.GET("/health", handler.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/contests", handler.ListContests)
		api.GET("/contests/:id", handler.GetContest)
		api.GET("/questions/:questionId", handler.QuestionReport)
		api.GET("/runs/:contestSlug/status", handler.RunStatus)
	}

	// Run trigger (with auth and rate limiting)
	runs := api.Group("/runs")
	runs.Use(JWTAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))
	runs.Use(RateLimitMiddleware(rateLimiter))
	{
		runs.POST("", handler.TriggerRun)
	}

	return router, handler
}
