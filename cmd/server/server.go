package main

import (
	"context"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/cache"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/database"
	apperrors "github.com/ZanzyTHEbar/corrosion-rating/internal/errors"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/middleware"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/monitoring"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/ratelimit"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/security"
	"github.com/gin-gonic/gin"
)

// server bundles the dependencies shared by the HTTP handlers.
type server struct {
	service  *database.AssessmentService
	db       *database.DB
	redis    *ratelimit.RedisClient
	cache    *cache.Cache
	limiter  *ratelimit.RateLimiter
	metrics  *monitoring.Metrics
	logger   *monitoring.Logger
	security *security.SecurityMiddleware
	compress *middleware.CompressionMiddleware
	maxBody  int64
}

func (s *server) routes() *gin.Engine {
	r := gin.New()

	r.Use(apperrors.RecoveryHandler())
	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger, s.maxBody))
	r.Use(s.compress.Handler())
	r.Use(apperrors.ErrorHandler())
	r.Use(s.security.SecurityHeaders)
	r.Use(s.security.CORS())
	r.Use(s.security.BodyLimit)
	r.Use(s.security.ValidateContentType)
	r.Use(s.security.RequestTimeout)

	r.GET("/health", monitoring.HealthHandler(s.metrics, version, s.healthChecks()))
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	api.Use(s.limiter.IPRateLimitMiddleware())
	{
		api.POST("/evaluate",
			s.limiter.EvaluateRateLimitMiddleware(),
			s.cache.Middleware(s.metrics, s.logger),
			s.handleEvaluate,
		)
		api.GET("/classes", s.handleClasses)
		api.GET("/stats", s.handleStats)

		api.GET("/parameters", s.handleListParameters)
		api.GET("/parameters/:id", s.handleGetParameter)
		api.PUT("/parameters/:id", s.handlePutParameter)
		api.POST("/parameters/:id/validate", s.handleValidateValue)

		api.GET("/norms", s.handleListNorms)
		api.GET("/norms/:id", s.handleGetNorm)
		api.PUT("/norms/:id", s.handlePutNorm)
		api.DELETE("/norms/:id", s.handleDeleteNorm)
		api.GET("/norms/:id/datapoints", s.handleListDatapoints)
		api.POST("/norms/:id/datapoints", s.handleCreateDatapoint)
		api.GET("/norms/:id/analysis", s.evaluateLimited(s.handleAnalysis)...)
		api.POST("/norms/:id/recompute", s.handleRecompute)

		api.GET("/datapoints/:id", s.handleGetDatapoint)
		api.PUT("/datapoints/:id", s.handleUpdateDatapoint)
		api.DELETE("/datapoints/:id", s.handleDeleteDatapoint)
	}

	r.NoRoute(func(c *gin.Context) {
		_ = c.Error(apperrors.NewNotFoundError("route "+c.Request.URL.Path+" not found", nil))
	})

	return r
}

// evaluateLimited prefixes a handler with the evaluation rate limit.
func (s *server) evaluateLimited(h gin.HandlerFunc) []gin.HandlerFunc {
	return []gin.HandlerFunc{s.limiter.EvaluateRateLimitMiddleware(), h}
}

func (s *server) healthChecks() map[string]func() error {
	checks := map[string]func() error{
		"database": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return s.db.PingContext(ctx)
		},
	}
	if s.redis != nil && s.redis.IsEnabled() {
		checks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return s.redis.HealthCheck(ctx)
		}
	}
	return checks
}

func (s *server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":     s.metrics.GetStats(),
		"cache":       s.cache.Stats(),
		"rate_limit":  s.limiter.GetStats(),
		"database":    s.db.GetPoolStats(),
		"redis":       s.redis.GetPoolStats(),
		"compression": s.compress.GetStats(),
	})
}
