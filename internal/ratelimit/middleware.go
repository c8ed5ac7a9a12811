package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/ZanzyTHEbar/corrosion-rating/internal/errors"
	"github.com/gin-gonic/gin"
)

// IPRateLimitMiddleware creates middleware for IP-based rate limiting
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return rl.middleware("ip", PerMinute(rl.config.IPLimitPerMin), func(c *gin.Context) string {
		return "ratelimit:ip:" + c.ClientIP()
	})
}

// EvaluateRateLimitMiddleware limits evaluation routes, which are the
// expensive ones, per client IP.
func (rl *RateLimiter) EvaluateRateLimitMiddleware() gin.HandlerFunc {
	return rl.middleware("evaluate", PerMinute(rl.config.EvaluateLimitPerMin), func(c *gin.Context) string {
		return "ratelimit:evaluate:" + c.ClientIP()
	})
}

func (rl *RateLimiter) middleware(scope string, r Rate, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		result, err := rl.Allow(c.Request.Context(), key, r)
		if err != nil {
			// A broken limiter must not take the API down with it
			slog.Error("Rate limit check failed", "scope", scope, "ip", c.ClientIP(), "error", err)
			c.Next()
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		}

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}

			retry := int(result.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))

			appErr := apperrors.NewRateLimitError(fmt.Sprintf("%ds", retry))
			appErr.RequestID = c.GetHeader("X-Request-ID")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, appErr.Response())
			return
		}

		c.Next()
	}
}
