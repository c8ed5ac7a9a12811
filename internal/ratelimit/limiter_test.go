package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFallbackLimiter(t *testing.T, config Config) *RateLimiter {
	t.Helper()
	limiter := NewRateLimiter(Disabled(), config, monitoring.NewMetrics())
	t.Cleanup(limiter.Close)
	return limiter
}

func TestRateLimiterFallbackMode(t *testing.T) {
	limiter := newFallbackLimiter(t, DefaultConfig())

	ctx := context.Background()
	key := "test:ip:10.0.0.1"
	rateLimit := Rate{Limit: 5, Period: time.Minute}

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, key, rateLimit)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "Request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
	}

	result, err := limiter.Allow(ctx, key, rateLimit)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "6th request should be blocked")
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.Zero(t, result.Remaining)
}

func TestRateLimiterBurstCapacity(t *testing.T) {
	config := DefaultConfig()
	config.BurstMultiplier = 2
	limiter := newFallbackLimiter(t, config)

	ctx := context.Background()
	rateLimit := Rate{Limit: 5, Period: time.Minute}

	allowedCount := 0
	for i := 0; i < 15; i++ {
		result, err := limiter.Allow(ctx, "test:burst", rateLimit)
		require.NoError(t, err)
		if result.Allowed {
			allowedCount++
		}
	}

	assert.Equal(t, 10, allowedCount)
}

func TestRateLimiterMultipleKeys(t *testing.T) {
	limiter := newFallbackLimiter(t, DefaultConfig())

	ctx := context.Background()
	rateLimit := Rate{Limit: 3, Period: time.Minute}

	for _, key := range []string{"ip:1", "ip:2", "ip:3"} {
		for i := 0; i < 3; i++ {
			result, err := limiter.Allow(ctx, key, rateLimit)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "Key %s request %d should be allowed", key, i+1)
		}

		result, err := limiter.Allow(ctx, key, rateLimit)
		require.NoError(t, err)
		assert.False(t, result.Allowed, "Key %s 4th request should be blocked", key)
	}
}

func TestRateLimiterZeroLimitDisables(t *testing.T) {
	limiter := newFallbackLimiter(t, DefaultConfig())

	for i := 0; i < 50; i++ {
		result, err := limiter.Allow(context.Background(), "open", Rate{Limit: 0, Period: time.Minute})
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestRateLimiterStats(t *testing.T) {
	limiter := newFallbackLimiter(t, DefaultConfig())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = limiter.AllowIP(ctx, "10.0.0.9")
	}
	_, _ = limiter.AllowIP(ctx, "10.0.0.10")

	stats := limiter.GetStats()
	assert.False(t, stats["redis_enabled"].(bool))
	assert.Equal(t, 2, stats["fallback_limiters"])
}

func TestRateLimiterConcurrency(t *testing.T) {
	limiter := newFallbackLimiter(t, DefaultConfig())

	ctx := context.Background()
	rateLimit := Rate{Limit: 100, Period: time.Hour}

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				result, err := limiter.Allow(ctx, "test:concurrent", rateLimit)
				assert.NoError(t, err)
				if result.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
}

func TestRateLimiterContextCancellation(t *testing.T) {
	limiter := newFallbackLimiter(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := limiter.Allow(ctx, "test:cancelled", Rate{Limit: 5, Period: time.Minute})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRateLimiterDifferentPeriods(t *testing.T) {
	limiter := newFallbackLimiter(t, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name   string
		limit  int
		period time.Duration
	}{
		{"per second", 10, time.Second},
		{"per minute", 60, time.Minute},
		{"per hour", 1000, time.Hour},
		{"per day", 5000, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := limiter.Allow(ctx, "test:"+tt.name, Rate{Limit: tt.limit, Period: tt.period})
			require.NoError(t, err)
			assert.True(t, result.Allowed)
			assert.Equal(t, tt.limit, result.Limit)
		})
	}
}

func TestEvaluateRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config := DefaultConfig()
	config.EvaluateLimitPerMin = 2
	limiter := newFallbackLimiter(t, config)

	router := gin.New()
	router.POST("/api/evaluate", limiter.EvaluateRateLimitMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/evaluate", nil))
		codes = append(codes, w.Code)
		last = w
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, last.Body.String(), "rate_limit")
}
