package cache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c := NewCache(ttl, nil)
	t.Cleanup(c.Close)
	return c
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()

	key := c.Key(ctx, []byte("/api/evaluate"), []byte(`{"normId":"din"}`))
	_, found := c.Get(ctx, key)
	assert.False(t, found)

	c.Set(ctx, key, []byte(`{"ok":true}`))
	data, found := c.Get(ctx, key)
	require.True(t, found)
	assert.JSONEq(t, `{"ok":true}`, string(data))
	assert.Equal(t, 1, c.Size())
}

func TestCacheExpiry(t *testing.T) {
	c := newTestCache(t, 10*time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"))
	time.Sleep(20 * time.Millisecond)

	_, found := c.Get(ctx, "k")
	assert.False(t, found)
	assert.Zero(t, c.Size())
}

func TestCacheKeyChangesWithGeneration(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()

	before := c.Key(ctx, []byte("body"))
	assert.Equal(t, before, c.Key(ctx, []byte("body")))
	assert.NotEqual(t, before, c.Key(ctx, []byte("bo"), []byte("dy")))

	c.Set(ctx, before, []byte("v"))
	c.Invalidate(ctx)

	assert.Zero(t, c.Size())
	assert.NotEqual(t, before, c.Key(ctx, []byte("body")))
	assert.Equal(t, int64(1), c.Stats()["generation"])
}

func TestCacheMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := newTestCache(t, time.Minute)
	metrics := monitoring.NewMetrics()
	logger := monitoring.NewLoggerWithWriter(io.Discard, "error")

	var calls atomic.Int32
	router := gin.New()
	router.POST("/api/evaluate", c.Middleware(metrics, logger), func(ctx *gin.Context) {
		calls.Add(1)
		body, _ := io.ReadAll(ctx.Request.Body)
		if strings.Contains(string(body), "bad") {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "bad"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"echo": string(body)})
	})

	send := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/evaluate", strings.NewReader(body)))
		return w
	}

	first := send(`{"normId":"din"}`)
	second := send(`{"normId":"din"}`)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), calls.Load())

	send(`bad`)
	send(`bad`)
	assert.Equal(t, int32(3), calls.Load(), "errors are not cached")

	c.Invalidate(context.Background())
	send(`{"normId":"din"}`)
	assert.Equal(t, int32(4), calls.Load())

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats["cache_hits"])
	assert.Equal(t, int64(4), stats["cache_misses"])
}

func TestCacheRedisBreaker(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })

	c := NewCache(time.Minute, client)
	t.Cleanup(c.Close)
	ctx := context.Background()

	c.Set(ctx, "present", []byte("data"))
	data, ok := c.Get(ctx, "present")
	require.True(t, ok, "memory tier answers without Redis")
	assert.Equal(t, []byte("data"), data)

	_, ok = c.Get(ctx, "absent-1")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "absent-2")
	assert.False(t, ok)

	breaker, _ := c.Stats()["redis_breaker"].(map[string]interface{})
	assert.Equal(t, "open", breaker["state"])

	_, ok = c.Get(ctx, "absent-3")
	assert.False(t, ok)
}
