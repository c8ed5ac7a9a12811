package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/monitoring"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/resilience"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	redisPrefix        = "corrosion:eval:"
	redisGenerationKey = "corrosion:eval:generation"
)

// CacheItem represents a cached item with expiration
type CacheItem struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the cache item has expired
func (c *CacheItem) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// Cache stores evaluation responses in memory and, when a Redis client is
// attached, in Redis so replicas share them. Entries are keyed by a
// generation number that Invalidate bumps whenever norms or catalogue
// entries change.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*CacheItem
	ttl   time.Duration

	redis      *redis.Client
	breaker    *resilience.CircuitBreaker
	generation atomic.Int64

	stop      chan struct{}
	closeOnce sync.Once
}

// NewCache creates a new cache with the specified TTL. client may be nil.
func NewCache(ttl time.Duration, client *redis.Client) *Cache {
	cache := &Cache{
		items: make(map[string]*CacheItem),
		ttl:   ttl,
		redis: client,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  30 * time.Second,
		}),
		stop: make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			for key, item := range c.items {
				if item.IsExpired() {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Key derives a cache key from the request parts and the current generation.
func (c *Cache) Key(ctx context.Context, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(c.currentGeneration(ctx), 10)))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) currentGeneration(ctx context.Context) int64 {
	local := c.generation.Load()
	if c.redis == nil {
		return local
	}
	var remote int64
	err := c.callRedis(func() error {
		var err error
		remote, err = c.redis.Get(ctx, redisGenerationKey).Int64()
		return err
	})
	if err != nil {
		if !isQuiet(err) {
			slog.Warn("Cache generation lookup failed", "error", err)
		}
		return local
	}
	return remote
}

// callRedis runs fn through the breaker. A missing key is not a failure.
func (c *Cache) callRedis(fn func() error) error {
	var miss bool
	err := c.breaker.Call(func() error {
		err := fn()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		return err
	})
	if miss {
		return redis.Nil
	}
	return err
}

func isQuiet(err error) bool {
	return errors.Is(err, redis.Nil) || errors.Is(err, resilience.ErrCircuitOpen)
}

// Get retrieves an item, checking memory first and then Redis.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if exists && !item.IsExpired() {
		return item.Data, true
	}
	if exists {
		c.Delete(key)
	}

	if c.redis == nil {
		return nil, false
	}
	var data []byte
	err := c.callRedis(func() error {
		var err error
		data, err = c.redis.Get(ctx, redisPrefix+key).Bytes()
		return err
	})
	if err != nil {
		if !isQuiet(err) {
			slog.Warn("Redis cache read failed", "error", err)
		}
		return nil, false
	}

	c.setLocal(key, data)
	return data, true
}

// Set stores an item in memory and Redis.
func (c *Cache) Set(ctx context.Context, key string, data []byte) {
	c.setLocal(key, data)

	if c.redis == nil {
		return
	}
	err := c.callRedis(func() error {
		return c.redis.Set(ctx, redisPrefix+key, data, c.ttl).Err()
	})
	if err != nil && !isQuiet(err) {
		slog.Warn("Redis cache write failed", "error", err)
	}
}

func (c *Cache) setLocal(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &CacheItem{
		Data:      data,
		ExpiresAt: time.Now().Add(c.ttl),
	}
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Invalidate drops every cached response. Redis entries are orphaned by the
// generation bump and expire on their own TTL.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.items = make(map[string]*CacheItem)
	c.mu.Unlock()

	next := c.generation.Add(1)
	if c.redis == nil {
		return
	}
	var n int64
	err := c.callRedis(func() error {
		var err error
		n, err = c.redis.Incr(ctx, redisGenerationKey).Result()
		return err
	})
	if err != nil {
		slog.Warn("Redis cache generation bump failed", "error", err)
	} else if n > next {
		c.generation.Store(n)
	}
}

// Size returns the number of items in the cache
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalItems := len(c.items)
	expiredItems := 0

	for _, item := range c.items {
		if item.IsExpired() {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"ttl_seconds":   c.ttl.Seconds(),
		"generation":    c.generation.Load(),
		"redis_enabled": c.redis != nil,
		"redis_breaker": c.breaker.Stats(),
	}
}

// Middleware caches successful JSON responses of the POST route it is
// attached to, keyed by route and request body.
func (c *Cache) Middleware(metrics *monitoring.Metrics, logger *monitoring.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodPost {
			ctx.Next()
			return
		}

		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			ctx.Next()
			return
		}
		ctx.Request.Body = io.NopCloser(bytes.NewReader(body))

		reqCtx := ctx.Request.Context()
		cacheKey := c.Key(reqCtx, []byte(ctx.FullPath()), body)

		if cachedData, found := c.Get(reqCtx, cacheKey); found {
			logger.CacheLogger("get", cacheKey, true, c.Size())
			metrics.IncrementCacheHit()
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", cachedData)
			ctx.Abort()
			return
		}

		logger.CacheLogger("get", cacheKey, false, c.Size())
		metrics.IncrementCacheMiss()
		ctx.Header("X-Cache", "MISS")

		wrapper := &responseWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = wrapper
		ctx.Next()

		if ctx.Writer.Status() == http.StatusOK && len(ctx.Errors) == 0 {
			c.Set(reqCtx, cacheKey, wrapper.body.Bytes())
			logger.CacheLogger("set", cacheKey, false, c.Size())
		}
	}
}

// responseWriter wraps gin.ResponseWriter to capture response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
