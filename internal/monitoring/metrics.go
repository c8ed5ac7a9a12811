package monitoring

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "corrosion_rating"

// Metrics holds application metrics. Everything is exported on a private
// Prometheus registry; a few totals are mirrored in atomics for /health.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	evaluations     *prometheus.CounterVec
	classifications *prometheus.CounterVec
	formulaFailures prometheus.Counter
	cacheRequests   *prometheus.CounterVec
	rateLimit       *prometheus.CounterVec

	requestCount    int64
	errorCount      int64
	cacheHits       int64
	cacheMisses     int64
	evaluationCount int64
	startTime       time.Time
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Datapoint evaluations by result status.",
		}, []string{"status"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Evaluated datapoints by corrosion class.",
		}, []string{"class"}),
		formulaFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "formula_failures_total",
			Help:      "Output formulas that failed and defaulted to zero.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Evaluation cache lookups by outcome.",
		}, []string{"outcome"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_events_total",
			Help:      "Rate limiter blocks, fallbacks and backend errors.",
		}, []string{"event"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.evaluations,
		m.classifications,
		m.formulaFailures,
		m.cacheRequests,
		m.rateLimit,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	atomic.AddInt64(&m.requestCount, 1)
	if status >= 400 {
		atomic.AddInt64(&m.errorCount, 1)
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveResults records the outcome of evaluated datapoints
func (m *Metrics) ObserveResults(results []rating.Result) {
	for _, r := range results {
		atomic.AddInt64(&m.evaluationCount, 1)
		m.evaluations.WithLabelValues(string(r.Status)).Inc()
		if r.Classification != nil {
			m.classifications.WithLabelValues(r.Classification.Class).Inc()
		}
		if n := len(r.FormulaErrors); n > 0 {
			m.formulaFailures.Add(float64(n))
		}
	}
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.cacheHits, 1)
	m.cacheRequests.WithLabelValues("hit").Inc()
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.cacheMisses, 1)
	m.cacheRequests.WithLabelValues("miss").Inc()
}

// IncrementRateLimitIPBlock increments IP-based rate limit blocks
func (m *Metrics) IncrementRateLimitIPBlock() {
	m.rateLimit.WithLabelValues("ip_block").Inc()
}

// IncrementRateLimitRedisError increments Redis error count for rate limiting
func (m *Metrics) IncrementRateLimitRedisError() {
	m.rateLimit.WithLabelValues("redis_error").Inc()
}

// IncrementRateLimitFallback increments fallback rate limiter usage count
func (m *Metrics) IncrementRateLimitFallback() {
	m.rateLimit.WithLabelValues("fallback").Inc()
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.requestCount)
	errors := atomic.LoadInt64(&m.errorCount)
	hits := atomic.LoadInt64(&m.cacheHits)
	misses := atomic.LoadInt64(&m.cacheMisses)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = float64(hits) / float64(hits+misses) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.startTime).Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             hits,
		"cache_misses":           misses,
		"cache_hit_rate_percent": cacheHitRate,
		"evaluations":            atomic.LoadInt64(&m.evaluationCount),
		"start_time":             m.startTime.Format(time.RFC3339),
	}
}
