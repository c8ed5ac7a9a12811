// Package middleware holds HTTP middleware that is not tied to a domain
// package.
package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // smallest body that is compressed, in bytes
	CompressionLevel int      // gzip level 1-9
	ContentTypes     []string // content types eligible for compression
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes:     []string{"application/json", "text/plain"},
	}
}

// CompressionMiddleware gzips large responses for clients that accept it.
// Analyses of norms with many datapoints are the main beneficiary.
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	if config.CompressionLevel < gzip.HuffmanOnly || config.CompressionLevel > gzip.BestCompression {
		config.CompressionLevel = gzip.DefaultCompression
	}
	cm := &CompressionMiddleware{config: config, stats: &CompressionStats{}}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, cm.config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler buffers the response of the remaining chain and writes it gzipped
// when it is large enough and of an eligible content type.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodHead || !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		original := c.Writer
		buffered := &bufferedWriter{ResponseWriter: original, status: http.StatusOK}
		c.Writer = buffered
		defer func() { c.Writer = original }()

		c.Next()

		cm.flush(original, buffered)
	}
}

func (cm *CompressionMiddleware) flush(w gin.ResponseWriter, b *bufferedWriter) {
	body := b.body.Bytes()
	header := w.Header()

	if len(body) < cm.config.MinSize || header.Get("Content-Encoding") != "" || !cm.shouldCompress(header.Get("Content-Type")) {
		cm.stats.record(len(body), len(body), false)
		w.WriteHeader(b.status)
		if len(body) > 0 {
			_, _ = w.Write(body)
		} else {
			w.WriteHeaderNow()
		}
		return
	}

	var out bytes.Buffer
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(&out)
	_, _ = gz.Write(body)
	_ = gz.Close()
	cm.pool.Put(gz)

	header.Set("Content-Encoding", "gzip")
	header.Add("Vary", "Accept-Encoding")
	header.Set("Content-Length", strconv.Itoa(out.Len()))
	cm.stats.record(len(body), out.Len(), true)

	w.WriteHeader(b.status)
	_, _ = w.Write(out.Bytes())
}

// shouldCompress checks if the content type should be compressed
func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}

// bufferedWriter holds the status and body until the chain has finished.
type bufferedWriter struct {
	gin.ResponseWriter
	body    bytes.Buffer
	status  int
	written bool
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.written {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() { w.written = true }

func (w *bufferedWriter) Write(data []byte) (int, error) {
	w.written = true
	return w.body.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.written = true
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int   { return w.status }
func (w *bufferedWriter) Size() int     { return w.body.Len() }
func (w *bufferedWriter) Written() bool { return w.written }
func (w *bufferedWriter) Flush()        {}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      atomic.Int64
	CompressedRequests atomic.Int64
	TotalBytes         atomic.Int64
	CompressedBytes    atomic.Int64
}

func (cs *CompressionStats) record(originalSize, writtenSize int, compressed bool) {
	cs.TotalRequests.Add(1)
	cs.TotalBytes.Add(int64(originalSize))
	if compressed {
		cs.CompressedRequests.Add(1)
		cs.CompressedBytes.Add(int64(writtenSize))
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	total := cs.TotalRequests.Load()
	compressed := cs.CompressedRequests.Load()
	totalBytes := cs.TotalBytes.Load()
	compressedBytes := cs.CompressedBytes.Load()

	ratio := float64(0)
	if totalBytes > 0 {
		ratio = float64(compressedBytes) / float64(totalBytes)
	}

	return map[string]interface{}{
		"total_requests":      total,
		"compressed_requests": compressed,
		"total_bytes":         totalBytes,
		"compressed_bytes":    compressedBytes,
		"compression_ratio":   ratio,
	}
}
