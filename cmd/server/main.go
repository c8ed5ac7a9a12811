package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/cache"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/config"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/database"
	apperrors "github.com/ZanzyTHEbar/corrosion-rating/internal/errors"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/middleware"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/monitoring"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/ratelimit"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/resilience"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/security"
	"github.com/gin-gonic/gin"
)

const version = "1.0.0"

func main() {
	configFile := flag.String("config", "", "path to a corrosion.yaml or corrosion.json config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := monitoring.NewLogger(cfg.LogLevel)
	slog.SetDefault(appLogger.Logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	var db *database.DB
	err = resilience.Retry(startCtx, func(ctx context.Context) error {
		var openErr error
		db, openErr = database.Open(ctx, database.Config{
			Driver:  cfg.DBDriver,
			DSN:     cfg.DBDSN,
			DataDir: cfg.DataDir,
		})
		return openErr
	})
	cancelStart()
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer apperrors.SafeClose(db, "database")

	redisClient, err := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("Continuing without Redis", "error", err)
	}
	defer apperrors.SafeClose(redisClient, "redis")

	appMetrics := monitoring.NewMetrics()

	engine := rating.NewEngine(
		rating.WithWorkers(cfg.BatchWorkers),
		rating.WithLogger(appLogger.Logger),
	)
	service := database.NewAssessmentService(database.NewRepository(db), engine, appLogger.Logger)

	if cfg.NormsDir != "" {
		seedCtx, cancelSeed := context.WithTimeout(context.Background(), time.Minute)
		if err := seedNorms(seedCtx, service, cfg.NormsDir, appLogger); err != nil {
			appLogger.ConfigurationLogger("norms_dir "+cfg.NormsDir, err)
		}
		cancelSeed()
	}

	appCache := cache.NewCache(cfg.CacheTTL, redisClient.GetClient())
	defer appCache.Close()

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		IPLimitPerMin:       cfg.RateLimitPerMin,
		EvaluateLimitPerMin: cfg.EvaluatePerMin,
		BurstMultiplier:     1,
		CleanupInterval:     time.Hour,
	}, appMetrics)
	defer limiter.Close()

	srv := &server{
		service:  service,
		db:       db,
		redis:    redisClient,
		cache:    appCache,
		limiter:  limiter,
		metrics:  appMetrics,
		logger:   appLogger,
		compress: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		maxBody:  cfg.MaxBodyBytes,
		security: security.NewSecurityMiddleware(security.SecurityConfig{
			MaxBodyBytes:   cfg.MaxBodyBytes,
			AllowedOrigins: cfg.CORSOrigins,
			RequestTimeout: cfg.RequestTimeout,
		}),
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := srv.routes()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.SystemLogger("server_start", "listening on :"+cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}
