package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse/internal/api"
	"github.com/marketpulse/marketpulse/internal/cache"
	"github.com/marketpulse/marketpulse/internal/marketdata"
	"github.com/marketpulse/marketpulse/internal/notify"
	"github.com/marketpulse/marketpulse/internal/scheduler"
	"github.com/marketpulse/marketpulse/pkg/alerting"
	"github.com/marketpulse/marketpulse/pkg/config"
	"github.com/marketpulse/marketpulse/pkg/health"
	"github.com/marketpulse/marketpulse/pkg/logging"
	"github.com/marketpulse/marketpulse/pkg/metrics"
	"github.com/marketpulse/marketpulse/pkg/resilience"
	"github.com/marketpulse/marketpulse/pkg/tracing"
	"github.com/marketpulse/marketpulse/pkg/types"
)

const (
	serviceName    = "marketpulse"
	serviceVersion = "1.0.0"
)

func main() {
	// Load .env if present, real environments set variables directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: serviceName,
		Version:     serviceVersion,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	// Initialize metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(&metrics.Config{
			Namespace: cfg.Metrics.Namespace,
			Enabled:   true,
		})
	}

	// Initialize tracing
	var tracer *tracing.TracingService
	if cfg.Tracing.Enabled {
		tracer, err = tracing.NewTracingService(&tracing.Config{
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			Environment:    cfg.Tracing.Environment,
			JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
			SamplingRate:   cfg.Tracing.SamplingRate,
			Enabled:        true,
		})
		if err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Tracing shutdown failed", "error", err.Error())
			}
		}()
	}

	// Connect to Redis, waiting out a slow-starting instance
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	redisClient, err := cache.NewRedisClientWithRetry(connectCtx, &cfg.Redis, 2*time.Minute, logger)
	connectCancel()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	logger.Info("Redis connection established",
		"host", cfg.Redis.Host,
		"port", cfg.Redis.Port,
	)

	// Build the cache layers
	cacheConfig := cache.DefaultConfig()
	cacheConfig.QuoteTTL = cfg.Cache.QuoteTTL
	cacheService := cache.NewService(redisClient, cacheConfig)

	quotes, err := cache.NewQuoteCache(cacheService, cfg.Cache.HotCacheSize, logger, m)
	if err != nil {
		log.Fatalf("Failed to create quote cache: %v", err)
	}
	runs := cache.NewRunCache(cacheService)

	// Alerting: log channel always, webhook channel when configured
	alertManager := alerting.NewManager(&alerting.Config{
		Enabled:     true,
		MinInterval: cfg.Alerts.MinInterval,
	}, logger, alerting.NewLogChannel(logger))

	if cfg.Alerts.WebhookURL != "" {
		zapLogger, zapErr := zap.NewProduction()
		if zapErr != nil {
			zapLogger = zap.NewNop()
		}
		defer func() { _ = zapLogger.Sync() }()
		alertManager.AddChannel(notify.NewWebhookChannel(cfg.Alerts.WebhookURL, zapLogger))
		logger.Info("Alert webhook channel enabled")
	}

	// Resilience manager, shared by every collaborator
	manager := resilience.NewManager(&resilience.Config{
		FailureWindow: cfg.Resilience.FailureWindow,
		TripThreshold: cfg.Resilience.TripThreshold,
		Cooldown:      cfg.Resilience.Cooldown,
		ShortCircuit:  cfg.Resilience.ShortCircuit,
		Logger:        logger,
		Metrics:       m,
		Alerts:        alertManager,
		Retry: &resilience.RetryConfig{
			MaxRetries:  cfg.Resilience.MaxRetries,
			BaseDelay:   cfg.Resilience.RetryBaseDelay,
			MaxDelay:    30 * time.Second,
			Exponential: cfg.Resilience.RetryExponential,
			Jitter:      true,
		},
	})

	// Upstream market data client
	client, err := marketdata.NewClient(&cfg.MarketData, manager, logger, m, tracer)
	if err != nil {
		log.Fatalf("Failed to create market data client: %v", err)
	}

	// Refresh scheduler
	sched, err := scheduler.New(&cfg.Scheduler, client, quotes, runs, manager, logger, m, tracer)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	if err := sched.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Health checks. The upstream probe doubles as the provider status
	// recorder the dashboard reads.
	healthService := health.NewService(logger, health.DefaultConfig())
	healthService.RegisterChecker("redis", health.NewRedisChecker(redisClient, "redis"))
	healthService.RegisterChecker("circuit_breakers", health.NewCircuitBreakerChecker(manager, "circuit_breakers"))
	healthService.RegisterChecker("upstream", health.NewCustomChecker("upstream", func(ctx context.Context) (health.Status, string, error) {
		start := time.Now()
		pingErr := client.Ping(ctx)

		status := &types.ProviderStatus{
			Provider:  client.Provider(),
			Healthy:   pingErr == nil,
			Latency:   time.Since(start).Milliseconds(),
			CheckedAt: time.Now().UTC(),
		}
		if pingErr != nil {
			status.Error = pingErr.Error()
		}
		if storeErr := runs.SetProviderStatus(ctx, status); storeErr != nil {
			logger.Warn("Failed to store provider status", "error", storeErr.Error())
		}

		if pingErr != nil {
			return health.StatusUnhealthy, "provider is unreachable", pingErr
		}
		return health.StatusHealthy, "provider responded", nil
	}))

	// Ops HTTP server
	router := api.NewRouter(cfg, logger, m, tracer, healthService, redisClient, quotes, runs, manager, sched)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting ops server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Periodic gauge sampling
	var collector *metrics.MetricsCollector
	if m != nil {
		collector = metrics.NewMetricsCollector(m, 15*time.Second, func(m *metrics.Metrics) {
			stats := redisClient.Stats()
			m.UpdateRedisConnections(int(stats.TotalConns), int(stats.IdleConns), int(stats.StaleConns))
			m.UpdateCacheHitRatio("quotes", quotes.HitRatio())
		})
		go collector.Start(context.Background())
	}

	logger.Info("MarketPulse started",
		"provider", cfg.MarketData.Provider,
		"symbols", len(cfg.Scheduler.Symbols),
		"interval", cfg.Scheduler.Interval.String(),
	)

	// Wait for interrupt signal to gracefully shut everything down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	if collector != nil {
		collector.Stop()
	}
	if err := sched.Stop(); err != nil {
		logger.Warn("Scheduler shutdown failed", "error", err.Error())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
