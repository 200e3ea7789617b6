package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketpulse/marketpulse/internal/cache"
	"github.com/marketpulse/marketpulse/internal/scheduler"
	"github.com/marketpulse/marketpulse/pkg/config"
	"github.com/marketpulse/marketpulse/pkg/health"
	"github.com/marketpulse/marketpulse/pkg/logging"
	"github.com/marketpulse/marketpulse/pkg/metrics"
	"github.com/marketpulse/marketpulse/pkg/resilience"
	"github.com/marketpulse/marketpulse/pkg/tracing"
)

// NewRouter creates and configures the ops API router
func NewRouter(
	cfg *config.Config,
	logger *logging.Logger,
	m *metrics.Metrics,
	tracer *tracing.TracingService,
	healthService *health.Service,
	redisClient *cache.RedisClient,
	quotes *cache.QuoteCache,
	runs *cache.RunCache,
	manager *resilience.Manager,
	sched *scheduler.Scheduler,
) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(ErrorHandlingMiddleware(logger))
	router.Use(CORSMiddleware(&cfg.Server))
	router.Use(SecurityHeadersMiddleware())
	if tracer != nil {
		router.Use(tracer.TracingMiddleware())
	}
	if m != nil {
		router.Use(m.PrometheusMiddleware())
	}
	router.Use(RateLimitMiddleware(redisClient, 100, time.Minute))

	// Health and metrics endpoints
	if healthService != nil {
		router.GET("/health", healthService.Handler())
		router.GET("/health/live", healthService.LivenessHandler())
		router.GET("/health/ready", healthService.ReadinessHandler())
	}
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// API version info
	router.GET("/api/v1", func(c *gin.Context) {
		SuccessResponse(c, gin.H{
			"name":    "MarketPulse API",
			"version": "1.0.0",
			"status":  "ok",
		})
	})

	// Create handlers
	quoteHandler := NewQuoteHandler(quotes, sched.Symbols())
	runHandler := NewRunHandler(runs)
	schedulerHandler := NewSchedulerHandler(sched)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		quotesGroup := v1.Group("/quotes")
		{
			quotesGroup.GET("", quoteHandler.ListQuotes)
			quotesGroup.GET("/:symbol", quoteHandler.GetQuote)
			quotesGroup.DELETE("/:symbol", quoteHandler.InvalidateQuote)
		}

		runsGroup := v1.Group("/runs")
		{
			runsGroup.GET("/last", runHandler.GetLastRun)
		}

		v1.GET("/providers/:provider/status", runHandler.GetProviderStatus)
		v1.GET("/symbols/:symbol/failures", runHandler.GetFailureCount)

		v1.GET("/resilience/stats", func(c *gin.Context) {
			SuccessResponse(c, manager.Statistics())
		})

		schedulerGroup := v1.Group("/scheduler")
		{
			schedulerGroup.GET("/stats", schedulerHandler.GetStats)
			schedulerGroup.POST("/refresh", schedulerHandler.TriggerRefresh)
		}
	}

	// Catch-all route for undefined endpoints
	router.NoRoute(func(c *gin.Context) {
		NotFoundResponse(c, "Endpoint not found")
	})

	return router
}
