package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Redis      RedisConfig      `json:"redis"`
	Cache      CacheConfig      `json:"cache"`
	MarketData MarketDataConfig `json:"market_data"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Resilience ResilienceConfig `json:"resilience"`
	Alerts     AlertsConfig     `json:"alerts"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Tracing    TracingConfig    `json:"tracing"`
}

// ServerConfig contains the ops HTTP server configuration
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// CacheConfig contains quote cache configuration
type CacheConfig struct {
	QuoteTTL     time.Duration `json:"quote_ttl"`
	HotCacheSize int           `json:"hot_cache_size"`
}

// MarketDataConfig contains upstream market data provider configuration
type MarketDataConfig struct {
	Provider       string        `json:"provider"`
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"api_key"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RateLimit      float64       `json:"rate_limit"`
	RateBurst      int           `json:"rate_burst"`
}

// SchedulerConfig contains quote refresh scheduling configuration
type SchedulerConfig struct {
	Interval        time.Duration `json:"interval"`
	Symbols         []string      `json:"symbols"`
	Concurrency     int           `json:"concurrency"`
	FailFast        bool          `json:"fail_fast"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// ResilienceConfig contains failure tracking and retry configuration
type ResilienceConfig struct {
	FailureWindow    time.Duration `json:"failure_window"`
	TripThreshold    int           `json:"trip_threshold"`
	Cooldown         time.Duration `json:"cooldown"`
	ShortCircuit     bool          `json:"short_circuit"`
	MaxRetries       int           `json:"max_retries"`
	RetryBaseDelay   time.Duration `json:"retry_base_delay"`
	RetryExponential bool          `json:"retry_exponential"`
}

// AlertsConfig contains alert escalation configuration
type AlertsConfig struct {
	WebhookURL  string        `json:"webhook_url"`
	MinInterval time.Duration `json:"min_interval"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// TracingConfig contains distributed tracing configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	JaegerEndpoint string  `json:"jaeger_endpoint"`
	SamplingRate   float64 `json:"sampling_rate"`
	Environment    string  `json:"environment"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:           getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			AllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Cache: CacheConfig{
			QuoteTTL:     getEnvDuration("CACHE_QUOTE_TTL", 5*time.Minute),
			HotCacheSize: getEnvInt("CACHE_HOT_SIZE", 256),
		},
		MarketData: MarketDataConfig{
			Provider:       getEnvString("MARKET_DATA_PROVIDER", "alphavantage"),
			BaseURL:        getEnvString("MARKET_DATA_BASE_URL", ""),
			APIKey:         getEnvString("MARKET_DATA_API_KEY", ""),
			RequestTimeout: getEnvDuration("MARKET_DATA_REQUEST_TIMEOUT", 10*time.Second),
			RateLimit:      getEnvFloat("MARKET_DATA_RATE_LIMIT", 5.0),
			RateBurst:      getEnvInt("MARKET_DATA_RATE_BURST", 5),
		},
		Scheduler: SchedulerConfig{
			Interval:        getEnvDuration("SCHEDULER_INTERVAL", 1*time.Minute),
			Symbols:         getEnvStringSlice("SCHEDULER_SYMBOLS", []string{"AAPL", "MSFT", "GOOG", "AMZN", "TSLA"}),
			Concurrency:     getEnvInt("SCHEDULER_CONCURRENCY", 5),
			FailFast:        getEnvBool("SCHEDULER_FAIL_FAST", false),
			ShutdownTimeout: getEnvDuration("SCHEDULER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Resilience: ResilienceConfig{
			FailureWindow:    getEnvDuration("CIRCUIT_FAILURE_WINDOW", 5*time.Minute),
			TripThreshold:    getEnvInt("CIRCUIT_TRIP_THRESHOLD", 10),
			Cooldown:         getEnvDuration("CIRCUIT_COOLDOWN", 15*time.Minute),
			ShortCircuit:     getEnvBool("CIRCUIT_SHORT_CIRCUIT", false),
			MaxRetries:       getEnvInt("RETRY_MAX_RETRIES", 3),
			RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 1*time.Second),
			RetryExponential: getEnvBool("RETRY_EXPONENTIAL", true),
		},
		Alerts: AlertsConfig{
			WebhookURL:  getEnvString("ALERT_WEBHOOK_URL", ""),
			MinInterval: getEnvDuration("ALERT_MIN_INTERVAL", 1*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		Metrics: MetricsConfig{
			Enabled:   getEnvBool("METRICS_ENABLED", true),
			Namespace: getEnvString("METRICS_NAMESPACE", "marketpulse"),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("TRACING_ENABLED", false),
			JaegerEndpoint: getEnvString("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			SamplingRate:   getEnvFloat("TRACING_SAMPLING_RATE", 0.1),
			Environment:    getEnvString("ENVIRONMENT", "development"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MarketData.BaseURL == "" {
		return fmt.Errorf("market data base URL is required")
	}

	if len(c.Scheduler.Symbols) == 0 {
		return fmt.Errorf("at least one symbol to track is required")
	}

	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("scheduler concurrency must be at least 1")
	}

	if c.Resilience.TripThreshold < 1 {
		return fmt.Errorf("circuit trip threshold must be at least 1")
	}

	if c.Resilience.FailureWindow <= 0 || c.Resilience.Cooldown <= 0 {
		return fmt.Errorf("circuit failure window and cooldown must be positive")
	}

	return nil
}

// RedisURL returns the Redis connection URL
func (c *Config) RedisURL() string {
	if c.Redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d",
			c.Redis.Password,
			c.Redis.Host,
			c.Redis.Port,
			c.Redis.DB,
		)
	}
	return fmt.Sprintf("redis://%s:%d/%d",
		c.Redis.Host,
		c.Redis.Port,
		c.Redis.DB,
	)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
