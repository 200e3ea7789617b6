package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketpulse/marketpulse/pkg/errors"
)

// Service provides caching functionality for frequently accessed data
type Service struct {
	redis  *RedisClient
	config *Config
}

// Config holds cache configuration
type Config struct {
	DefaultTTL        time.Duration `json:"default_ttl"`
	QuoteTTL          time.Duration `json:"quote_ttl"`
	RefreshRunTTL     time.Duration `json:"refresh_run_ttl"`
	ProviderStatusTTL time.Duration `json:"provider_status_ttl"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL:        1 * time.Hour,
		QuoteTTL:          5 * time.Minute,
		RefreshRunTTL:     24 * time.Hour,
		ProviderStatusTTL: 1 * time.Minute,
	}
}

// NewService creates a new cache service
func NewService(redis *RedisClient, config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}

	return &Service{
		redis:  redis,
		config: config,
	}
}

// Redis returns the underlying Redis client
func (s *Service) Redis() *RedisClient {
	return s.redis
}

// CacheKey generates cache keys with consistent prefixes
type CacheKey struct {
	Prefix string
	ID     string
}

// String returns the formatted cache key
func (ck CacheKey) String() string {
	return fmt.Sprintf("%s:%s", ck.Prefix, ck.ID)
}

// Cache key prefixes
const (
	PrefixQuote          = "quote"
	PrefixRefreshRun     = "refresh_run"
	PrefixProviderStatus = "provider_status"
	PrefixFailureCount   = "failure_count"
)

// Set stores a value in cache with the specified TTL
func (s *Service) Set(ctx context.Context, key CacheKey, value interface{}, ttl time.Duration) error {
	data, err := s.serialize(value)
	if err != nil {
		return errors.NewInternalError("failed to serialize cache value").WithCause(err)
	}

	if ttl == 0 {
		ttl = s.config.DefaultTTL
	}

	return s.redis.Set(ctx, key.String(), data, ttl)
}

// Get retrieves a value from cache
func (s *Service) Get(ctx context.Context, key CacheKey, dest interface{}) error {
	data, err := s.redis.Get(ctx, key.String())
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.NewNotFoundError("cache key")
		}
		return err
	}

	if err := s.deserialize(data, dest); err != nil {
		return errors.NewInternalError("failed to deserialize cache value").WithCause(err)
	}

	return nil
}

// Delete removes a value from cache
func (s *Service) Delete(ctx context.Context, key CacheKey) error {
	_, err := s.redis.Del(ctx, key.String())
	return err
}

// Exists checks if a key exists in cache
func (s *Service) Exists(ctx context.Context, key CacheKey) (bool, error) {
	count, err := s.redis.Exists(ctx, key.String())
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Increment atomically increments a counter
func (s *Service) Increment(ctx context.Context, key CacheKey, delta int64, ttl time.Duration) (int64, error) {
	result, err := s.redis.Client().IncrBy(ctx, key.String(), delta).Result()
	if err != nil {
		return 0, errors.NewCacheError("incr", "failed to increment counter").WithCause(err)
	}

	if ttl > 0 {
		if err := s.redis.Expire(ctx, key.String(), ttl); err != nil {
			return result, err
		}
	}

	return result, nil
}

// GetCounter retrieves a counter value
func (s *Service) GetCounter(ctx context.Context, key CacheKey) (int64, error) {
	result, err := s.redis.Client().Get(ctx, key.String()).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, errors.NewCacheError("get", "failed to get counter").WithCause(err)
	}
	return result, nil
}

// InvalidatePattern removes all keys matching a pattern
func (s *Service) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := s.redis.Keys(ctx, pattern)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	_, err = s.redis.Del(ctx, keys...)
	return err
}

// TTL returns the time to live for a key
func (s *Service) TTL(ctx context.Context, key CacheKey) (time.Duration, error) {
	return s.redis.TTL(ctx, key.String())
}

// Extend extends the TTL of a key
func (s *Service) Extend(ctx context.Context, key CacheKey, ttl time.Duration) error {
	return s.redis.Expire(ctx, key.String(), ttl)
}

// serialize converts a value to JSON
func (s *Service) serialize(value interface{}) (string, error) {
	if str, ok := value.(string); ok {
		return str, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// deserialize converts JSON to a value
func (s *Service) deserialize(data string, dest interface{}) error {
	if str, ok := dest.(*string); ok {
		*str = data
		return nil
	}

	return json.Unmarshal([]byte(data), dest)
}
