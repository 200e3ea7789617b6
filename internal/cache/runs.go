package cache

import (
	"context"
	"time"

	"github.com/marketpulse/marketpulse/pkg/types"
)

// RunCache caches refresh-cycle outcomes and per-symbol failure counters so
// the ops API can answer without touching the scheduler
type RunCache struct {
	service *Service
}

// NewRunCache creates a new refresh run cache
func NewRunCache(service *Service) *RunCache {
	return &RunCache{
		service: service,
	}
}

// SetLastRun caches the most recent refresh run
func (rc *RunCache) SetLastRun(ctx context.Context, run *types.RefreshRun) error {
	key := CacheKey{Prefix: PrefixRefreshRun, ID: "last"}
	return rc.service.Set(ctx, key, run, rc.service.config.RefreshRunTTL)
}

// GetLastRun retrieves the most recent refresh run
func (rc *RunCache) GetLastRun(ctx context.Context) (*types.RefreshRun, error) {
	key := CacheKey{Prefix: PrefixRefreshRun, ID: "last"}
	var run types.RefreshRun
	if err := rc.service.Get(ctx, key, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// SetProviderStatus caches the last observed provider health
func (rc *RunCache) SetProviderStatus(ctx context.Context, status *types.ProviderStatus) error {
	key := CacheKey{Prefix: PrefixProviderStatus, ID: status.Provider}
	return rc.service.Set(ctx, key, status, rc.service.config.ProviderStatusTTL)
}

// GetProviderStatus retrieves the last observed provider health
func (rc *RunCache) GetProviderStatus(ctx context.Context, provider string) (*types.ProviderStatus, error) {
	key := CacheKey{Prefix: PrefixProviderStatus, ID: provider}
	var status types.ProviderStatus
	if err := rc.service.Get(ctx, key, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// IncrementFailureCount increments the rolling failure counter for a symbol
func (rc *RunCache) IncrementFailureCount(ctx context.Context, symbol string) (int64, error) {
	key := CacheKey{Prefix: PrefixFailureCount, ID: symbol}
	return rc.service.Increment(ctx, key, 1, 24*time.Hour)
}

// FailureCount returns the rolling failure counter for a symbol
func (rc *RunCache) FailureCount(ctx context.Context, symbol string) (int64, error) {
	key := CacheKey{Prefix: PrefixFailureCount, ID: symbol}
	return rc.service.GetCounter(ctx, key)
}

// ResetFailureCount clears the rolling failure counter for a symbol
func (rc *RunCache) ResetFailureCount(ctx context.Context, symbol string) error {
	key := CacheKey{Prefix: PrefixFailureCount, ID: symbol}
	return rc.service.Delete(ctx, key)
}
