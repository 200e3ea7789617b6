package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/marketpulse/marketpulse/pkg/errors"
)

func TestManager_RunWithRetry_SuccessOnFirstAttempt(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	attempts := 0
	err := manager.RunWithRetry(context.Background(), "fetch_quote", func(ctx context.Context) error {
		attempts++
		return nil
	}, DefaultRetryConfig())

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestManager_RunWithRetry_AttemptBound(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:  3,
		BaseDelay:   10 * time.Millisecond,
		Exponential: true,
	}

	var delays []time.Duration
	config.OnRetry = func(attempt int, delay time.Duration, err *appErrors.ClassifiedError) {
		delays = append(delays, delay)
	}

	attempts := 0
	start := time.Now()
	err := manager.RunWithRetry(context.Background(), "fetch_quote", func(ctx context.Context) error {
		attempts++
		return appErrors.NewTimeoutError("fetch_quote")
	}, config)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 4, attempts, "maxRetries=3 means exactly 4 executions")

	// Backoff doubles: 10ms, 20ms, 40ms
	require.Len(t, delays, 3)
	assert.InDelta(t, 10*time.Millisecond, delays[0], float64(2*time.Millisecond))
	assert.InDelta(t, 20*time.Millisecond, delays[1], float64(2*time.Millisecond))
	assert.InDelta(t, 40*time.Millisecond, delays[2], float64(2*time.Millisecond))
	assert.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
}

func TestManager_RunWithRetry_NonRetryableFailsFast(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:  3,
		BaseDelay:   10 * time.Millisecond,
		Exponential: true,
	}

	attempts := 0
	err := manager.RunWithRetry(context.Background(), "fetch_quote", func(ctx context.Context) error {
		attempts++
		return appErrors.NewValidationError("symbol is required")
	}, config)

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "validation errors must not be retried")
	assert.Equal(t, appErrors.CategoryValidation, err.(*appErrors.ClassifiedError).Category)
}

func TestManager_RunWithRetry_ReturnsLastErrorUnchanged(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:  2,
		BaseDelay:   5 * time.Millisecond,
		Exponential: true,
	}

	attempts := 0
	err := manager.RunWithRetry(context.Background(), "fetch_quote", func(ctx context.Context) error {
		attempts++
		return appErrors.NewTimeoutError(fmt.Sprintf("attempt %d", attempts))
	}, config)

	require.Error(t, err)
	classified := err.(*appErrors.ClassifiedError)
	assert.Equal(t, appErrors.CategoryTimeout, classified.Category)
	assert.Contains(t, classified.Cause.Error(), "attempt 3", "the final attempt's error is returned as-is")
}

func TestManager_RunWithRetry_FixedDelay(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:  2,
		BaseDelay:   10 * time.Millisecond,
		Exponential: false,
	}

	var delays []time.Duration
	config.OnRetry = func(attempt int, delay time.Duration, err *appErrors.ClassifiedError) {
		delays = append(delays, delay)
	}

	manager.RunWithRetry(context.Background(), "fetch_quote", func(ctx context.Context) error {
		return appErrors.NewTimeoutError("fetch_quote")
	}, config)

	require.Len(t, delays, 2)
	assert.Equal(t, 10*time.Millisecond, delays[0])
	assert.Equal(t, 10*time.Millisecond, delays[1])
}

func TestManager_RunWithRetry_JitterStaysWithinBounds(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:  3,
		BaseDelay:   10 * time.Millisecond,
		Exponential: false,
		Jitter:      true,
	}

	var delays []time.Duration
	config.OnRetry = func(attempt int, delay time.Duration, err *appErrors.ClassifiedError) {
		delays = append(delays, delay)
	}

	manager.RunWithRetry(context.Background(), "fetch_quote", func(ctx context.Context) error {
		return appErrors.NewTimeoutError("fetch_quote")
	}, config)

	require.Len(t, delays, 3)
	for _, delay := range delays {
		assert.GreaterOrEqual(t, delay, 10*time.Millisecond)
		assert.LessOrEqual(t, delay, 11*time.Millisecond)
	}
}

func TestManager_RunWithRetry_MaxDelayCap(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:  3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    15 * time.Millisecond,
		Exponential: true,
	}

	var delays []time.Duration
	config.OnRetry = func(attempt int, delay time.Duration, err *appErrors.ClassifiedError) {
		delays = append(delays, delay)
	}

	manager.RunWithRetry(context.Background(), "fetch_quote", func(ctx context.Context) error {
		return appErrors.NewTimeoutError("fetch_quote")
	}, config)

	require.Len(t, delays, 3)
	assert.Equal(t, 10*time.Millisecond, delays[0])
	assert.Equal(t, 15*time.Millisecond, delays[1])
	assert.Equal(t, 15*time.Millisecond, delays[2])
}

func TestManager_RunWithRetry_ContextCancellation(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:  5,
		BaseDelay:   100 * time.Millisecond,
		Exponential: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	attempts := 0
	err := manager.RunWithRetry(ctx, "fetch_quote", func(ctx context.Context) error {
		attempts++
		return appErrors.NewTimeoutError("fetch_quote")
	}, config)

	require.Error(t, err)
	classified, ok := err.(*appErrors.ClassifiedError)
	require.True(t, ok, "cancellation keeps the classified error shape")
	assert.Equal(t, appErrors.CategoryTimeout, classified.Category)
	assert.Equal(t, "fetch_quote", classified.Context)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts, "cancellation interrupts the backoff sleep")
}

func TestManager_RunWithRetry_SuccessAfterRetriesLogsInfo(t *testing.T) {
	manager, buf := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:  3,
		BaseDelay:   5 * time.Millisecond,
		Exponential: true,
	}

	attempts := 0
	err := manager.RunWithRetry(context.Background(), "fetch_quote", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return appErrors.NewServiceUnavailableError("provider")
		}
		return nil
	}, config)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	lines := logLines(t, buf)
	assert.Len(t, linesWithMessage(lines, "Operation failed, retrying"), 2)
	succeeded := linesWithMessage(lines, "Operation succeeded after retry")
	require.Len(t, succeeded, 1)
	assert.Equal(t, "info", succeeded[0]["level"])
	assert.Equal(t, float64(3), succeeded[0]["attempt"])
}

func TestManager_RunWithRetry_CustomRetryableCategories(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:          2,
		BaseDelay:           5 * time.Millisecond,
		Exponential:         true,
		RetryableCategories: []appErrors.Category{appErrors.CategoryDatabase},
	}

	// Database errors become retryable
	attempts := 0
	manager.RunWithRetry(context.Background(), "store_quote", func(ctx context.Context) error {
		attempts++
		return appErrors.NewDatabaseError("deadlock detected")
	}, config)
	assert.Equal(t, 3, attempts)

	// Timeouts are no longer in the retryable set
	attempts = 0
	manager.RunWithRetry(context.Background(), "store_quote", func(ctx context.Context) error {
		attempts++
		return appErrors.NewTimeoutError("store_quote")
	}, config)
	assert.Equal(t, 1, attempts)
}

func TestManager_RunWithRetry_EveryAttemptIsRecorded(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:  2,
		BaseDelay:   5 * time.Millisecond,
		Exponential: true,
	}

	manager.RunWithRetry(context.Background(), "fetch_quote", func(ctx context.Context) error {
		return appErrors.NewTimeoutError("fetch_quote")
	}, config)

	assert.Equal(t, 3, manager.Statistics().ErrorsByOperation["fetch_quote"])
}

func TestManager_RunWithRetryResult(t *testing.T) {
	manager, _ := newTestManager(t, nil)

	config := &RetryConfig{
		MaxRetries:  2,
		BaseDelay:   5 * time.Millisecond,
		Exponential: true,
	}

	attempts := 0
	result, err := manager.RunWithRetryResult(context.Background(), "fetch_quote", func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 2 {
			return nil, appErrors.NewTimeoutError("fetch_quote")
		}
		return "quote", nil
	}, config)

	require.NoError(t, err)
	assert.Equal(t, "quote", result)
	assert.Equal(t, 2, attempts)
}

func TestDefaultRetryableCategories(t *testing.T) {
	retryable := DefaultRetryableCategories()

	assert.ElementsMatch(t, []appErrors.Category{
		appErrors.CategoryTimeout,
		appErrors.CategoryRateLimit,
		appErrors.CategoryServiceUnavailable,
		appErrors.CategoryExternalAPI,
	}, retryable)

	// Everything else fails fast
	assert.False(t, categoryIn(retryable, appErrors.CategoryValidation))
	assert.False(t, categoryIn(retryable, appErrors.CategoryInternal))
	assert.False(t, categoryIn(retryable, appErrors.CategoryDatabase))
}
