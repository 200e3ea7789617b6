package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/marketpulse/marketpulse/pkg/errors"
)

// RetryConfig holds retry executor configuration
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the delay between attempts
	MaxDelay time.Duration
	// Exponential doubles the delay after each retry, otherwise every delay is BaseDelay
	Exponential bool
	// Jitter adds up to 10% random variation to each delay to avoid thundering herd
	Jitter bool
	// RetryableCategories lists the categories worth retrying, nil means DefaultRetryableCategories
	RetryableCategories []errors.Category
	// OnRetry is called before each retry with the attempt that just failed and the planned delay
	OnRetry func(attempt int, delay time.Duration, err *errors.ClassifiedError)
}

// DefaultRetryConfig returns retry configuration suitable for upstream calls
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Exponential: true,
	}
}

// DefaultRetryableCategories returns the categories retried when the config
// does not name any: transient failures where a later attempt can win.
func DefaultRetryableCategories() []errors.Category {
	return []errors.Category{
		errors.CategoryTimeout,
		errors.CategoryRateLimit,
		errors.CategoryServiceUnavailable,
		errors.CategoryExternalAPI,
	}
}

// RunWithRetry executes fn under the resilience pipeline, retrying failures
// whose category is retryable. Every attempt runs through the full
// classify/record/log pipeline; the error from the final attempt is returned
// unchanged.
func (m *Manager) RunWithRetry(ctx context.Context, operation string, fn func(context.Context) error, config *RetryConfig) error {
	_, err := m.RunWithRetryResult(ctx, operation, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	}, config)
	return err
}

// RunWithRetryResult is RunWithRetry for operations that produce a value
func (m *Manager) RunWithRetryResult(ctx context.Context, operation string, fn func(context.Context) (interface{}, error), config *RetryConfig) (interface{}, error) {
	if config == nil {
		config = m.retry
	}
	if config == nil {
		config = DefaultRetryConfig()
	}
	retryable := config.RetryableCategories
	if retryable == nil {
		retryable = DefaultRetryableCategories()
	}
	attempts := config.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr *errors.ClassifiedError

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := m.RunWithResult(ctx, operation, fn, nil)
		if err == nil {
			if attempt > 1 {
				m.logger.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempt,
				)
			}
			return result, nil
		}

		classified, ok := err.(*errors.ClassifiedError)
		if !ok {
			return nil, err
		}
		lastErr = classified

		if !categoryIn(retryable, classified.Category) || attempt == attempts {
			break
		}

		delay := retryDelay(config, attempt)

		m.logger.Warn("Operation failed, retrying",
			"operation", operation,
			"category", string(classified.Category),
			"attempt", attempt,
			"max_attempts", attempts,
			"delay_ms", delay.Milliseconds(),
		)
		if config.OnRetry != nil {
			config.OnRetry(attempt, delay, classified)
		}
		if m.metrics != nil {
			m.metrics.RecordRetry(operation)
		}

		select {
		case <-ctx.Done():
			// Keep the uniform error shape: a cancelled backoff sleep is
			// still reported as a classified error for this operation.
			return nil, m.classifier.Classify(ctx.Err()).WithContext(operation)
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// retryDelay computes the sleep before the retry that follows the given
// attempt: BaseDelay * 2^(attempt-1) under exponential backoff, BaseDelay
// otherwise, capped at MaxDelay.
func retryDelay(config *RetryConfig, attempt int) time.Duration {
	delay := float64(config.BaseDelay)
	if config.Exponential {
		delay = float64(config.BaseDelay) * math.Pow(2, float64(attempt-1))
	}

	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitter := rand.Float64() * 0.1 * delay
		delay += jitter
	}

	return time.Duration(delay)
}

func categoryIn(categories []errors.Category, category errors.Category) bool {
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}
