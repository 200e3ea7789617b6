package resilience

import (
	"context"
	"time"

	"github.com/marketpulse/marketpulse/pkg/errors"
)

// RunOptions tweaks a single Run call. A nil options pointer means defaults.
type RunOptions struct {
	// LogSuccess emits an info entry when the operation succeeds
	LogSuccess bool
}

// Run executes fn under the resilience pipeline. A failure is classified,
// recorded against the operation label, logged once at a severity matching
// its category, and returned as a *errors.ClassifiedError carrying the
// label, a timestamp and the original cause.
func (m *Manager) Run(ctx context.Context, operation string, fn func(context.Context) error, opts *RunOptions) error {
	_, err := m.RunWithResult(ctx, operation, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	}, opts)
	return err
}

// RunWithResult is Run for operations that produce a value
func (m *Manager) RunWithResult(ctx context.Context, operation string, fn func(context.Context) (interface{}, error), opts *RunOptions) (interface{}, error) {
	if m.shortCircuit && m.breaker.IsActive(operation) {
		return nil, m.reject(operation)
	}

	start := time.Now()
	result, err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		return nil, m.fail(operation, err, duration)
	}

	if m.metrics != nil {
		m.metrics.RecordOperation(operation, "success", duration)
	}
	if opts != nil && opts.LogSuccess {
		m.logger.Info("Operation succeeded",
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
		)
	}

	return result, nil
}

// fail runs the failure pipeline: classify, record, maybe trip, log once,
// return the classified error.
func (m *Manager) fail(operation string, cause error, duration time.Duration) *errors.ClassifiedError {
	classified := m.classifier.Classify(cause).WithContext(operation)

	tripped := m.breaker.RecordFailure(operation, classified.Category)

	if m.metrics != nil {
		m.metrics.RecordError(operation, string(classified.Category))
		m.metrics.RecordOperation(operation, "failure", duration)
	}

	if classified.ShouldLog {
		m.logger.Error("Operation failed",
			"operation", operation,
			"category", string(classified.Category),
			"status_code", classified.StatusCode,
			"error", cause.Error(),
			"tripped_breaker", tripped,
		)
	} else {
		m.logger.Warn("Operation rejected",
			"operation", operation,
			"category", string(classified.Category),
			"message", classified.UserMessage,
		)
	}

	return classified
}

// reject fails a call without running it because the operation's breaker is
// active. The rejection is not recorded as a failure: feeding rejections back
// into the tracker would extend the cooldown forever.
func (m *Manager) reject(operation string) *errors.ClassifiedError {
	if m.metrics != nil {
		m.metrics.RecordShortCircuit(operation)
	}

	m.logger.Warn("Circuit breaker active, rejecting call",
		"operation", operation,
	)

	cause := errors.NewServiceUnavailableError(operation).WithDetail("reason", "circuit breaker active")
	return m.classifier.Classify(cause).WithContext(operation)
}
