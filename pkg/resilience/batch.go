package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/marketpulse/marketpulse/pkg/errors"
)

// BatchConfig holds batch executor configuration
type BatchConfig struct {
	// Concurrency is the number of items processed at once
	Concurrency int
	// FailFast stops launching new groups once a completed group contains a failure
	FailFast bool
	// LogSuccess emits an info entry per successful item
	LogSuccess bool
}

// DefaultBatchConfig returns batch configuration suitable for refresh runs
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		Concurrency: 5,
	}
}

// BatchItemFunc processes one batch item
type BatchItemFunc func(ctx context.Context, item interface{}) (interface{}, error)

// BatchSuccess records one successful batch item
type BatchSuccess struct {
	Index  int
	Input  interface{}
	Output interface{}
}

// BatchFailure records one failed batch item
type BatchFailure struct {
	Index int
	Input interface{}
	Err   *errors.ClassifiedError
}

// BatchResult summarizes a batch execution. Successes and Failures are
// ordered by input index regardless of completion order; items skipped by
// FailFast appear in neither.
type BatchResult struct {
	Successes   []BatchSuccess
	Failures    []BatchFailure
	Duration    time.Duration
	SuccessRate float64
}

// FirstFailure returns the lowest-index failure, nil when every processed
// item succeeded
func (r *BatchResult) FirstFailure() *BatchFailure {
	if len(r.Failures) == 0 {
		return nil
	}
	return &r.Failures[0]
}

// RunBatch processes items in sequential groups of Concurrency. The items of
// a group start together and are awaited together, so at most Concurrency
// operations are in flight at any moment and no work outlives the call. Each
// item runs through the resilience pipeline under the operation label.
//
// With FailFast enabled, a completed group containing a failure stops the
// batch: in-flight items are still awaited, remaining groups are skipped, and
// the lowest-index failure is returned as the error alongside the partial
// result. Otherwise every item is attempted and the error is nil; callers
// inspect the result for partial failures.
func (m *Manager) RunBatch(ctx context.Context, operation string, items []interface{}, fn BatchItemFunc, config *BatchConfig) (*BatchResult, error) {
	if config == nil {
		config = DefaultBatchConfig()
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var opts *RunOptions
	if config.LogSuccess {
		opts = &RunOptions{LogSuccess: true}
	}

	start := time.Now()
	outputs := make([]interface{}, len(items))
	failures := make([]*errors.ClassifiedError, len(items))

	processed := len(items)
	for groupStart := 0; groupStart < len(items); groupStart += concurrency {
		groupEnd := min(groupStart+concurrency, len(items))

		var wg sync.WaitGroup
		for i := groupStart; i < groupEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()

				output, err := m.RunWithResult(ctx, operation, func(ctx context.Context) (interface{}, error) {
					return fn(ctx, items[idx])
				}, opts)
				if err != nil {
					failures[idx] = err.(*errors.ClassifiedError)
					return
				}
				outputs[idx] = output
			}(i)
		}
		wg.Wait()

		if config.FailFast && hasFailure(failures[groupStart:groupEnd]) {
			processed = groupEnd
			break
		}
	}

	result := &BatchResult{Duration: time.Since(start)}
	for idx := 0; idx < processed; idx++ {
		if failures[idx] != nil {
			result.Failures = append(result.Failures, BatchFailure{
				Index: idx,
				Input: items[idx],
				Err:   failures[idx],
			})
			continue
		}
		result.Successes = append(result.Successes, BatchSuccess{
			Index:  idx,
			Input:  items[idx],
			Output: outputs[idx],
		})
	}

	if len(items) > 0 {
		result.SuccessRate = float64(len(result.Successes)) / float64(len(items))
	} else {
		result.SuccessRate = 1
	}

	if m.metrics != nil {
		m.metrics.RecordBatch(operation, len(result.Successes), len(result.Failures), result.Duration)
	}

	m.logger.Info("Batch completed",
		"operation", operation,
		"items", len(items),
		"successes", len(result.Successes),
		"failures", len(result.Failures),
		"success_rate", result.SuccessRate,
		"duration_ms", result.Duration.Milliseconds(),
	)

	if config.FailFast {
		if first := result.FirstFailure(); first != nil {
			return result, first.Err
		}
	}

	return result, nil
}

func hasFailure(failures []*errors.ClassifiedError) bool {
	for _, err := range failures {
		if err != nil {
			return true
		}
	}
	return false
}
