package resilience

import (
	"sync"
	"time"

	"github.com/marketpulse/marketpulse/pkg/errors"
)

// frequencyKey identifies one failure stream: an operation label paired with
// an error category.
type frequencyKey struct {
	operation string
	category  errors.Category
}

// FrequencyTracker counts recent failures per operation and category over a
// sliding window. Stale timestamps are evicted whenever a stream is touched,
// so memory stays bounded by failures still inside the window.
type FrequencyTracker struct {
	window  time.Duration
	mutex   sync.Mutex
	windows map[frequencyKey][]time.Time
}

// NewFrequencyTracker creates a tracker with the given sliding window
func NewFrequencyTracker(window time.Duration) *FrequencyTracker {
	if window <= 0 {
		window = DefaultFailureWindow
	}

	return &FrequencyTracker{
		window:  window,
		windows: make(map[frequencyKey][]time.Time),
	}
}

// Window returns the sliding window length
func (ft *FrequencyTracker) Window() time.Duration {
	return ft.window
}

// RecordFailure appends a failure for the operation and category and returns
// the number of failures still inside the window, including this one.
func (ft *FrequencyTracker) RecordFailure(operation string, category errors.Category) int {
	now := time.Now()
	key := frequencyKey{operation: operation, category: category}

	ft.mutex.Lock()
	defer ft.mutex.Unlock()

	kept := append(ft.evict(ft.windows[key], now), now)
	ft.windows[key] = kept
	return len(kept)
}

// CountRecent returns the number of failures for the operation and category
// still inside the window
func (ft *FrequencyTracker) CountRecent(operation string, category errors.Category) int {
	now := time.Now()
	key := frequencyKey{operation: operation, category: category}

	ft.mutex.Lock()
	defer ft.mutex.Unlock()

	kept := ft.evict(ft.windows[key], now)
	if len(kept) == 0 {
		delete(ft.windows, key)
		return 0
	}

	ft.windows[key] = kept
	return len(kept)
}

// CountByOperation sums live failures across categories for each operation
// with at least one failure inside the window
func (ft *FrequencyTracker) CountByOperation() map[string]int {
	now := time.Now()

	ft.mutex.Lock()
	defer ft.mutex.Unlock()

	counts := make(map[string]int)
	for key, stamps := range ft.windows {
		kept := ft.evict(stamps, now)
		if len(kept) == 0 {
			delete(ft.windows, key)
			continue
		}
		ft.windows[key] = kept
		counts[key.operation] += len(kept)
	}

	return counts
}

// evict drops timestamps that fell out of the sliding window. Timestamps are
// appended in order, so eviction only trims the head.
func (ft *FrequencyTracker) evict(stamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-ft.window)

	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}

	return append([]time.Time(nil), stamps[idx:]...)
}
