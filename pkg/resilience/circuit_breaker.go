package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/marketpulse/marketpulse/pkg/errors"
	"github.com/marketpulse/marketpulse/pkg/logging"
)

// Default circuit breaker settings
const (
	DefaultFailureWindow = 5 * time.Minute
	DefaultTripThreshold = 10
	DefaultCooldown      = 15 * time.Minute
)

// TripFunc is invoked each time an operation trips the breaker
type TripFunc func(operation string, category errors.Category, recentFailures int)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// TripThreshold is the recent failure count that must be exceeded before an operation trips
	TripThreshold int
	// Cooldown is how long a tripped operation stays marked
	Cooldown time.Duration
	// OnTrip is called after each trip, nil to disable
	OnTrip TripFunc
	// Logger defaults to the global logger
	Logger *logging.Logger
}

// CircuitBreaker marks operations whose recent failure count exceeds the trip
// threshold. Failures are counted per operation and category; the tripped
// state is recorded per operation. The breaker is advisory: it never rejects
// calls itself, callers consult IsActive and decide.
type CircuitBreaker struct {
	tracker   *FrequencyTracker
	threshold int
	cooldown  time.Duration
	onTrip    TripFunc
	logger    *logging.Logger

	mutex         sync.Mutex
	cooldownUntil map[string]time.Time
}

// NewCircuitBreaker creates a circuit breaker backed by the given tracker
func NewCircuitBreaker(tracker *FrequencyTracker, config CircuitBreakerConfig) *CircuitBreaker {
	if tracker == nil {
		tracker = NewFrequencyTracker(DefaultFailureWindow)
	}
	if config.TripThreshold <= 0 {
		config.TripThreshold = DefaultTripThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	if config.Logger == nil {
		config.Logger = logging.GetLogger()
	}

	return &CircuitBreaker{
		tracker:       tracker,
		threshold:     config.TripThreshold,
		cooldown:      config.Cooldown,
		onTrip:        config.OnTrip,
		logger:        config.Logger,
		cooldownUntil: make(map[string]time.Time),
	}
}

// RecordFailure feeds one classified failure into the tracker and trips the
// operation when its recent count exceeds the threshold. A failure past the
// threshold always refreshes the cooldown deadline, so a persistently failing
// operation stays tripped. It reports whether this call tripped the breaker.
func (cb *CircuitBreaker) RecordFailure(operation string, category errors.Category) bool {
	recent := cb.tracker.RecordFailure(operation, category)
	if recent <= cb.threshold {
		return false
	}

	until := time.Now().Add(cb.cooldown)
	cb.mutex.Lock()
	cb.cooldownUntil[operation] = until
	cb.mutex.Unlock()

	cb.logger.Warn("Circuit breaker tripped",
		"operation", operation,
		"category", string(category),
		"recent_failures", recent,
		"cooldown_until", until.Format(time.RFC3339),
	)

	if cb.onTrip != nil {
		cb.onTrip(operation, category, recent)
	}

	return true
}

// IsActive reports whether the operation is inside a cooldown period
func (cb *CircuitBreaker) IsActive(operation string) bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	until, ok := cb.cooldownUntil[operation]
	if !ok {
		return false
	}
	if !until.After(time.Now()) {
		delete(cb.cooldownUntil, operation)
		return false
	}

	return true
}

// ActiveOperations returns the operations currently inside a cooldown
// period, sorted by name
func (cb *CircuitBreaker) ActiveOperations() []string {
	now := time.Now()

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	active := make([]string, 0, len(cb.cooldownUntil))
	for operation, until := range cb.cooldownUntil {
		if !until.After(now) {
			delete(cb.cooldownUntil, operation)
			continue
		}
		active = append(active, operation)
	}
	sort.Strings(active)

	return active
}
