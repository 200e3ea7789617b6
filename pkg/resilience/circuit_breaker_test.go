package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/marketpulse/marketpulse/pkg/errors"
)

func TestCircuitBreaker_TripsAboveThreshold(t *testing.T) {
	tracker := NewFrequencyTracker(time.Minute)
	breaker := NewCircuitBreaker(tracker, CircuitBreakerConfig{
		TripThreshold: 10,
		Cooldown:      time.Minute,
	})

	// Ten failures reach the threshold without exceeding it
	for i := 0; i < 10; i++ {
		assert.False(t, breaker.RecordFailure("fetch_quote", appErrors.CategoryExternalAPI))
		assert.False(t, breaker.IsActive("fetch_quote"))
	}

	// The eleventh failure exceeds it and trips
	assert.True(t, breaker.RecordFailure("fetch_quote", appErrors.CategoryExternalAPI))
	assert.True(t, breaker.IsActive("fetch_quote"))
}

func TestCircuitBreaker_CategoriesCountSeparately(t *testing.T) {
	tracker := NewFrequencyTracker(time.Minute)
	breaker := NewCircuitBreaker(tracker, CircuitBreakerConfig{
		TripThreshold: 10,
		Cooldown:      time.Minute,
	})

	// Six failures each in two categories never exceeds the per-category threshold
	for i := 0; i < 6; i++ {
		assert.False(t, breaker.RecordFailure("fetch_quote", appErrors.CategoryTimeout))
		assert.False(t, breaker.RecordFailure("fetch_quote", appErrors.CategoryExternalAPI))
	}
	assert.False(t, breaker.IsActive("fetch_quote"))
}

func TestCircuitBreaker_CooldownExpires(t *testing.T) {
	tracker := NewFrequencyTracker(time.Minute)
	breaker := NewCircuitBreaker(tracker, CircuitBreakerConfig{
		TripThreshold: 1,
		Cooldown:      50 * time.Millisecond,
	})

	breaker.RecordFailure("fetch_quote", appErrors.CategoryTimeout)
	require.True(t, breaker.RecordFailure("fetch_quote", appErrors.CategoryTimeout))
	require.True(t, breaker.IsActive("fetch_quote"))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, breaker.IsActive("fetch_quote"))
	assert.Empty(t, breaker.ActiveOperations())
}

func TestCircuitBreaker_RetripRefreshesCooldown(t *testing.T) {
	tracker := NewFrequencyTracker(time.Minute)
	breaker := NewCircuitBreaker(tracker, CircuitBreakerConfig{
		TripThreshold: 1,
		Cooldown:      80 * time.Millisecond,
	})

	breaker.RecordFailure("fetch_quote", appErrors.CategoryTimeout)
	require.True(t, breaker.RecordFailure("fetch_quote", appErrors.CategoryTimeout))

	// A later failure past the threshold pushes the deadline out again
	time.Sleep(50 * time.Millisecond)
	require.True(t, breaker.RecordFailure("fetch_quote", appErrors.CategoryTimeout))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, breaker.IsActive("fetch_quote"), "cooldown should be measured from the latest trip")
}

func TestCircuitBreaker_TripOutlivesFailureWindow(t *testing.T) {
	tracker := NewFrequencyTracker(50 * time.Millisecond)
	breaker := NewCircuitBreaker(tracker, CircuitBreakerConfig{
		TripThreshold: 1,
		Cooldown:      time.Minute,
	})

	breaker.RecordFailure("fetch_quote", appErrors.CategoryTimeout)
	require.True(t, breaker.RecordFailure("fetch_quote", appErrors.CategoryTimeout))

	// Once the window passes the failure counts reset, but the cooldown holds
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, tracker.CountRecent("fetch_quote", appErrors.CategoryTimeout))
	assert.True(t, breaker.IsActive("fetch_quote"))
}

func TestCircuitBreaker_OnTripCallback(t *testing.T) {
	type trip struct {
		operation string
		category  appErrors.Category
		recent    int
	}
	var trips []trip

	tracker := NewFrequencyTracker(time.Minute)
	breaker := NewCircuitBreaker(tracker, CircuitBreakerConfig{
		TripThreshold: 2,
		Cooldown:      time.Minute,
		OnTrip: func(operation string, category appErrors.Category, recentFailures int) {
			trips = append(trips, trip{operation, category, recentFailures})
		},
	})

	for i := 0; i < 4; i++ {
		breaker.RecordFailure("fetch_quote", appErrors.CategoryExternalAPI)
	}

	// The third and fourth failures both exceed the threshold
	require.Len(t, trips, 2)
	assert.Equal(t, trip{"fetch_quote", appErrors.CategoryExternalAPI, 3}, trips[0])
	assert.Equal(t, trip{"fetch_quote", appErrors.CategoryExternalAPI, 4}, trips[1])
}

func TestCircuitBreaker_ActiveOperationsSorted(t *testing.T) {
	tracker := NewFrequencyTracker(time.Minute)
	breaker := NewCircuitBreaker(tracker, CircuitBreakerConfig{
		TripThreshold: 1,
		Cooldown:      time.Minute,
	})

	for _, operation := range []string{"store_quote", "fetch_quote", "publish_quote"} {
		breaker.RecordFailure(operation, appErrors.CategoryTimeout)
		breaker.RecordFailure(operation, appErrors.CategoryTimeout)
	}

	assert.Equal(t, []string{"fetch_quote", "publish_quote", "store_quote"}, breaker.ActiveOperations())
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	breaker := NewCircuitBreaker(nil, CircuitBreakerConfig{})

	assert.Equal(t, DefaultTripThreshold, breaker.threshold)
	assert.Equal(t, DefaultCooldown, breaker.cooldown)
	assert.NotNil(t, breaker.tracker)
}
