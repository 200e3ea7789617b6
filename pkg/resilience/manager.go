package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/marketpulse/marketpulse/pkg/alerting"
	"github.com/marketpulse/marketpulse/pkg/errors"
	"github.com/marketpulse/marketpulse/pkg/logging"
	"github.com/marketpulse/marketpulse/pkg/metrics"
)

// Config holds resilience manager configuration
type Config struct {
	// FailureWindow is the sliding window for counting recent failures
	FailureWindow time.Duration
	// TripThreshold is the recent failure count that must be exceeded to trip an operation
	TripThreshold int
	// Cooldown is how long a tripped operation stays marked
	Cooldown time.Duration
	// ShortCircuit rejects calls for tripped operations without running them.
	// Off by default: the breaker is advisory unless a deployment opts in.
	ShortCircuit bool
	// Logger defaults to the global logger
	Logger *logging.Logger
	// Metrics receives counters and durations, nil to disable
	Metrics *metrics.Metrics
	// Alerts escalates circuit trips, nil to disable
	Alerts *alerting.Manager
	// Classifier defaults to the standard strategy chain
	Classifier *errors.Classifier
	// Retry is the retry policy used when a RunWithRetry call site passes nil
	Retry *RetryConfig
}

// DefaultConfig returns the default resilience configuration
func DefaultConfig() *Config {
	return &Config{
		FailureWindow: DefaultFailureWindow,
		TripThreshold: DefaultTripThreshold,
		Cooldown:      DefaultCooldown,
	}
}

// Manager ties error classification, failure tracking and the circuit
// breaker together behind the Run family of entry points. One manager per
// process; collaborators receive it at construction.
type Manager struct {
	classifier   *errors.Classifier
	tracker      *FrequencyTracker
	breaker      *CircuitBreaker
	logger       *logging.Logger
	metrics      *metrics.Metrics
	alerts       *alerting.Manager
	shortCircuit bool
	retry        *RetryConfig
}

// NewManager creates a resilience manager
func NewManager(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	classifier := config.Classifier
	if classifier == nil {
		classifier = errors.NewClassifier()
	}

	m := &Manager{
		classifier:   classifier,
		logger:       logger,
		metrics:      config.Metrics,
		alerts:       config.Alerts,
		shortCircuit: config.ShortCircuit,
		retry:        config.Retry,
	}

	m.tracker = NewFrequencyTracker(config.FailureWindow)
	m.breaker = NewCircuitBreaker(m.tracker, CircuitBreakerConfig{
		TripThreshold: config.TripThreshold,
		Cooldown:      config.Cooldown,
		OnTrip:        m.onTrip,
		Logger:        logger,
	})

	return m
}

// Classify maps an error to its category and presentation fields
func (m *Manager) Classify(err error) *errors.ClassifiedError {
	return m.classifier.Classify(err)
}

// IsCircuitActive reports whether the operation is inside a cooldown period
func (m *Manager) IsCircuitActive(operation string) bool {
	return m.breaker.IsActive(operation)
}

// Statistics is a point-in-time snapshot of resilience state. Operation
// labels are the context strings callers pass to the Run family; the same
// labels key the breaker, so ErrorsByOperation and ActiveCircuitBreakers
// share a namespace.
type Statistics struct {
	ErrorsByOperation     map[string]int `json:"errors_by_operation"`
	ActiveCircuitBreakers []string       `json:"active_circuit_breakers"`
	RecentErrorCount      int            `json:"recent_error_count"`
}

// Statistics reports live failure counts per operation and the operations
// currently tripped. Counts only include failures inside the sliding window.
func (m *Manager) Statistics() Statistics {
	byOperation := m.tracker.CountByOperation()

	total := 0
	for _, count := range byOperation {
		total += count
	}

	return Statistics{
		ErrorsByOperation:     byOperation,
		ActiveCircuitBreakers: m.breaker.ActiveOperations(),
		RecentErrorCount:      total,
	}
}

// onTrip escalates a circuit trip to metrics and alerting
func (m *Manager) onTrip(operation string, category errors.Category, recentFailures int) {
	if m.metrics != nil {
		m.metrics.RecordCircuitTrip(operation)
	}
	if m.alerts != nil {
		m.alerts.Trigger(context.Background(), &alerting.Alert{
			Severity: alerting.SeverityCritical,
			Title:    "Circuit breaker tripped",
			Message:  fmt.Sprintf("%s recorded %d recent failures", operation, recentFailures),
			Source:   operation,
			Tags: map[string]string{
				"category": string(category),
			},
		})
	}
}
