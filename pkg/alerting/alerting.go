package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/marketpulse/marketpulse/pkg/logging"
)

// Severity represents alert severity levels
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert represents a single escalation event
type Alert struct {
	ID        string            `json:"id"`
	Severity  Severity          `json:"severity"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Channel delivers alerts to a single destination
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *Alert) error
}

// Config holds alerting configuration
type Config struct {
	// Enabled toggles alert dispatch entirely
	Enabled bool
	// MinInterval is the minimum time between alerts from the same source
	MinInterval time.Duration
}

// DefaultConfig returns default alerting configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		MinInterval: time.Minute,
	}
}

// Manager fans alerts out to the configured channels. Repeated alerts from
// the same source within MinInterval are suppressed so a flapping operation
// does not flood the channels.
type Manager struct {
	config   *Config
	channels []Channel
	logger   *logging.Logger
	mutex    sync.Mutex
	lastSent map[string]time.Time
}

// NewManager creates a new alert manager
func NewManager(config *Config, logger *logging.Logger, channels ...Channel) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Manager{
		config:   config,
		channels: channels,
		logger:   logger,
		lastSent: make(map[string]time.Time),
	}
}

// AddChannel registers an additional delivery channel
func (m *Manager) AddChannel(channel Channel) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.channels = append(m.channels, channel)
}

// Trigger dispatches an alert unless its source is rate limited. Delivery is
// best effort: channel failures are logged and never propagated to the
// caller. It reports whether the alert was dispatched.
func (m *Manager) Trigger(ctx context.Context, alert *Alert) bool {
	if !m.config.Enabled {
		return false
	}

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.Severity == "" {
		alert.Severity = SeverityWarning
	}

	m.mutex.Lock()
	if last, ok := m.lastSent[alert.Source]; ok && time.Since(last) < m.config.MinInterval {
		m.mutex.Unlock()
		m.logger.Debug("Alert suppressed by rate limit",
			"source", alert.Source,
			"title", alert.Title,
		)
		return false
	}
	m.lastSent[alert.Source] = time.Now()
	channels := make([]Channel, len(m.channels))
	copy(channels, m.channels)
	m.mutex.Unlock()

	m.logger.Warn("Alert triggered",
		"alert_id", alert.ID,
		"severity", string(alert.Severity),
		"source", alert.Source,
		"title", alert.Title,
	)

	for _, channel := range channels {
		go func(ch Channel) {
			if err := ch.Send(ctx, alert); err != nil {
				m.logger.Error("Failed to deliver alert",
					"channel", ch.Name(),
					"alert_id", alert.ID,
					"error", err.Error(),
				)
			}
		}(channel)
	}

	return true
}

// LogChannel writes alerts to the structured log. It is the default channel
// when no external destination is configured.
type LogChannel struct {
	logger *logging.Logger
}

// NewLogChannel creates a log-backed delivery channel
func NewLogChannel(logger *logging.Logger) *LogChannel {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &LogChannel{logger: logger}
}

// Name returns the channel name
func (lc *LogChannel) Name() string {
	return "log"
}

// Send writes the alert to the log at a level matching its severity
func (lc *LogChannel) Send(ctx context.Context, alert *Alert) error {
	fields := logrus.Fields{
		"alert_id": alert.ID,
		"source":   alert.Source,
		"title":    alert.Title,
	}
	for k, v := range alert.Tags {
		fields[k] = v
	}

	entry := lc.logger.WithContext(ctx).WithFields(fields)
	switch alert.Severity {
	case SeverityCritical:
		entry.Error(alert.Message)
	case SeverityWarning:
		entry.Warn(alert.Message)
	default:
		entry.Info(alert.Message)
	}

	return nil
}
