package types

import (
	"time"

	"github.com/google/uuid"
)

// Quote represents a point-in-time market quote for a tracked symbol
type Quote struct {
	ID        uuid.UUID `json:"id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Change24h float64   `json:"change_24h"`
	Volume    int64     `json:"volume"`
	Provider  string    `json:"provider"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Age returns how long ago the quote was fetched
func (q *Quote) Age() time.Duration {
	return time.Since(q.FetchedAt)
}

// IsStale reports whether the quote is older than maxAge
func (q *Quote) IsStale(maxAge time.Duration) bool {
	return q.Age() > maxAge
}

// RefreshRun represents one refresh cycle over the tracked symbols
type RefreshRun struct {
	ID               uuid.UUID  `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Status           string     `json:"status"`
	SymbolsRequested []string   `json:"symbols_requested"`
	SymbolsRefreshed int        `json:"symbols_refreshed"`
	SymbolsFailed    int        `json:"symbols_failed"`
	SuccessRate      float64    `json:"success_rate"`
	DurationMS       int64      `json:"duration_ms"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// ProviderStatus represents the last observed health of an upstream provider
type ProviderStatus struct {
	Provider  string    `json:"provider"`
	Healthy   bool      `json:"healthy"`
	Latency   int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Refresh run statuses
const (
	RefreshStatusRunning   = "running"
	RefreshStatusCompleted = "completed"
	RefreshStatusPartial   = "partial"
	RefreshStatusFailed    = "failed"
)

// Market data providers
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderFinnhub      = "finnhub"
)

// Quote currencies
const (
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)
