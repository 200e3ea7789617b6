package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpulse/marketpulse/pkg/config"
	appErrors "github.com/marketpulse/marketpulse/pkg/errors"
	"github.com/marketpulse/marketpulse/pkg/resilience"
)

func newTestClient(t *testing.T, handler http.Handler, cfg *config.MarketDataConfig) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if cfg == nil {
		cfg = &config.MarketDataConfig{}
	}
	cfg.BaseURL = server.URL
	if cfg.Provider == "" {
		cfg.Provider = "alpha_vantage"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 2 * time.Second
	}

	client, err := NewClient(cfg, resilience.NewManager(nil), nil, nil, nil)
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, resilience.NewManager(nil), nil, nil, nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryValidation))

	_, err = NewClient(&config.MarketDataConfig{}, resilience.NewManager(nil), nil, nil, nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryValidation))

	_, err = NewClient(&config.MarketDataConfig{BaseURL: "http://localhost:9999"}, nil, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryValidation))
}

func TestClient_FetchQuote_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"AAPL","price":189.5,"currency":"USD","change_24h":1.25,"volume":1200000,"timestamp":"2026-08-22T12:00:00Z"}`)
	})

	client := newTestClient(t, handler, &config.MarketDataConfig{APIKey: "secret"})

	quote, err := client.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, quote.ID)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 189.5, quote.Price)
	assert.Equal(t, "USD", quote.Currency)
	assert.Equal(t, 1.25, quote.Change24h)
	assert.Equal(t, int64(1200000), quote.Volume)
	assert.Equal(t, "alpha_vantage", quote.Provider)
	assert.WithinDuration(t, time.Now(), quote.FetchedAt, 5*time.Second)
}

func TestClient_FetchQuote_DefaultsForSparseResponses(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"price":42.0}`)
	})

	client := newTestClient(t, handler, nil)

	quote, err := client.FetchQuote(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", quote.Symbol)
	assert.Equal(t, "USD", quote.Currency)
}

func TestClient_FetchQuote_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		category   appErrors.Category
	}{
		{"bad request is validation", http.StatusBadRequest, appErrors.CategoryValidation},
		{"unauthorized is authentication", http.StatusUnauthorized, appErrors.CategoryAuthentication},
		{"forbidden is authorization", http.StatusForbidden, appErrors.CategoryAuthorization},
		{"not found is not_found", http.StatusNotFound, appErrors.CategoryNotFound},
		{"too many requests is rate_limit", http.StatusTooManyRequests, appErrors.CategoryRateLimit},
		{"bad gateway is service_unavailable", http.StatusBadGateway, appErrors.CategoryServiceUnavailable},
		{"service unavailable is service_unavailable", http.StatusServiceUnavailable, appErrors.CategoryServiceUnavailable},
		{"gateway timeout is service_unavailable", http.StatusGatewayTimeout, appErrors.CategoryServiceUnavailable},
		{"other statuses are external_api", http.StatusInternalServerError, appErrors.CategoryExternalAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})
			client := newTestClient(t, handler, nil)

			_, err := client.FetchQuote(context.Background(), "AAPL")
			require.Error(t, err)
			assert.True(t, appErrors.IsCategory(err, tt.category),
				"expected category %s, got %v", tt.category, err)
		})
	}
}

func TestClient_FetchQuote_Timeout(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, `{"price":1.0}`)
	})

	client := newTestClient(t, handler, &config.MarketDataConfig{RequestTimeout: 50 * time.Millisecond})

	_, err := client.FetchQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryTimeout), "got %v", err)
}

func TestClient_FetchQuote_ConnectionRefused(t *testing.T) {
	client, err := NewClient(&config.MarketDataConfig{
		Provider:       "alpha_vantage",
		BaseURL:        "http://127.0.0.1:1",
		RequestTimeout: time.Second,
	}, resilience.NewManager(nil), nil, nil, nil)
	require.NoError(t, err)

	_, err = client.FetchQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryServiceUnavailable), "got %v", err)
}

func TestClient_FetchQuote_DecodeFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})
	client := newTestClient(t, handler, nil)

	_, err := client.FetchQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryExternalAPI), "got %v", err)
}

func TestClient_FetchQuote_MissingPrice(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"AAPL","price":0}`)
	})
	client := newTestClient(t, handler, nil)

	_, err := client.FetchQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryExternalAPI), "got %v", err)
}

func TestClient_FetchQuote_EmptySymbol(t *testing.T) {
	requests := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	})
	client := newTestClient(t, handler, nil)

	_, err := client.FetchQuote(context.Background(), "")
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryValidation))
	assert.Equal(t, 0, requests)
}

func TestClient_FetchQuote_RateLimiterPacesRequests(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"price":1.0}`)
	})
	client := newTestClient(t, handler, &config.MarketDataConfig{
		RateLimit: 50, // 20ms per token
		RateBurst: 1,
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.FetchQuote(context.Background(), "AAPL")
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	// First call spends the burst token, the next two wait 20ms each.
	assert.GreaterOrEqual(t, elapsed, 35*time.Millisecond)
}

func TestClient_FetchQuotes_PartialFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "FAIL" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"symbol":%q,"price":100.5}`, symbol)
	})
	client := newTestClient(t, handler, nil)

	quotes, result, err := client.FetchQuotes(context.Background(), []string{"AAPL", "FAIL", "MSFT"}, nil)
	require.NoError(t, err)

	assert.Len(t, quotes, 2)
	assert.Contains(t, quotes, "AAPL")
	assert.Contains(t, quotes, "MSFT")

	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Equal(t, appErrors.CategoryServiceUnavailable, result.Failures[0].Err.Category)
	assert.InDelta(t, 2.0/3.0, result.SuccessRate, 0.001)
}

func TestClient_FetchQuotes_Empty(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	client := newTestClient(t, handler, nil)

	quotes, result, err := client.FetchQuotes(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
	assert.Equal(t, 1.0, result.SuccessRate)
}

func TestClient_Ping(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ping", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, handler, nil)

	assert.NoError(t, client.Ping(context.Background()))
}

func TestClient_Ping_Unavailable(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := newTestClient(t, handler, nil)

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryServiceUnavailable))
}
