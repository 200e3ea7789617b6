package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/marketpulse/marketpulse/pkg/config"
	appErrors "github.com/marketpulse/marketpulse/pkg/errors"
	"github.com/marketpulse/marketpulse/pkg/logging"
	"github.com/marketpulse/marketpulse/pkg/metrics"
	"github.com/marketpulse/marketpulse/pkg/resilience"
	"github.com/marketpulse/marketpulse/pkg/tracing"
	"github.com/marketpulse/marketpulse/pkg/types"
)

// Client calls the upstream market data API. Failures come back as
// AppErrors so the resilience layer can classify them without inspecting
// HTTP details.
type Client struct {
	provider   string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	mgr        *resilience.Manager
	logger     *logging.Logger
	metrics    *metrics.Metrics
	tracer     *tracing.TracingService
}

// NewClient creates a market data API client
func NewClient(cfg *config.MarketDataConfig, mgr *resilience.Manager, logger *logging.Logger, m *metrics.Metrics, tracer *tracing.TracingService) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, appErrors.NewValidationError("market data base URL is required")
	}
	if mgr == nil {
		return nil, appErrors.NewValidationError("resilience manager is required")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	if tracer != nil {
		httpClient = tracer.InstrumentHTTPClient(httpClient)
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		provider:   cfg.Provider,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		mgr:        mgr,
		logger:     logger,
		metrics:    m,
		tracer:     tracer,
	}, nil
}

// quoteResponse is the upstream quote payload
type quoteResponse struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Change24h float64   `json:"change_24h"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// FetchQuote fetches the current quote for one symbol. The call waits on the
// client rate limiter first, so a burst of callers degrades to the configured
// request rate instead of tripping the upstream limit.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*types.Quote, error) {
	if symbol == "" {
		return nil, appErrors.NewValidationError("symbol is required")
	}

	start := time.Now()
	ctx, span := c.startFetchSpan(ctx, symbol)
	if span != nil {
		defer span.End()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		var appErr *appErrors.AppError
		if ctx.Err() != nil {
			appErr = appErrors.NewTimeoutError(fmt.Sprintf("%s rate limit wait", c.provider)).WithCause(err)
		} else {
			appErr = appErrors.NewRateLimitError(fmt.Sprintf("%s request budget exhausted", c.provider)).WithCause(err)
		}
		c.recordFetch(symbol, "error", start)
		c.spanError(span, appErr)
		return nil, appErr
	}

	requestID := uuid.New().String()
	requestURL := fmt.Sprintf("%s/v1/quote?symbol=%s", c.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		appErr := appErrors.NewInternalError("failed to create quote request").WithCause(err)
		c.recordFetch(symbol, "error", start)
		c.spanError(span, appErr)
		return nil, appErr
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	c.logger.Debug("Fetching quote",
		"provider", c.provider,
		"symbol", symbol,
		"request_id", requestID,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFetch(symbol, "error", start)
		if errors.Is(err, context.Canceled) {
			c.spanError(span, err)
			return nil, err
		}
		var appErr *appErrors.AppError
		if isTimeout(err) {
			appErr = appErrors.NewTimeoutError(fmt.Sprintf("%s request", c.provider)).WithCause(err)
		} else {
			appErr = appErrors.NewServiceUnavailableError(c.provider).WithCause(err)
		}
		c.spanError(span, appErr)
		return nil, appErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		appErr := c.statusError(resp.StatusCode, symbol, string(body))
		c.recordFetch(symbol, "error", start)
		c.spanError(span, appErr)
		return nil, appErr
	}

	var payload quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		appErr := appErrors.NewQuoteFetchError(symbol, fmt.Sprintf("failed to decode %s response", c.provider)).WithCause(err)
		c.recordFetch(symbol, "error", start)
		c.spanError(span, appErr)
		return nil, appErr
	}
	if payload.Price <= 0 {
		appErr := appErrors.NewQuoteFetchError(symbol, fmt.Sprintf("%s response contained no price", c.provider))
		c.recordFetch(symbol, "error", start)
		c.spanError(span, appErr)
		return nil, appErr
	}

	if payload.Symbol == "" {
		payload.Symbol = symbol
	}
	if payload.Currency == "" {
		payload.Currency = types.CurrencyUSD
	}

	quote := &types.Quote{
		ID:        uuid.New(),
		Symbol:    payload.Symbol,
		Price:     payload.Price,
		Currency:  payload.Currency,
		Change24h: payload.Change24h,
		Volume:    payload.Volume,
		Provider:  c.provider,
		FetchedAt: time.Now().UTC(),
	}

	c.recordFetch(symbol, "success", start)
	c.spanOK(span)
	c.logger.Debug("Fetched quote",
		"provider", c.provider,
		"symbol", quote.Symbol,
		"price", quote.Price,
		"request_id", requestID,
	)

	return quote, nil
}

// FetchQuotes fetches many symbols through the resilience batch executor.
// The returned map is keyed by requested symbol and holds the successful
// fetches; per-symbol failures are in the batch result.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string, batchConfig *resilience.BatchConfig) (map[string]*types.Quote, *resilience.BatchResult, error) {
	items := make([]interface{}, len(symbols))
	for i, symbol := range symbols {
		items[i] = symbol
	}

	result, err := c.mgr.RunBatch(ctx, "fetch_quote", items, func(ctx context.Context, item interface{}) (interface{}, error) {
		return c.FetchQuote(ctx, item.(string))
	}, batchConfig)

	quotes := make(map[string]*types.Quote, len(result.Successes))
	for _, success := range result.Successes {
		quotes[success.Input.(string)] = success.Output.(*types.Quote)
	}

	return quotes, result, err
}

// Ping checks upstream reachability. Health probes skip the rate limiter so
// a drained request budget does not read as an unhealthy provider.
func (c *Client) Ping(ctx context.Context) error {
	requestURL := fmt.Sprintf("%s/v1/ping", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return appErrors.NewInternalError("failed to create ping request").WithCause(err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return appErrors.NewTimeoutError(fmt.Sprintf("%s ping", c.provider)).WithCause(err)
		}
		return appErrors.NewServiceUnavailableError(c.provider).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return appErrors.NewServiceUnavailableError(c.provider).
			WithDetail("status", fmt.Sprintf("%d", resp.StatusCode))
	}

	return nil
}

// Provider returns the configured provider name
func (c *Client) Provider() string {
	return c.provider
}

// statusError maps an upstream HTTP status to an AppError category
func (c *Client) statusError(statusCode int, symbol, body string) *appErrors.AppError {
	switch statusCode {
	case http.StatusBadRequest:
		return appErrors.NewValidationError(fmt.Sprintf("%s rejected symbol %q", c.provider, symbol))
	case http.StatusUnauthorized:
		return appErrors.NewAuthenticationError(fmt.Sprintf("%s rejected the API key", c.provider))
	case http.StatusForbidden:
		return appErrors.NewAuthorizationError(fmt.Sprintf("%s denied access to %q", c.provider, symbol))
	case http.StatusNotFound:
		return appErrors.NewNotFoundError(fmt.Sprintf("symbol %s", symbol))
	case http.StatusTooManyRequests:
		return appErrors.NewRateLimitError(fmt.Sprintf("%s rate limit exceeded", c.provider))
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return appErrors.NewServiceUnavailableError(c.provider)
	default:
		return appErrors.NewQuoteFetchError(symbol, fmt.Sprintf("%s returned status %d: %s", c.provider, statusCode, body))
	}
}

// recordFetch records fetch metrics when metrics are configured
func (c *Client) recordFetch(symbol, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordFetch(c.provider, symbol, status, time.Since(start))
	}
}

func (c *Client) startFetchSpan(ctx context.Context, symbol string) (context.Context, oteltrace.Span) {
	if c.tracer == nil {
		return ctx, nil
	}
	return c.tracer.StartFetchSpan(ctx, c.provider, symbol)
}

func (c *Client) spanError(span oteltrace.Span, err error) {
	if span != nil {
		c.tracer.RecordError(span, err)
	}
}

func (c *Client) spanOK(span oteltrace.Span) {
	if span != nil {
		c.tracer.SetSpanStatus(span, codes.Ok, "")
	}
}

// isTimeout reports whether the transport error was a timeout
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
