package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryDefaults(t *testing.T) {
	tests := []struct {
		category   Category
		statusCode int
		logDetails bool
	}{
		{CategoryValidation, 400, false},
		{CategoryAuthentication, 401, false},
		{CategoryAuthorization, 403, false},
		{CategoryNotFound, 404, false},
		{CategoryRateLimit, 429, false},
		{CategoryTimeout, 504, true},
		{CategoryDatabase, 500, true},
		{CategoryServiceUnavailable, 503, true},
		{CategoryExternalAPI, 502, true},
		{CategoryInternal, 500, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			assert.Equal(t, tt.statusCode, tt.category.HTTPStatus())
			assert.Equal(t, tt.logDetails, tt.category.LogDetails())
			assert.NotEmpty(t, tt.category.UserMessage())
		})
	}
}

func TestCategories_Closed(t *testing.T) {
	assert.Len(t, Categories(), 10)
}

func TestAppError_Error(t *testing.T) {
	err := NewValidationError("symbol is required")
	assert.Equal(t, "VALIDATION_ERROR: symbol is required", err.Error())

	cause := errors.New("empty field")
	withCause := NewValidationError("symbol is required").WithCause(cause)
	assert.Equal(t, "VALIDATION_ERROR: symbol is required (caused by: empty field)", withCause.Error())
	assert.Equal(t, cause, errors.Unwrap(withCause))
}

func TestAppError_Chaining(t *testing.T) {
	err := NewExternalAPIError("alphavantage", "quote endpoint failed").
		WithDetail("symbol", "AAPL").
		WithRequestID("req-123")

	assert.Equal(t, CategoryExternalAPI, err.Category)
	assert.Equal(t, "alphavantage", err.Details["service"])
	assert.Equal(t, "AAPL", err.Details["symbol"])
	assert.Equal(t, "req-123", err.RequestID)
	assert.False(t, err.Timestamp.IsZero())
}

func TestAppError_Constructors(t *testing.T) {
	tests := []struct {
		err      *AppError
		category Category
		code     string
	}{
		{NewValidationError("bad input"), CategoryValidation, "VALIDATION_ERROR"},
		{NewAuthenticationError("no token"), CategoryAuthentication, "AUTHENTICATION_ERROR"},
		{NewAuthorizationError("no access"), CategoryAuthorization, "AUTHORIZATION_ERROR"},
		{NewNotFoundError("symbol"), CategoryNotFound, "NOT_FOUND"},
		{NewRateLimitError("quota spent"), CategoryRateLimit, "RATE_LIMIT_EXCEEDED"},
		{NewTimeoutError("fetchQuote"), CategoryTimeout, "TIMEOUT"},
		{NewDatabaseError("insert failed"), CategoryDatabase, "DATABASE_ERROR"},
		{NewServiceUnavailableError("redis"), CategoryServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{NewExternalAPIError("provider", "bad gateway"), CategoryExternalAPI, "EXTERNAL_API_ERROR"},
		{NewInternalError("panic recovered"), CategoryInternal, "INTERNAL_ERROR"},
		{NewQuoteFetchError("AAPL", "provider down"), CategoryExternalAPI, "QUOTE_FETCH_ERROR"},
		{NewCacheError("get", "redis gone"), CategoryServiceUnavailable, "CACHE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestCategoryHelpers(t *testing.T) {
	appErr := NewTimeoutError("fetchQuote")

	assert.True(t, IsCategory(appErr, CategoryTimeout))
	assert.False(t, IsCategory(appErr, CategoryValidation))
	assert.False(t, IsCategory(errors.New("plain"), CategoryTimeout))

	assert.Equal(t, CategoryTimeout, GetCategory(appErr))
	assert.Equal(t, CategoryInternal, GetCategory(errors.New("plain")))

	assert.Equal(t, "TIMEOUT", GetCode(appErr))
	assert.Equal(t, "UNKNOWN_ERROR", GetCode(errors.New("plain")))
}
