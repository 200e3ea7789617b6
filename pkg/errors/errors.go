package errors

import (
	"fmt"
	"time"
)

// Category is the closed classification taxonomy. New categories require a
// matching strategy registered before the catch-all in the classifier.
type Category string

const (
	CategoryValidation         Category = "validation"
	CategoryAuthentication     Category = "authentication"
	CategoryAuthorization      Category = "authorization"
	CategoryNotFound           Category = "not_found"
	CategoryRateLimit          Category = "rate_limit"
	CategoryTimeout            Category = "timeout"
	CategoryDatabase           Category = "database"
	CategoryServiceUnavailable Category = "service_unavailable"
	CategoryExternalAPI        Category = "external_api"
	CategoryInternal           Category = "internal"
)

// Categories returns the closed set in classification order.
func Categories() []Category {
	return []Category{
		CategoryValidation,
		CategoryAuthentication,
		CategoryAuthorization,
		CategoryNotFound,
		CategoryRateLimit,
		CategoryTimeout,
		CategoryDatabase,
		CategoryServiceUnavailable,
		CategoryExternalAPI,
		CategoryInternal,
	}
}

// HTTPStatus returns the default HTTP-style status for the category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryValidation:
		return 400
	case CategoryAuthentication:
		return 401
	case CategoryAuthorization:
		return 403
	case CategoryNotFound:
		return 404
	case CategoryRateLimit:
		return 429
	case CategoryTimeout:
		return 504
	case CategoryServiceUnavailable:
		return 503
	case CategoryExternalAPI:
		return 502
	default:
		return 500
	}
}

// UserMessage returns the default client-safe message for the category.
func (c Category) UserMessage() string {
	switch c {
	case CategoryValidation:
		return "Invalid request data"
	case CategoryAuthentication:
		return "Authentication required"
	case CategoryAuthorization:
		return "Access denied"
	case CategoryNotFound:
		return "Resource not found"
	case CategoryRateLimit:
		return "Too many requests, please try again later"
	case CategoryTimeout:
		return "The request timed out"
	case CategoryDatabase:
		return "A database error occurred"
	case CategoryServiceUnavailable:
		return "Service temporarily unavailable"
	case CategoryExternalAPI:
		return "Upstream service error"
	default:
		return "An unexpected error occurred"
	}
}

// LogDetails reports whether failures in this category warrant error-level
// logging with full cause and context. Client-side categories log at warn.
func (c Category) LogDetails() bool {
	switch c {
	case CategoryValidation, CategoryAuthentication, CategoryAuthorization,
		CategoryNotFound, CategoryRateLimit:
		return false
	default:
		return true
	}
}

// AppError represents an application error with context
type AppError struct {
	Category  Category          `json:"category"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id"`
	Timestamp time.Time         `json:"timestamp"`
	Cause     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(category Category, code, message string) *AppError {
	return &AppError{
		Category:  category,
		Code:      code,
		Message:   message,
		Details:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithRequestID adds a request ID to the error
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// Common error constructors
func NewValidationError(message string) *AppError {
	return NewAppError(CategoryValidation, "VALIDATION_ERROR", message)
}

func NewAuthenticationError(message string) *AppError {
	return NewAppError(CategoryAuthentication, "AUTHENTICATION_ERROR", message)
}

func NewAuthorizationError(message string) *AppError {
	return NewAppError(CategoryAuthorization, "AUTHORIZATION_ERROR", message)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(CategoryNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource))
}

func NewRateLimitError(message string) *AppError {
	return NewAppError(CategoryRateLimit, "RATE_LIMIT_EXCEEDED", message)
}

func NewTimeoutError(operation string) *AppError {
	return NewAppError(CategoryTimeout, "TIMEOUT", fmt.Sprintf("%s timed out", operation))
}

func NewDatabaseError(message string) *AppError {
	return NewAppError(CategoryDatabase, "DATABASE_ERROR", message)
}

func NewServiceUnavailableError(service string) *AppError {
	return NewAppError(CategoryServiceUnavailable, "SERVICE_UNAVAILABLE", fmt.Sprintf("%s is unavailable", service)).
		WithDetail("service", service)
}

func NewExternalAPIError(service, message string) *AppError {
	return NewAppError(CategoryExternalAPI, "EXTERNAL_API_ERROR", message).
		WithDetail("service", service)
}

func NewInternalError(message string) *AppError {
	return NewAppError(CategoryInternal, "INTERNAL_ERROR", message)
}

// Market-data specific errors
func NewQuoteFetchError(symbol, message string) *AppError {
	return NewAppError(CategoryExternalAPI, "QUOTE_FETCH_ERROR", message).
		WithDetail("symbol", symbol)
}

func NewCacheError(operation, message string) *AppError {
	return NewAppError(CategoryServiceUnavailable, "CACHE_ERROR", message).
		WithDetail("operation", operation)
}

// IsCategory checks if the error belongs to a specific category
func IsCategory(err error, category Category) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Category == category
	}
	return false
}

// IsNotFound checks if the error represents a missing resource
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// GetCode returns the error code if it's an AppError
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetCategory returns the error category if it's an AppError
func GetCategory(err error) Category {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Category
	}
	return CategoryInternal
}
