package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketpulse/marketpulse/pkg/errors"
)

// APIResponse is the envelope for every API payload
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries the error code, category and user-facing message
type APIError struct {
	Code     string            `json:"code"`
	Category string            `json:"category,omitempty"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
}

func requestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// ErrorResponseFromError sends an error response with the status implied by
// the error's category. Errors outside the application taxonomy map to 500
// without leaking their message.
func ErrorResponseFromError(c *gin.Context, err error) {
	var statusCode int
	var apiError *APIError

	switch e := err.(type) {
	case *errors.AppError:
		statusCode = e.Category.HTTPStatus()
		apiError = &APIError{
			Code:     e.Code,
			Category: string(e.Category),
			Message:  e.Message,
		}
		if len(e.Details) > 0 {
			apiError.Details = e.Details
		}
	case *errors.ClassifiedError:
		statusCode = e.StatusCode
		apiError = &APIError{
			Code:     errors.GetCode(e.Cause),
			Category: string(e.Category),
			Message:  e.UserMessage,
		}
	default:
		statusCode = http.StatusInternalServerError
		apiError = &APIError{
			Code:    "UNKNOWN_ERROR",
			Message: "An unknown error occurred",
		}
	}

	c.JSON(statusCode, APIResponse{
		Success:   false,
		Error:     apiError,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// BadRequestResponse sends a 400 Bad Request response
func BadRequestResponse(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Error: &APIError{
			Code:     "BAD_REQUEST",
			Category: string(errors.CategoryValidation),
			Message:  message,
		},
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// NotFoundResponse sends a 404 Not Found response
func NotFoundResponse(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, APIResponse{
		Success: false,
		Error: &APIError{
			Code:     "NOT_FOUND",
			Category: string(errors.CategoryNotFound),
			Message:  message,
		},
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// InternalErrorResponse sends a 500 Internal Server Error response
func InternalErrorResponse(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, APIResponse{
		Success: false,
		Error: &APIError{
			Code:     "INTERNAL_ERROR",
			Category: string(errors.CategoryInternal),
			Message:  message,
		},
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}
