package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/marketpulse/marketpulse/internal/cache"
)

// RunHandler serves refresh run history and provider health records
type RunHandler struct {
	runs *cache.RunCache
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs *cache.RunCache) *RunHandler {
	return &RunHandler{runs: runs}
}

// GetLastRun returns the most recent refresh run
func (h *RunHandler) GetLastRun(c *gin.Context) {
	run, err := h.runs.GetLastRun(c.Request.Context())
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, run)
}

// GetProviderStatus returns the last recorded health probe for a provider
func (h *RunHandler) GetProviderStatus(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	if provider == "" {
		BadRequestResponse(c, "provider is required")
		return
	}

	status, err := h.runs.GetProviderStatus(c.Request.Context(), provider)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, status)
}

// GetFailureCount returns the consecutive refresh failure count for a symbol
func (h *RunHandler) GetFailureCount(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		BadRequestResponse(c, "symbol is required")
		return
	}

	count, err := h.runs.FailureCount(c.Request.Context(), symbol)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, gin.H{
		"symbol":        symbol,
		"failure_count": count,
	})
}
