package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/marketpulse/marketpulse/internal/cache"
)

// QuoteHandler serves cached quotes
type QuoteHandler struct {
	quotes  *cache.QuoteCache
	symbols []string
}

// NewQuoteHandler creates a new quote handler
func NewQuoteHandler(quotes *cache.QuoteCache, symbols []string) *QuoteHandler {
	return &QuoteHandler{
		quotes:  quotes,
		symbols: symbols,
	}
}

// ListQuotes returns the latest cached quote for every tracked symbol.
// Symbols without a cached quote are omitted from the result.
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	quotes, err := h.quotes.GetQuotes(c.Request.Context(), h.symbols)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, gin.H{
		"quotes": quotes,
		"count":  len(quotes),
	})
}

// GetQuote returns the cached quote for one symbol
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		BadRequestResponse(c, "symbol is required")
		return
	}

	quote, err := h.quotes.GetQuote(c.Request.Context(), symbol)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, quote)
}

// InvalidateQuote evicts a symbol from the cache
func (h *QuoteHandler) InvalidateQuote(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		BadRequestResponse(c, "symbol is required")
		return
	}

	if err := h.quotes.InvalidateQuote(c.Request.Context(), symbol); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, gin.H{
		"symbol":      symbol,
		"invalidated": true,
	})
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
