package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/marketpulse/marketpulse/pkg/errors"
	"github.com/marketpulse/marketpulse/pkg/logging"
	"github.com/marketpulse/marketpulse/pkg/metrics"
	"github.com/marketpulse/marketpulse/pkg/types"
)

// Cache type labels for metrics
const (
	cacheTypeMemory = "memory"
	cacheTypeRedis  = "redis"
)

// QuoteCache caches quotes behind a two-tier lookup: an in-process LRU in
// front of Redis. Reads promote Redis hits into the LRU; writes go to both
// tiers. The LRU holds pointers but entries are never mutated in place, a
// refresh always stores a new quote.
type QuoteCache struct {
	service *Service
	hot     *lru.Cache[string, *types.Quote]
	logger  *logging.Logger
	metrics *metrics.Metrics

	mutex  sync.Mutex
	hits   int64
	misses int64
}

// NewQuoteCache creates a quote cache with the given hot tier size
func NewQuoteCache(service *Service, hotSize int, logger *logging.Logger, m *metrics.Metrics) (*QuoteCache, error) {
	if hotSize <= 0 {
		hotSize = 256
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	hot, err := lru.New[string, *types.Quote](hotSize)
	if err != nil {
		return nil, errors.NewInternalError("failed to create hot quote cache").WithCause(err)
	}

	return &QuoteCache{
		service: service,
		hot:     hot,
		logger:  logger,
		metrics: m,
	}, nil
}

// SetQuote stores a quote in both cache tiers
func (qc *QuoteCache) SetQuote(ctx context.Context, quote *types.Quote) error {
	if quote == nil || quote.Symbol == "" {
		return errors.NewValidationError("quote with a symbol is required")
	}

	start := time.Now()
	key := CacheKey{Prefix: PrefixQuote, ID: quote.Symbol}

	if err := qc.service.Set(ctx, key, quote, qc.service.config.QuoteTTL); err != nil {
		qc.recordOperation("set", cacheTypeRedis, "error", time.Since(start))
		return err
	}
	qc.hot.Add(quote.Symbol, quote)

	qc.recordOperation("set", cacheTypeRedis, "success", time.Since(start))
	return nil
}

// GetQuote retrieves a quote, preferring the hot tier. A quote older than
// the configured TTL is treated as absent even when the LRU still holds it.
func (qc *QuoteCache) GetQuote(ctx context.Context, symbol string) (*types.Quote, error) {
	start := time.Now()

	if quote, ok := qc.hot.Get(symbol); ok {
		if !quote.IsStale(qc.service.config.QuoteTTL) {
			qc.recordHit()
			qc.recordOperation("get", cacheTypeMemory, "hit", time.Since(start))
			return quote, nil
		}
		qc.hot.Remove(symbol)
	}

	key := CacheKey{Prefix: PrefixQuote, ID: symbol}
	var quote types.Quote
	if err := qc.service.Get(ctx, key, &quote); err != nil {
		if errors.IsNotFound(err) {
			qc.recordMiss()
			qc.recordOperation("get", cacheTypeRedis, "miss", time.Since(start))
			return nil, errors.NewNotFoundError(fmt.Sprintf("quote for %s", symbol))
		}
		qc.recordOperation("get", cacheTypeRedis, "error", time.Since(start))
		return nil, err
	}

	qc.hot.Add(symbol, &quote)
	qc.recordHit()
	qc.recordOperation("get", cacheTypeRedis, "hit", time.Since(start))
	return &quote, nil
}

// GetQuotes retrieves the quotes present in cache for the given symbols.
// Missing symbols are simply absent from the result.
func (qc *QuoteCache) GetQuotes(ctx context.Context, symbols []string) (map[string]*types.Quote, error) {
	quotes := make(map[string]*types.Quote, len(symbols))

	for _, symbol := range symbols {
		quote, err := qc.GetQuote(ctx, symbol)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		quotes[symbol] = quote
	}

	return quotes, nil
}

// InvalidateQuote removes a quote from both cache tiers
func (qc *QuoteCache) InvalidateQuote(ctx context.Context, symbol string) error {
	qc.hot.Remove(symbol)
	return qc.service.Delete(ctx, CacheKey{Prefix: PrefixQuote, ID: symbol})
}

// HitRatio returns the fraction of lookups answered from either tier
func (qc *QuoteCache) HitRatio() float64 {
	qc.mutex.Lock()
	defer qc.mutex.Unlock()

	total := qc.hits + qc.misses
	if total == 0 {
		return 0
	}
	return float64(qc.hits) / float64(total)
}

// HotEntries returns the number of quotes in the hot tier
func (qc *QuoteCache) HotEntries() int {
	return qc.hot.Len()
}

func (qc *QuoteCache) recordHit() {
	qc.mutex.Lock()
	qc.hits++
	qc.mutex.Unlock()
}

func (qc *QuoteCache) recordMiss() {
	qc.mutex.Lock()
	qc.misses++
	qc.mutex.Unlock()
}

func (qc *QuoteCache) recordOperation(operation, cacheType, status string, duration time.Duration) {
	if qc.metrics != nil {
		qc.metrics.RecordCacheOperation(operation, cacheType, status, duration)
	}
}
