package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/marketpulse/marketpulse/internal/cache"
	"github.com/marketpulse/marketpulse/internal/marketdata"
	"github.com/marketpulse/marketpulse/pkg/config"
	appErrors "github.com/marketpulse/marketpulse/pkg/errors"
	"github.com/marketpulse/marketpulse/pkg/logging"
	"github.com/marketpulse/marketpulse/pkg/metrics"
	"github.com/marketpulse/marketpulse/pkg/resilience"
	"github.com/marketpulse/marketpulse/pkg/tracing"
	"github.com/marketpulse/marketpulse/pkg/types"
)

// Scheduler refreshes tracked symbols on a fixed interval. Each tick fetches
// every symbol through the resilience batch executor, stores the successes in
// the quote cache and records the run for the ops surface.
type Scheduler struct {
	interval        time.Duration
	symbols         []string
	concurrency     int
	failFast        bool
	shutdownTimeout time.Duration

	client  *marketdata.Client
	quotes  *cache.QuoteCache
	runs    *cache.RunCache
	mgr     *resilience.Manager
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  *tracing.TracingService

	// Control channels
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	// State
	mu      sync.RWMutex
	running bool
	stats   Stats
}

// Stats contains scheduler statistics
type Stats struct {
	TicksTotal      int64         `json:"ticks_total"`
	QuotesRefreshed int64         `json:"quotes_refreshed"`
	QuotesFailed    int64         `json:"quotes_failed"`
	LastTick        time.Time     `json:"last_tick"`
	LastDuration    time.Duration `json:"last_duration"`
	StartedAt       time.Time     `json:"started_at"`
}

// New creates a scheduler
func New(cfg *config.SchedulerConfig, client *marketdata.Client, quotes *cache.QuoteCache, runs *cache.RunCache, mgr *resilience.Manager, logger *logging.Logger, m *metrics.Metrics, tracer *tracing.TracingService) (*Scheduler, error) {
	if cfg == nil {
		return nil, appErrors.NewValidationError("scheduler config is required")
	}
	if client == nil {
		return nil, appErrors.NewValidationError("market data client is required")
	}
	if quotes == nil {
		return nil, appErrors.NewValidationError("quote cache is required")
	}
	if runs == nil {
		return nil, appErrors.NewValidationError("run cache is required")
	}
	if mgr == nil {
		return nil, appErrors.NewValidationError("resilience manager is required")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	return &Scheduler{
		interval:        interval,
		symbols:         append([]string(nil), cfg.Symbols...),
		concurrency:     concurrency,
		failFast:        cfg.FailFast,
		shutdownTimeout: shutdownTimeout,
		client:          client,
		quotes:          quotes,
		runs:            runs,
		mgr:             mgr,
		logger:          logger,
		metrics:         m,
		tracer:          tracer,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}, nil
}

// Start starts the refresh loop. The first refresh runs immediately so the
// cache is warm before the first interval elapses.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return appErrors.NewValidationError("scheduler is already running")
	}
	s.running = true
	s.stats.StartedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("Scheduler started",
		"interval", s.interval.String(),
		"symbols", len(s.symbols),
		"concurrency", s.concurrency,
	)

	go s.run(ctx)

	return nil
}

// Stop stops the scheduler gracefully. A timeout leaves the scheduler
// draining; calling Stop again waits for the loop once more.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return appErrors.NewValidationError("scheduler is not running")
	}
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.doneCh:
	case <-time.After(s.shutdownTimeout):
		return appErrors.NewTimeoutError("scheduler shutdown")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetStats returns scheduler statistics
func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Symbols returns the tracked symbols
func (s *Scheduler) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// RefreshNow runs one refresh pass synchronously and returns the run record
func (s *Scheduler) RefreshNow(ctx context.Context) *types.RefreshRun {
	return s.refresh(ctx)
}

// run is the main refresh loop
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.refresh(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh fetches every tracked symbol and stores the results
func (s *Scheduler) refresh(ctx context.Context) *types.RefreshRun {
	start := time.Now()

	ctx, span := s.startSpan(ctx)
	if span != nil {
		defer span.End()
	}

	run := &types.RefreshRun{
		ID:               uuid.New(),
		StartedAt:        start.UTC(),
		Status:           types.RefreshStatusRunning,
		SymbolsRequested: append([]string(nil), s.symbols...),
	}

	s.logger.LogSchedulerEvent(ctx, "refresh_started", logrus.Fields{
		"run_id":  run.ID.String(),
		"symbols": len(s.symbols),
	})

	quotes, result, batchErr := s.client.FetchQuotes(ctx, s.symbols, &resilience.BatchConfig{
		Concurrency: s.concurrency,
		FailFast:    s.failFast,
	})

	refreshed := 0
	storeFailures := 0
	for _, symbol := range s.symbols {
		quote, ok := quotes[symbol]
		if !ok {
			continue
		}

		storeErr := s.mgr.RunWithRetry(ctx, "store_quote", func(ctx context.Context) error {
			return s.quotes.SetQuote(ctx, quote)
		}, nil)
		if storeErr != nil {
			storeFailures++
			s.logger.Warn("Failed to store quote",
				"symbol", symbol,
				"error", storeErr.Error(),
			)
			continue
		}

		refreshed++
		if err := s.runs.ResetFailureCount(ctx, symbol); err != nil {
			s.logger.Warn("Failed to reset failure counter", "symbol", symbol, "error", err.Error())
		}
	}

	for _, failure := range result.Failures {
		symbol, _ := failure.Input.(string)
		if _, err := s.runs.IncrementFailureCount(ctx, symbol); err != nil {
			s.logger.Warn("Failed to increment failure counter", "symbol", symbol, "error", err.Error())
		}
	}

	failed := len(result.Failures) + storeFailures
	duration := time.Since(start)
	completed := time.Now().UTC()

	run.CompletedAt = &completed
	run.SymbolsRefreshed = refreshed
	run.SymbolsFailed = failed
	run.DurationMS = duration.Milliseconds()
	if len(s.symbols) > 0 {
		run.SuccessRate = float64(refreshed) / float64(len(s.symbols))
	} else {
		run.SuccessRate = 1
	}

	switch {
	case failed == 0:
		run.Status = types.RefreshStatusCompleted
	case refreshed == 0:
		run.Status = types.RefreshStatusFailed
	default:
		run.Status = types.RefreshStatusPartial
	}

	if batchErr != nil {
		run.ErrorMessage = batchErr.Error()
	} else if first := result.FirstFailure(); first != nil {
		run.ErrorMessage = fmt.Sprintf("%v: %s", first.Input, first.Err.UserMessage)
	}

	if err := s.runs.SetLastRun(ctx, run); err != nil {
		s.logger.Warn("Failed to store refresh run", "error", err.Error())
	}

	if s.metrics != nil {
		s.metrics.RecordSchedulerRun(run.Status, duration)
	}

	s.mu.Lock()
	s.stats.TicksTotal++
	s.stats.QuotesRefreshed += int64(refreshed)
	s.stats.QuotesFailed += int64(failed)
	s.stats.LastTick = start
	s.stats.LastDuration = duration
	s.mu.Unlock()

	s.logger.LogSchedulerEvent(ctx, "refresh_completed", logrus.Fields{
		"run_id":       run.ID.String(),
		"status":       run.Status,
		"refreshed":    refreshed,
		"failed":       failed,
		"success_rate": run.SuccessRate,
		"duration_ms":  run.DurationMS,
	})

	return run
}

func (s *Scheduler) startSpan(ctx context.Context) (context.Context, oteltrace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.StartSchedulerSpan(ctx, "refresh")
}
