// Package resilience provides error classification, failure tracking,
// circuit breaking, retries and batch execution for the MarketPulse system.
//
// Everything hangs off a Manager, constructed once at startup and handed to
// collaborators:
//
//	mgr := resilience.NewManager(&resilience.Config{
//		FailureWindow: 5 * time.Minute,
//		TripThreshold: 10,
//		Cooldown:      15 * time.Minute,
//	})
//
// # Error Classification
//
// Raw errors are mapped onto a closed set of categories by a first-match
// strategy chain, each category carrying an HTTP status, a user-safe message
// and a logging severity. Classification is total: any error, including nil,
// yields a category.
//
//	classified := mgr.Classify(err)
//	fmt.Println(classified.Category, classified.StatusCode, classified.UserMessage)
//
// # Guarded Execution
//
// Run executes an operation under the failure pipeline: failures are
// classified, counted against the operation label, logged once and returned
// as *errors.ClassifiedError.
//
//	err := mgr.Run(ctx, "fetch_quote", func(ctx context.Context) error {
//		return client.Refresh(ctx)
//	}, nil)
//
// # Circuit Breaking
//
// An operation whose recent failures exceed the trip threshold within the
// sliding window is marked tripped for a cooldown period. The breaker is
// advisory: execution continues unless Config.ShortCircuit opts in to
// rejecting calls while a breaker is active.
//
//	if mgr.IsCircuitActive("fetch_quote") {
//		// degrade: serve cached data
//	}
//
// # Retry with Exponential Backoff
//
// RunWithRetry retries failures in retryable categories (timeouts, rate
// limits, unavailable or upstream errors by default) with exponential
// backoff. Delays are deterministic unless jitter is enabled.
//
//	err := mgr.RunWithRetry(ctx, "store_quote", func(ctx context.Context) error {
//		return cache.Store(ctx, quote)
//	}, resilience.DefaultRetryConfig())
//
// # Batch Execution
//
// RunBatch fans items out in bounded concurrent groups and collects
// per-index successes and failures.
//
//	result, err := mgr.RunBatch(ctx, "refresh_quotes", items, fetchOne,
//		&resilience.BatchConfig{Concurrency: 5})
//	for _, f := range result.Failures {
//		fmt.Println(f.Index, f.Err.Category)
//	}
//
// All state is in-memory and mutex-guarded; the package is safe for
// concurrent use and reads no environment variables.
package resilience
