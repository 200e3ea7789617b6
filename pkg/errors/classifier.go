package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ClassifiedError is the uniform failure shape produced by the Classifier.
// It is immutable once constructed; Cause always preserves the original
// failure and is reachable through errors.Is/As via Unwrap.
type ClassifiedError struct {
	Category    Category  `json:"category"`
	StatusCode  int       `json:"status_code"`
	UserMessage string    `json:"user_message"`
	ShouldLog   bool      `json:"should_log"`
	Context     string    `json:"context,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Cause       error     `json:"-"`
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (caused by: %v)", e.Category, e.UserMessage, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Category, e.UserMessage)
}

// Unwrap returns the underlying cause
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// WithContext returns a copy tagged with the operation context label.
func (e *ClassifiedError) WithContext(context string) *ClassifiedError {
	clone := *e
	clone.Context = context
	return &clone
}

// ClassificationStrategy maps one class of raw failure to its
// classification metadata. Strategies are pure; they only inspect the
// error value and never perform I/O.
type ClassificationStrategy interface {
	Matches(err error) bool
	Category() Category
	StatusCode(err error) int
	UserMessage(err error) string
	ShouldLogDetails(err error) bool
}

// StatusCoder is implemented by errors that carry an HTTP status code,
// such as responses surfaced by upstream API clients.
type StatusCoder interface {
	StatusCode() int
}

// ErrorCoder is implemented by driver errors that carry a numeric error
// code, such as duplicate-key violations.
type ErrorCoder interface {
	ErrorCode() int
}

// patternStrategy matches on a predicate and answers with its category's
// default metadata. The chain stays data, so entries can be tested and
// reordered in isolation.
type patternStrategy struct {
	category Category
	match    func(err error) bool
}

func (s *patternStrategy) Matches(err error) bool {
	return err != nil && s.match(err)
}

func (s *patternStrategy) Category() Category {
	return s.category
}

func (s *patternStrategy) StatusCode(err error) int {
	return s.category.HTTPStatus()
}

func (s *patternStrategy) UserMessage(err error) string {
	return s.category.UserMessage()
}

func (s *patternStrategy) ShouldLogDetails(err error) bool {
	return s.category.LogDetails()
}

// NewPatternStrategy builds a strategy that classifies any error matching
// the predicate into the given category with the category's defaults.
func NewPatternStrategy(category Category, match func(err error) bool) ClassificationStrategy {
	return &patternStrategy{category: category, match: match}
}

// catchAllStrategy terminates every chain. It matches anything, including
// nil, so classification is total.
type catchAllStrategy struct{}

func (catchAllStrategy) Matches(err error) bool          { return true }
func (catchAllStrategy) Category() Category              { return CategoryInternal }
func (catchAllStrategy) StatusCode(err error) int        { return CategoryInternal.HTTPStatus() }
func (catchAllStrategy) UserMessage(err error) string    { return CategoryInternal.UserMessage() }
func (catchAllStrategy) ShouldLogDetails(err error) bool { return true }

func messageContains(substrings ...string) func(err error) bool {
	return func(err error) bool {
		msg := strings.ToLower(err.Error())
		for _, s := range substrings {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
}

func statusEquals(err error, code int) bool {
	var coder StatusCoder
	if stderrors.As(err, &coder) {
		return coder.StatusCode() == code
	}
	return false
}

func errorCodeEquals(err error, code int) bool {
	var coder ErrorCoder
	if stderrors.As(err, &coder) {
		return coder.ErrorCode() == code
	}
	return false
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return statusEquals(err, 408) || statusEquals(err, 504) ||
		messageContains("timeout", "timed out", "deadline exceeded")(err)
}

// defaultStrategies returns the built-in chain in registration order.
// Order is a contract: an error matching several predicates resolves to
// the first entry, and callers extending the chain insert before the
// catch-all.
func defaultStrategies() []ClassificationStrategy {
	return []ClassificationStrategy{
		NewPatternStrategy(CategoryValidation, func(err error) bool {
			return messageContains("validation", "invalid", "required", "malformed", "must be")(err) ||
				statusEquals(err, 400)
		}),
		NewPatternStrategy(CategoryAuthentication, func(err error) bool {
			return messageContains("unauthorized", "authentication", "not authenticated", "token expired")(err) ||
				statusEquals(err, 401)
		}),
		NewPatternStrategy(CategoryAuthorization, func(err error) bool {
			return messageContains("forbidden", "permission denied", "access denied")(err) ||
				statusEquals(err, 403)
		}),
		NewPatternStrategy(CategoryNotFound, func(err error) bool {
			return messageContains("not found", "no such", "does not exist")(err) ||
				statusEquals(err, 404)
		}),
		NewPatternStrategy(CategoryRateLimit, func(err error) bool {
			return messageContains("rate limit", "too many requests", "quota exceeded")(err) ||
				statusEquals(err, 429)
		}),
		NewPatternStrategy(CategoryTimeout, isTimeout),
		NewPatternStrategy(CategoryDatabase, func(err error) bool {
			return errorCodeEquals(err, 11000) ||
				messageContains("duplicate key", "e11000", "database", "mongo", "sql:", "constraint violation")(err)
		}),
		NewPatternStrategy(CategoryServiceUnavailable, func(err error) bool {
			return messageContains("unavailable", "connection refused", "connection reset", "no route to host")(err) ||
				statusEquals(err, 503)
		}),
		NewPatternStrategy(CategoryExternalAPI, func(err error) bool {
			if statusEquals(err, 502) {
				return true
			}
			var coder StatusCoder
			if stderrors.As(err, &coder) && coder.StatusCode() >= 500 {
				return true
			}
			return messageContains("bad gateway", "upstream", "external api")(err)
		}),
	}
}

// Classifier maps arbitrary failures onto the closed category taxonomy.
//
// Errors that already carry a category (*AppError, *ClassifiedError) keep
// it. Everything else walks the strategy chain in registration order and
// takes the first match; the catch-all guarantees a result for any input,
// nil included.
type Classifier struct {
	strategies []ClassificationStrategy
	catchAll   ClassificationStrategy
}

// NewClassifier returns a classifier with the default strategy chain.
func NewClassifier() *Classifier {
	return NewClassifierWithStrategies(defaultStrategies()...)
}

// NewClassifierWithStrategies returns a classifier evaluating the given
// strategies in order. The catch-all is always appended and cannot be
// displaced.
func NewClassifierWithStrategies(strategies ...ClassificationStrategy) *Classifier {
	return &Classifier{
		strategies: strategies,
		catchAll:   catchAllStrategy{},
	}
}

// Register inserts a strategy at the end of the chain, before the
// catch-all. Existing entries keep their precedence.
func (c *Classifier) Register(strategy ClassificationStrategy) {
	c.strategies = append(c.strategies, strategy)
}

// Classify maps a raw failure to a ClassifiedError. It always returns a
// value and never fails.
func (c *Classifier) Classify(err error) *ClassifiedError {
	now := time.Now()

	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		message := appErr.Message
		if message == "" {
			message = appErr.Category.UserMessage()
		}
		return &ClassifiedError{
			Category:    appErr.Category,
			StatusCode:  appErr.Category.HTTPStatus(),
			UserMessage: message,
			ShouldLog:   appErr.Category.LogDetails(),
			Timestamp:   now,
			Cause:       err,
		}
	}

	for _, strategy := range c.strategies {
		if strategy.Matches(err) {
			return newClassified(strategy, err, now)
		}
	}
	return newClassified(c.catchAll, err, now)
}

func newClassified(strategy ClassificationStrategy, err error, now time.Time) *ClassifiedError {
	return &ClassifiedError{
		Category:    strategy.Category(),
		StatusCode:  strategy.StatusCode(err),
		UserMessage: strategy.UserMessage(err),
		ShouldLog:   strategy.ShouldLogDetails(err),
		Timestamp:   now,
		Cause:       err,
	}
}
