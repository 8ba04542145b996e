package apiguard

import (
	"fmt"
	"time"
)

// Option configures a Guard at construction time.
type Option func(*Guard)

// WithStore sets the shared key-value store backing the rate limiter and the
// response cache. Without a store the limiter runs purely in-process and the
// cache is disabled-on-unavailability (every lookup misses).
func WithStore(store Store) Option {
	return func(g *Guard) {
		g.store = store
	}
}

// WithLogger sets the logger used by all components.
func WithLogger(logger Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithSimpleLogger enables logging with a plain console logger.
func WithSimpleLogger() Option {
	return func(g *Guard) {
		g.logger = NewSimpleLogger()
	}
}

// WithMetrics enables in-process metrics aggregation.
func WithMetrics() Option {
	return func(g *Guard) {
		g.metrics = NewCollector()
	}
}

// WithMetricsCollector sets a shared metrics collector, e.g. one also
// exposed through a PrometheusBridge.
func WithMetricsCollector(collector *Collector) Option {
	return func(g *Guard) {
		g.metrics = collector
	}
}

// WithRateLimit enables per-key admission control allowing maxRequests per
// window.
func WithRateLimit(maxRequests int, window time.Duration) Option {
	return func(g *Guard) {
		g.rateLimitMax = maxRequests
		g.rateLimitWindow = window
	}
}

// WithCache enables response caching with the given default TTL. Caching is
// a no-op until a store is also configured.
func WithCache(ttl time.Duration) Option {
	return func(g *Guard) {
		g.cacheEnabled = true
		g.cacheTTL = ttl
	}
}

// WithRetry configures the retry executor: attempt 1 runs immediately, each
// retryable failure sleeps the current delay and multiplies it by
// backoffFactor, capped at maxDelay.
func WithRetry(maxAttempts int, initialDelay time.Duration, backoffFactor float64, maxDelay time.Duration) Option {
	return func(g *Guard) {
		g.retryMaxAttempts = maxAttempts
		g.retryInitialDelay = initialDelay
		g.retryBackoffFactor = backoffFactor
		g.retryMaxDelay = maxDelay
	}
}

// WithRetryJitter sets the jitter factor in [0, 1] applied to retry delays.
func WithRetryJitter(f float64) Option {
	return func(g *Guard) {
		g.retryJitter = f
	}
}

// WithRetryCondition sets the retryable-error predicate.
func WithRetryCondition(fn func(error) bool) Option {
	return func(g *Guard) {
		g.retryIf = fn
	}
}

// WithRetryableStatus replaces the HTTP status codes treated as retryable
// (the default is 429 plus all 5xx).
func WithRetryableStatus(codes ...int) Option {
	return func(g *Guard) {
		g.retryableStatus = RetryableStatusSet(codes...)
	}
}

// validateConfiguration checks option combinations at construction time.
func (g *Guard) validateConfiguration() error {
	var problems []string

	if g.rateLimitMax < 0 {
		problems = append(problems, "rate limit maxRequests must be non-negative")
	}
	if g.rateLimitMax > 0 && g.rateLimitWindow <= 0 {
		problems = append(problems, "rate limit window must be positive")
	}
	if g.cacheEnabled && g.cacheTTL <= 0 {
		problems = append(problems, "cache TTL must be positive")
	}
	if g.retryMaxAttempts < 1 {
		problems = append(problems, "retry maxAttempts must be at least 1")
	}
	if g.retryInitialDelay <= 0 {
		problems = append(problems, "retry initialDelay must be positive")
	}
	if g.retryBackoffFactor <= 0 {
		problems = append(problems, "retry backoffFactor must be positive")
	}
	if g.retryMaxDelay < g.retryInitialDelay {
		problems = append(problems, "retry maxDelay must be at least initialDelay")
	}
	if g.retryJitter < 0 || g.retryJitter > 1 {
		problems = append(problems, "retry jitter must be between 0 and 1")
	}

	if len(problems) > 0 {
		return &GuardError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}
