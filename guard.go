package apiguard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Call names one guarded invocation: the caller key charged for admission,
// the endpoint label for metrics, and optionally the cache identity.
type Call struct {
	// Key identifies the caller for rate limiting (e.g. a client address).
	Key string
	// Endpoint labels the call in metrics; "unknown" when empty.
	Endpoint string
	// CacheName is the logical operation name used in cache-key derivation.
	// Leave empty to bypass caching for this call.
	CacheName string
	// CacheKey holds the ordered arguments hashed into the cache key.
	CacheKey []any
	// CacheTTL overrides the cache's default TTL when positive.
	CacheTTL time.Duration
}

// Guard chains the resilience primitives around a call site in a fixed
// order: admit → cache lookup → retry(operation) → cache store → metrics.
// Construct one per external resource and share it; a single *Guard is safe
// for concurrent use.
type Guard struct {
	store   Store
	logger  Logger
	metrics *Collector
	limiter *RateLimiter
	cache   *ResponseCache
	retryer *Retryer

	rateLimitMax    int
	rateLimitWindow time.Duration

	cacheEnabled bool
	cacheTTL     time.Duration

	retryMaxAttempts   int
	retryInitialDelay  time.Duration
	retryBackoffFactor float64
	retryMaxDelay      time.Duration
	retryJitter        float64
	retryIf            func(error) bool
	retryableStatus    func(int) bool

	validationError error
}

// New constructs a Guard from the provided functional options. Configuration
// is validated at construction; an invalid Guard fails every call with the
// validation error (check IsValid / ValidationError up front).
func New(options ...Option) *Guard {
	g := &Guard{
		logger:             NopLogger(),
		retryMaxAttempts:   1,
		retryInitialDelay:  DefaultInitialDelay,
		retryBackoffFactor: DefaultBackoffFactor,
		retryMaxDelay:      DefaultMaxDelay,
	}

	for _, option := range options {
		option(g)
	}

	if err := g.validateConfiguration(); err != nil {
		g.validationError = err
		return g
	}

	if g.rateLimitMax > 0 {
		g.limiter = NewRateLimiter(g.store, g.rateLimitMax, g.rateLimitWindow, g.logger)
	}
	if g.cacheEnabled {
		g.cache = NewResponseCache(g.store, g.cacheTTL, g.logger, g.metrics)
	}

	retryer := NewRetryer(g.retryMaxAttempts, g.retryInitialDelay, g.retryBackoffFactor, g.retryMaxDelay, g.logger)
	retryer.Jitter(g.retryJitter)
	if g.retryIf != nil {
		retryer.RetryIf(g.retryIf)
	}
	if g.retryableStatus != nil {
		retryer.RetryStatuses(g.retryableStatus)
	}
	g.retryer = retryer

	return g
}

// Execute runs op through the full guard chain. An admission denial returns
// a GuardError matching ErrRateLimited with a retry-after hint; cache hits
// return the stored value without invoking op; everything else flows through
// the retry executor. Store outages degrade individual features and never
// fail the call.
func Execute[T any](ctx context.Context, g *Guard, call Call, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if g.validationError != nil {
		return zero, g.validationError
	}

	start := time.Now()
	endpoint := call.Endpoint
	if endpoint == "" {
		endpoint = "unknown"
	}

	if g.limiter != nil {
		decision := g.limiter.Allow(ctx, call.Key)
		if !decision.Allowed {
			g.metrics.RecordError(ErrorTypeRateLimit)
			g.logger.Warn("rate limit exceeded",
				"key", call.Key, "endpoint", endpoint, "retryAfter", decision.RetryAfter)
			return zero, newRateLimitError(call.Key, decision.RetryAfter)
		}
	}

	run := func(ctx context.Context) (T, error) {
		return DoValue(ctx, g.retryer, op)
	}

	var value T
	var err error
	if g.cache != nil && call.CacheName != "" {
		value, err = Cached(ctx, g.cache, call.CacheName, call.CacheKey, call.CacheTTL, run)
	} else {
		value, err = run(ctx)
	}

	g.metrics.RecordRequest(endpoint, time.Since(start), err == nil)
	if err != nil {
		g.metrics.RecordError(errorTypeOf(err))
	}
	return value, err
}

// Do is Execute for operations without a result value. Calls guarded by Do
// should not set CacheName: there is nothing worth memoizing.
func (g *Guard) Do(ctx context.Context, call Call, op func(context.Context) error) error {
	_, err := Execute(ctx, g, call, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// HealthStatus is the read-only health surface offered to monitoring
// endpoints: store reachability plus the current metrics snapshot.
type HealthStatus struct {
	Status         string  `json:"status"`
	StoreConnected bool    `json:"store_connected"`
	Metrics        Metrics `json:"metrics"`
}

// Health reports store reachability and the metrics snapshot. The layer does
// not define HTTP routes for it; see HealthHandler for optional glue.
func (g *Guard) Health(ctx context.Context) HealthStatus {
	connected := false
	if g.store != nil {
		connected = g.store.Ping(ctx) == nil
	}
	return HealthStatus{
		Status:         "healthy",
		StoreConnected: connected,
		Metrics:        g.metrics.Snapshot(),
	}
}

// RateLimiter returns the configured limiter, or nil when rate limiting is
// disabled.
func (g *Guard) RateLimiter() *RateLimiter { return g.limiter }

// Cache returns the configured response cache, or nil when caching is
// disabled.
func (g *Guard) Cache() *ResponseCache { return g.cache }

// Retryer returns the retry executor used for guarded calls.
func (g *Guard) Retryer() *Retryer { return g.retryer }

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (g *Guard) Metrics() *Collector { return g.metrics }

// IsValid reports whether configuration validation passed at construction.
func (g *Guard) IsValid() bool { return g.validationError == nil }

// ValidationError returns the configuration validation error, if any.
func (g *Guard) ValidationError() error { return g.validationError }

// errorTypeOf maps an error to the type label recorded in metrics.
func errorTypeOf(err error) string {
	var guardErr *GuardError
	if errors.As(err, &guardErr) {
		return guardErr.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}
	return fmt.Sprintf("%T", err)
}
