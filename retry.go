package apiguard

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/oelbourki/apiguard/internal/backoff"
)

// Retry defaults carried over from the hosting application.
const (
	DefaultMaxAttempts   = 3
	DefaultInitialDelay  = time.Second
	DefaultBackoffFactor = 2.0
	DefaultMaxDelay      = time.Minute
)

// DefaultRetryableStatus treats 429 and all 5xx responses as retryable.
func DefaultRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// RetryableStatusSet builds a status predicate from an explicit code list.
func RetryableStatusSet(codes ...int) func(int) bool {
	set := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return func(code int) bool {
		_, ok := set[code]
		return ok
	}
}

// Retryer re-invokes a failing operation with exponential backoff on a
// configurable set of transient-failure conditions. Attempt 1 runs
// immediately; each retryable failure sleeps delay, then multiplies delay by
// the backoff factor up to the maximum. A non-retryable failure fails
// immediately with zero sleep. Exhaustion surfaces the last observed error
// unchanged so callers can still distinguish its cause.
//
// The inter-attempt sleep honors context cancellation: a cancelled context
// aborts the wait and no further attempts are scheduled. No lock is held
// while sleeping.
type Retryer struct {
	maxAttempts     int
	initialDelay    time.Duration
	backoffFactor   float64
	maxDelay        time.Duration
	jitter          float64
	strategy        backoff.Strategy
	retryIf         func(error) bool
	retryableStatus func(int) bool
	logger          Logger
}

// NewRetryer creates a retry executor. Any error is considered retryable
// until RetryIf narrows it; the HTTP path uses DefaultRetryableStatus. A nil
// logger disables logging; maxAttempts below 1 is raised to 1 so the
// operation always runs at least once.
func NewRetryer(maxAttempts int, initialDelay time.Duration, backoffFactor float64, maxDelay time.Duration, logger Logger) *Retryer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Retryer{
		maxAttempts:     maxAttempts,
		initialDelay:    initialDelay,
		backoffFactor:   backoffFactor,
		maxDelay:        maxDelay,
		strategy:        backoff.ExponentialJitter{},
		retryIf:         func(error) bool { return true },
		retryableStatus: DefaultRetryableStatus,
		logger:          logger,
	}
}

// RetryIf replaces the retryable-error predicate and returns the Retryer for
// chaining.
func (r *Retryer) RetryIf(fn func(error) bool) *Retryer {
	if fn != nil {
		r.retryIf = fn
	}
	return r
}

// RetryStatuses replaces the retryable-status predicate used by DoHTTP.
func (r *Retryer) RetryStatuses(fn func(int) bool) *Retryer {
	if fn != nil {
		r.retryableStatus = fn
	}
	return r
}

// Jitter sets the jitter factor in [0, 1] applied to computed delays. The
// default is 0 so observed delays are exact.
func (r *Retryer) Jitter(f float64) *Retryer {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	r.jitter = f
	return r
}

// Strategy replaces the delay computation strategy.
func (r *Retryer) Strategy(s backoff.Strategy) *Retryer {
	if s != nil {
		r.strategy = s
	}
	return r
}

// Do runs op until it succeeds, fails non-retryably, or maxAttempts is
// exhausted. The returned error is op's own last error, never a wrapper.
func (r *Retryer) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.retryIf(err) {
			return err
		}
		if attempt == r.maxAttempts {
			break
		}

		delay := r.delay(attempt)
		r.logger.Warn("attempt failed, retrying",
			"attempt", attempt, "maxAttempts", r.maxAttempts, "delay", delay, "error", err)
		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}

	r.logger.Error("operation failed after exhausting attempts",
		"maxAttempts", r.maxAttempts, "error", lastErr)
	return lastErr
}

// DoValue is Do for operations returning a value.
func DoValue[T any](ctx context.Context, r *Retryer, op func(context.Context) (T, error)) (T, error) {
	var value T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// DoHTTP runs an HTTP-shaped operation, additionally treating the configured
// status codes as retryable even when op raised no error. A response with a
// non-retryable status is returned as-is without further attempts. When the
// final attempt still yields a retryable status the response is returned
// together with a GuardError describing it.
func (r *Retryer) DoHTTP(ctx context.Context, op func(context.Context) (*http.Response, error)) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := op(ctx)
		switch {
		case err != nil:
			lastResp, lastErr = nil, err
			if !r.retryIf(err) {
				return nil, err
			}
		case !r.retryableStatus(resp.StatusCode):
			return resp, nil
		default:
			lastResp, lastErr = resp, nil
			if attempt < r.maxAttempts {
				drainBody(resp)
			}
		}

		if attempt == r.maxAttempts {
			break
		}

		delay := r.delay(attempt)
		r.logger.Warn("attempt failed, retrying",
			"attempt", attempt, "maxAttempts", r.maxAttempts, "delay", delay,
			"status", statusOf(lastResp), "error", lastErr)
		if err := sleepContext(ctx, delay); err != nil {
			return nil, err
		}
	}

	if lastErr != nil {
		r.logger.Error("request failed after exhausting attempts",
			"maxAttempts", r.maxAttempts, "error", lastErr)
		return nil, lastErr
	}
	return lastResp, statusError(lastResp.StatusCode)
}

// delay computes the sleep before attempt+1; attempt is 1-based.
func (r *Retryer) delay(attempt int) time.Duration {
	return r.strategy.Delay(attempt-1, r.initialDelay, r.maxDelay, r.backoffFactor, r.jitter)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func statusError(code int) *GuardError {
	errType := ErrorTypeServer
	if code == http.StatusTooManyRequests {
		errType = ErrorTypeRateLimit
	}
	return &GuardError{
		Type:       errType,
		Message:    "retryable status after exhausting attempts",
		StatusCode: code,
	}
}

// drainBody consumes and closes a response body that will not be returned,
// so the underlying connection can be reused.
func drainBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
