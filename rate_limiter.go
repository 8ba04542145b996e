package apiguard

import (
	"context"
	"sync"
	"time"
)

// Default budgets carried over from the hosting application: a general API
// budget and a much tighter one for scraping-style calls.
const (
	DefaultMaxRequests       = 100
	DefaultScrapeMaxRequests = 10
	DefaultWindow            = time.Minute
)

const rateLimitKeyPrefix = "ratelimit:"

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter admits or rejects a unit of work per caller key within a
// rolling time budget. With a Store configured it uses an atomic
// increment-and-expire-if-new counter: a fixed-window approximation whose
// boundary is the first request after the previous window closed. It never
// undercounts but may admit up to 2x the budget across a boundary. The
// in-process fallback keeps per-key request timestamps instead, a true
// sliding window. The two semantics differ at window boundaries; tests pin
// each backend's own behavior.
//
// Store errors on an admission check fall back silently, per call, to the
// in-process check: a limiter backend outage never fails a caller's request.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	store       Store
	local       *slidingWindow
	logger      Logger
}

// NewRateLimiter creates a limiter allowing maxRequests per window for each
// key. store may be nil, in which case only the in-process sliding window is
// used. A nil logger disables logging.
func NewRateLimiter(store Store, maxRequests int, window time.Duration, logger Logger) *RateLimiter {
	if logger == nil {
		logger = NopLogger()
	}
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		store:       store,
		local:       newSlidingWindow(),
		logger:      logger,
	}
}

// Allow performs one admission check for key. Exactly maxRequests requests
// within a window are allowed; the next is rejected with a retry hint.
func (rl *RateLimiter) Allow(ctx context.Context, key string) Decision {
	if key == "" {
		key = "unknown"
	}

	if rl.store != nil {
		count, err := rl.store.Incr(ctx, rateLimitKeyPrefix+key, rl.window)
		if err == nil {
			d := Decision{
				Allowed:   count <= int64(rl.maxRequests),
				Remaining: clampRemaining(rl.maxRequests - int(count)),
			}
			if !d.Allowed {
				d.RetryAfter = rl.window
			}
			return d
		}
		rl.logger.Warn("rate limit store check failed, falling back to local", "key", key, "error", err)
	}

	return rl.local.allow(key, rl.maxRequests, rl.window)
}

// Remaining reports the requests left in the current window for key. It is
// best-effort: when the store is unreachable it answers from the local
// window, which may be stale by up to one check interval.
func (rl *RateLimiter) Remaining(ctx context.Context, key string) int {
	if key == "" {
		key = "unknown"
	}

	if rl.store != nil {
		count, err := rl.store.GetCount(ctx, rateLimitKeyPrefix+key)
		if err == nil {
			return clampRemaining(rl.maxRequests - int(count))
		}
		rl.logger.Warn("rate limit store read failed, falling back to local", "key", key, "error", err)
	}

	return rl.local.remaining(key, rl.maxRequests, rl.window)
}

// MaxRequests returns the configured per-window budget.
func (rl *RateLimiter) MaxRequests() int { return rl.maxRequests }

// Window returns the configured window length.
func (rl *RateLimiter) Window() time.Duration { return rl.window }

func clampRemaining(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// slidingWindow is the in-process fallback: per-key request timestamps,
// pruned on every check, guarded by a single mutex. Entries are created
// lazily; a key with no live timestamps is removed on its next check.
type slidingWindow struct {
	mu       sync.Mutex
	requests map[string][]time.Time
}

func newSlidingWindow() *slidingWindow {
	return &slidingWindow{requests: make(map[string][]time.Time)}
}

func (w *slidingWindow) allow(key string, maxRequests int, window time.Duration) Decision {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.prune(key, now, window)

	if len(live) >= maxRequests {
		retryAfter := live[0].Add(window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
	}

	w.requests[key] = append(live, now)
	return Decision{Allowed: true, Remaining: clampRemaining(maxRequests - len(live) - 1)}
}

func (w *slidingWindow) remaining(key string, maxRequests int, window time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.prune(key, time.Now(), window)
	return clampRemaining(maxRequests - len(live))
}

// prune drops timestamps at or past the window boundary and stores the
// result. Callers must hold w.mu.
func (w *slidingWindow) prune(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	stamps := w.requests[key]
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	if len(live) == 0 {
		delete(w.requests, key)
		return nil
	}
	w.requests[key] = live
	return live
}
