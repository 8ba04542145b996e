// Package apiguard provides a composable request-resilience layer for
// outbound calls to rate-limited, costly or flaky external APIs:
//
//   - Per-key rate limiting (shared-store fixed window with an in-process
//     sliding-window fallback)
//   - TTL response caching over a shared key-value store, degrading to a
//     pass-through when the store is unreachable
//   - Retries with exponential backoff + jitter and an HTTP status-code
//     specialization (429 / 5xx by default)
//   - In-process metrics aggregation with a Prometheus bridge
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - No package-level singletons: every component is constructed and
//     injected explicitly
//   - Safe concurrent use of a single *Guard instance
//   - Backend outages degrade features, never fail the guarded call
//
// Typical usage:
//
//	guard := apiguard.New(
//	    apiguard.WithStore(store),
//	    apiguard.WithRateLimit(100, time.Minute),
//	    apiguard.WithCache(time.Hour),
//	    apiguard.WithRetry(3, time.Second, 2.0, time.Minute),
//	    apiguard.WithMetrics(),
//	)
//	listing, err := apiguard.Execute(ctx, guard, apiguard.Call{
//	    Key:       clientIP,
//	    Endpoint:  "zillow.search",
//	    CacheName: "search",
//	    CacheKey:  []any{city, maxPrice},
//	    CacheTTL:  time.Hour,
//	}, fetchListings)
//
// Only admission denials and exhausted or fatal operation failures cross the
// layer's boundary; store and serialization failures are logged at warning
// level and contained. The library avoids opinionated logging: provide a
// Logger (e.g. via WithSimpleLogger, or the zap adapter) for insight without
// noise.
package apiguard
