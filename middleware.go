package apiguard

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Optional net/http glue. The layer itself only exposes data; these helpers
// wire it to a host's routes.

// ClientIP extracts the remote host from a request, the default caller key
// for HTTP rate limiting.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
	return host
}

// RateLimitMiddleware rejects over-budget callers with 429 and a retry hint,
// and annotates admitted responses with X-RateLimit headers. keyFunc
// defaults to ClientIP.
func RateLimitMiddleware(limiter *RateLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			decision := limiter.Allow(r.Context(), key)
			if !decision.Allowed {
				retryAfter := int(decision.RetryAfter / time.Second)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":       "Rate limit exceeded",
					"message":     "Too many requests. Please try again later.",
					"retry_after": retryAfter,
				})
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.MaxRequests()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(limiter.Window()).Unix(), 10))
			next.ServeHTTP(w, r)
		})
	}
}

// MonitoringMiddleware records one metrics sample per request under the
// "METHOD path" endpoint label; responses with status >= 400 count as
// errors.
func MonitoringMiddleware(collector *Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			endpoint := r.Method + " " + r.URL.Path

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			collector.RecordRequest(endpoint, duration, rec.status < 400)
		})
	}
}

// HealthHandler serves the guard's health surface as JSON.
func HealthHandler(guard *Guard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, guard.Health(r.Context()))
	})
}

// MetricsHandler serves the collector snapshot as JSON. For Prometheus
// scrapes, register a PrometheusBridge with promhttp instead.
func MetricsHandler(collector *Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, collector.Snapshot())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
