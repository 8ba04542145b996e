package apiguard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.7:54321", "203.0.113.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"203.0.113.7", "203.0.113.7"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remoteAddr
		if got := ClientIP(r); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(nil, 2, time.Minute, nil)
	handler := RateLimitMiddleware(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/properties", nil)
		r.RemoteAddr = "203.0.113.7:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	w := do()
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", got, "2")
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "1")
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset header missing")
	}

	do()

	w = do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-budget status = %d, want 429", w.Code)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want integer >= 1", w.Header().Get("Retry-After"))
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode 429 body: %v", err)
	}
	if body["error"] != "Rate limit exceeded" {
		t.Errorf(`body["error"] = %v, want "Rate limit exceeded"`, body["error"])
	}
	if _, ok := body["retry_after"]; !ok {
		t.Error("429 body missing retry_after")
	}
}

func TestRateLimitMiddlewareCustomKeyFunc(t *testing.T) {
	limiter := NewRateLimiter(nil, 1, time.Minute, nil)
	keyFunc := func(r *http.Request) string { return r.Header.Get("X-API-Key") }
	handler := RateLimitMiddleware(limiter, keyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(apiKey string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-API-Key", apiKey)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	if code := do("tenant-a"); code != http.StatusOK {
		t.Errorf("tenant-a first request status = %d, want 200", code)
	}
	if code := do("tenant-a"); code != http.StatusTooManyRequests {
		t.Errorf("tenant-a second request status = %d, want 429", code)
	}
	// A different key has its own budget.
	if code := do("tenant-b"); code != http.StatusOK {
		t.Errorf("tenant-b first request status = %d, want 200", code)
	}
}

func TestMonitoringMiddleware(t *testing.T) {
	collector := NewCollector()
	handler := MonitoringMiddleware(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/ok", "/ok", "/boom"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	m := collector.Snapshot()
	if m.RequestsTotal != 3 {
		t.Errorf("RequestsTotal = %d, want 3", m.RequestsTotal)
	}
	if ep := m.Endpoints["GET /ok"]; ep.Count != 2 || ep.Errors != 0 {
		t.Errorf(`Endpoints["GET /ok"] = %+v, want count 2, errors 0`, ep)
	}
	if ep := m.Endpoints["GET /boom"]; ep.Count != 1 || ep.Errors != 1 {
		t.Errorf(`Endpoints["GET /boom"] = %+v, want count 1, errors 1`, ep)
	}
}

func TestMonitoringMiddlewareImplicitOK(t *testing.T) {
	collector := NewCollector()
	// Handler never calls WriteHeader; Go defaults the status to 200.
	handler := MonitoringMiddleware(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/implicit", nil))

	if ep := collector.Snapshot().Endpoints["GET /implicit"]; ep.Errors != 0 {
		t.Errorf("implicit 200 counted as error: %+v", ep)
	}
}

func TestHealthHandler(t *testing.T) {
	store := newMemStore()
	g := newTestGuard(t, store)

	w := httptest.NewRecorder()
	HealthHandler(g).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var status HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if status.Status != "healthy" || !status.StoreConnected {
		t.Errorf("health = %+v, want healthy with store connected", status)
	}
}

func TestMetricsHandler(t *testing.T) {
	collector := NewCollector()
	collector.RecordRequest("op", 5*time.Millisecond, true)
	collector.RecordCache(true)

	w := httptest.NewRecorder()
	MetricsHandler(collector).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics.json", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var m Metrics
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode metrics body: %v", err)
	}
	if m.RequestsTotal != 1 || m.CacheHits != 1 {
		t.Errorf("decoded metrics = %+v, want one request and one cache hit", m)
	}
}
