package apiguard

import (
	"sync"
	"time"
)

// durationBufferSize bounds the recent-duration ring used for the average.
const durationBufferSize = 1000

// EndpointMetrics are the per-endpoint cumulative counters.
type EndpointMetrics struct {
	Count         uint64        `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	Errors        uint64        `json:"errors"`
}

// Metrics is a point-in-time snapshot of the Collector with derived values.
// Rates are zero when no events have been recorded.
type Metrics struct {
	RequestsTotal uint64                     `json:"requests_total"`
	ErrorsTotal   uint64                     `json:"errors_total"`
	Endpoints     map[string]EndpointMetrics `json:"requests_by_endpoint"`
	ErrorsByType  map[string]uint64          `json:"errors_by_type"`
	CacheHits     uint64                     `json:"cache_hits"`
	CacheMisses   uint64                     `json:"cache_misses"`
	AvgDuration   time.Duration              `json:"avg_response_time"`
	CacheHitRate  float64                    `json:"cache_hit_rate"`
	ErrorRate     float64                    `json:"error_rate"`
}

// Collector aggregates operational counters in-process: call counts,
// latencies, error types and cache hit/miss counts. All mutating methods are
// safe for concurrent use from many call sites; Snapshot may observe a
// recent-but-not-perfectly-consistent view. State lives for the process
// lifetime; Reset exists for test isolation only.
type Collector struct {
	mu            sync.Mutex
	requestsTotal uint64
	errorsTotal   uint64
	endpoints     map[string]*EndpointMetrics
	errorsByType  map[string]uint64
	cacheHits     uint64
	cacheMisses   uint64

	durations []time.Duration
	durIdx    int
}

// NewCollector creates an empty metrics collector.
func NewCollector() *Collector {
	return &Collector{
		endpoints:    make(map[string]*EndpointMetrics),
		errorsByType: make(map[string]uint64),
		durations:    make([]time.Duration, 0, durationBufferSize),
	}
}

// RecordRequest accounts one call against endpoint. Failed calls also count
// toward the total and per-endpoint error counters.
func (c *Collector) RecordRequest(endpoint string, duration time.Duration, success bool) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestsTotal++

	ep := c.endpoints[endpoint]
	if ep == nil {
		ep = &EndpointMetrics{}
		c.endpoints[endpoint] = ep
	}
	ep.Count++
	ep.TotalDuration += duration

	if !success {
		c.errorsTotal++
		ep.Errors++
	}

	if len(c.durations) < durationBufferSize {
		c.durations = append(c.durations, duration)
		return
	}
	// Ring buffer: overwrite the oldest sample.
	c.durations[c.durIdx] = duration
	c.durIdx = (c.durIdx + 1) % durationBufferSize
}

// RecordError accounts one error by type, e.g. "Timeout" or "Network".
func (c *Collector) RecordError(errorType string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.errorsTotal++
	c.errorsByType[errorType]++
}

// RecordCache accounts one cache lookup outcome.
func (c *Collector) RecordCache(hit bool) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if hit {
		c.cacheHits++
	} else {
		c.cacheMisses++
	}
}

// Snapshot returns a copy of all counters plus the derived average duration,
// cache-hit rate and error rate.
func (c *Collector) Snapshot() Metrics {
	if c == nil {
		return Metrics{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		RequestsTotal: c.requestsTotal,
		ErrorsTotal:   c.errorsTotal,
		Endpoints:     make(map[string]EndpointMetrics, len(c.endpoints)),
		ErrorsByType:  make(map[string]uint64, len(c.errorsByType)),
		CacheHits:     c.cacheHits,
		CacheMisses:   c.cacheMisses,
	}
	for name, ep := range c.endpoints {
		m.Endpoints[name] = *ep
	}
	for name, count := range c.errorsByType {
		m.ErrorsByType[name] = count
	}

	if n := len(c.durations); n > 0 {
		var total time.Duration
		for _, d := range c.durations {
			total += d
		}
		m.AvgDuration = total / time.Duration(n)
	}
	if lookups := c.cacheHits + c.cacheMisses; lookups > 0 {
		m.CacheHitRate = float64(c.cacheHits) / float64(lookups)
	}
	if c.requestsTotal > 0 {
		m.ErrorRate = float64(c.errorsTotal) / float64(c.requestsTotal)
	}

	return m
}

// Reset clears all state. Intended for test isolation only.
func (c *Collector) Reset() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestsTotal = 0
	c.errorsTotal = 0
	c.endpoints = make(map[string]*EndpointMetrics)
	c.errorsByType = make(map[string]uint64)
	c.cacheHits = 0
	c.cacheMisses = 0
	c.durations = c.durations[:0]
	c.durIdx = 0
}
