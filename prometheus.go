package apiguard

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusBridge exposes a Collector snapshot as Prometheus metrics. It
// implements prometheus.Collector, so the in-process aggregation stays the
// single source of truth and scrapes read a consistent snapshot.
type PrometheusBridge struct {
	collector *Collector

	requestsDesc     *prometheus.Desc
	errorsDesc       *prometheus.Desc
	errorsByTypeDesc *prometheus.Desc
	endpointReqDesc  *prometheus.Desc
	endpointErrDesc  *prometheus.Desc
	cacheHitsDesc    *prometheus.Desc
	cacheMissesDesc  *prometheus.Desc
	avgDurationDesc  *prometheus.Desc
	cacheHitRateDesc *prometheus.Desc
	errorRateDesc    *prometheus.Desc
}

// NewPrometheusBridge creates a bridge over c. Register it with a
// prometheus.Registerer to expose the metrics.
func NewPrometheusBridge(c *Collector) *PrometheusBridge {
	return &PrometheusBridge{
		collector: c,
		requestsDesc: prometheus.NewDesc(
			"apiguard_requests_total",
			"Total number of guarded calls made",
			nil, nil,
		),
		errorsDesc: prometheus.NewDesc(
			"apiguard_errors_total",
			"Total number of errors encountered",
			nil, nil,
		),
		errorsByTypeDesc: prometheus.NewDesc(
			"apiguard_errors_by_type_total",
			"Total number of errors by error type",
			[]string{"type"}, nil,
		),
		endpointReqDesc: prometheus.NewDesc(
			"apiguard_endpoint_requests_total",
			"Total number of guarded calls by endpoint",
			[]string{"endpoint"}, nil,
		),
		endpointErrDesc: prometheus.NewDesc(
			"apiguard_endpoint_errors_total",
			"Total number of failed guarded calls by endpoint",
			[]string{"endpoint"}, nil,
		),
		cacheHitsDesc: prometheus.NewDesc(
			"apiguard_cache_hits_total",
			"Total number of cache hits",
			nil, nil,
		),
		cacheMissesDesc: prometheus.NewDesc(
			"apiguard_cache_misses_total",
			"Total number of cache misses",
			nil, nil,
		),
		avgDurationDesc: prometheus.NewDesc(
			"apiguard_request_duration_avg_seconds",
			"Average duration over the retained recent-duration buffer",
			nil, nil,
		),
		cacheHitRateDesc: prometheus.NewDesc(
			"apiguard_cache_hit_rate",
			"Cache hits over total cache lookups",
			nil, nil,
		),
		errorRateDesc: prometheus.NewDesc(
			"apiguard_error_rate",
			"Errors over total guarded calls",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (b *PrometheusBridge) Describe(ch chan<- *prometheus.Desc) {
	ch <- b.requestsDesc
	ch <- b.errorsDesc
	ch <- b.errorsByTypeDesc
	ch <- b.endpointReqDesc
	ch <- b.endpointErrDesc
	ch <- b.cacheHitsDesc
	ch <- b.cacheMissesDesc
	ch <- b.avgDurationDesc
	ch <- b.cacheHitRateDesc
	ch <- b.errorRateDesc
}

// Collect implements prometheus.Collector.
func (b *PrometheusBridge) Collect(ch chan<- prometheus.Metric) {
	m := b.collector.Snapshot()

	ch <- prometheus.MustNewConstMetric(b.requestsDesc, prometheus.CounterValue, float64(m.RequestsTotal))
	ch <- prometheus.MustNewConstMetric(b.errorsDesc, prometheus.CounterValue, float64(m.ErrorsTotal))
	for errType, count := range m.ErrorsByType {
		ch <- prometheus.MustNewConstMetric(b.errorsByTypeDesc, prometheus.CounterValue, float64(count), errType)
	}
	for endpoint, ep := range m.Endpoints {
		ch <- prometheus.MustNewConstMetric(b.endpointReqDesc, prometheus.CounterValue, float64(ep.Count), endpoint)
		ch <- prometheus.MustNewConstMetric(b.endpointErrDesc, prometheus.CounterValue, float64(ep.Errors), endpoint)
	}
	ch <- prometheus.MustNewConstMetric(b.cacheHitsDesc, prometheus.CounterValue, float64(m.CacheHits))
	ch <- prometheus.MustNewConstMetric(b.cacheMissesDesc, prometheus.CounterValue, float64(m.CacheMisses))
	ch <- prometheus.MustNewConstMetric(b.avgDurationDesc, prometheus.GaugeValue, m.AvgDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(b.cacheHitRateDesc, prometheus.GaugeValue, m.CacheHitRate)
	ch <- prometheus.MustNewConstMetric(b.errorRateDesc, prometheus.GaugeValue, m.ErrorRate)
}
