// Package metrics exposes Prometheus collectors for the keyword crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	proxyEvictionsTotal        prometheus.Counter
	batchesWrittenTotal        *prometheus.CounterVec
	itemsTotal                 *prometheus.CounterVec
	topicsTotal                *prometheus.CounterVec
	searchesTotal              *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_attempts_total",
				Help: "Search page fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		proxyEvictionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_proxy_evictions_total",
				Help: "Proxies removed from the pool after failures.",
			},
		)

		batchesWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_batches_written_total",
				Help: "Batches persisted, labeled by topic.",
			},
			[]string{"topic"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_total",
				Help: "Extracted items, labeled by disposition (kept or dropped).",
			},
			[]string{"disposition"},
		)

		topicsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_topics_total",
				Help: "Topics processed, labeled by status.",
			},
			[]string{"status"},
		)

		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_searches_total",
				Help: "Query resolutions, labeled by whether a topic matched.",
			},
			[]string{"matched"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently crawling a topic.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one fetch attempt by outcome label.
func ObserveFetch(outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveProxyEviction counts one proxy removed from the pool.
func ObserveProxyEviction() {
	Init()
	proxyEvictionsTotal.Inc()
}

// ObserveBatch records a persisted batch and its kept/dropped item counts.
func ObserveBatch(topic string, kept, dropped int) {
	Init()
	batchesWrittenTotal.WithLabelValues(topic).Inc()
	if kept > 0 {
		itemsTotal.WithLabelValues("kept").Add(float64(kept))
	}
	if dropped > 0 {
		itemsTotal.WithLabelValues("dropped").Add(float64(dropped))
	}
}

// ObserveTopic increments the topic counter for the given status.
func ObserveTopic(status string) {
	Init()
	topicsTotal.WithLabelValues(status).Inc()
}

// ObserveSearch records a query resolution.
func ObserveSearch(matched bool) {
	Init()
	searchesTotal.WithLabelValues(strconv.FormatBool(matched)).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records a rate limiter wait.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
