// Package metrics exposes Prometheus collectors for the site API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
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
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_cache_lookups_total",
			Help: "Cache lookups, labeled by cache name and result (hit, miss, error).",
		},
		[]string{"cache", "result"},
	)

	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_upstream_requests_total",
			Help: "Outbound requests to third-party sites, labeled by upstream and outcome.",
		},
		[]string{"upstream", "outcome"},
	)

	upstreamRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_upstream_request_duration_seconds",
			Help:    "Latency of outbound requests to third-party sites.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"upstream"},
	)

	upstreamBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "site_upstream_breaker_open",
			Help: "1 when the circuit breaker for an upstream is open, 0 otherwise.",
		},
		[]string{"upstream"},
	)

	noteMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_note_mutations_total",
			Help: "Sticky note mutations, labeled by operation and result.",
		},
		[]string{"op", "result"},
	)

	paintUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_paint_uploads_total",
			Help: "Paint uploads, labeled by result.",
		},
		[]string{"result"},
	)

	filmsScrapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "site_letterboxd_films_scraped_total",
			Help: "Films parsed from letterboxd diary scrapes.",
		},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCache records a cache lookup result.
func ObserveCache(cache, result string) {
	cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// ObserveUpstream records one outbound request.
func ObserveUpstream(upstream, outcome string, duration time.Duration) {
	upstreamRequestsTotal.WithLabelValues(upstream, outcome).Inc()
	upstreamRequestDurationSeconds.WithLabelValues(upstream).Observe(duration.Seconds())
}

// SetBreakerOpen flips the breaker gauge for an upstream.
func SetBreakerOpen(upstream string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	upstreamBreakerState.WithLabelValues(upstream).Set(v)
}

// ObserveNoteMutation counts a note create/update/delete.
func ObserveNoteMutation(op string, err error) {
	noteMutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

// ObservePaintUpload counts a paint upload attempt.
func ObservePaintUpload(result string) {
	paintUploadsTotal.WithLabelValues(result).Inc()
}

// AddFilmsScraped adds n parsed films to the scrape counter.
func AddFilmsScraped(n int) {
	if n > 0 {
		filmsScrapedTotal.Add(float64(n))
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
