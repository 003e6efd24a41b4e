// Package observability provides Prometheus metrics, the in-process request
// statistics aggregator behind the health endpoint, and the dedicated admin
// server exposing probes and the metrics scrape target.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g. estimatrack_...).
const namespace = "estimatrack"

var (
	// -------------------------------------------------------------------------
	// DATA PLANE (public estimate API)
	// -------------------------------------------------------------------------

	// DataPlaneReqDuration measures the latency of estimate API requests.
	// Metric: estimatrack_data_plane_http_handling_seconds
	DataPlaneReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle estimate API requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// DataPlaneReqTotal counts estimate API requests by outcome.
	// Metric: estimatrack_data_plane_http_requests_total
	DataPlaneReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "http_requests_total",
		Help:      "Total estimate API requests",
	}, []string{"method", "path", "code"})

	// RateLimitRejections counts requests refused by the sliding window limiter.
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "rate_limit_rejections_total",
		Help:      "Total requests rejected by the per-IP rate limiter",
	})

	// EstimateResolutions counts resolver outcomes: rule_match, shop_default,
	// generic_fallback, no_rules.
	EstimateResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "estimate_resolutions_total",
		Help:      "Total estimate resolutions by outcome",
	}, []string{"outcome"})

	// -------------------------------------------------------------------------
	// RULE CACHE
	// -------------------------------------------------------------------------

	// RuleCacheHits/RuleCacheMisses track both cache layers ("l1", "l2").
	RuleCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total rule cache hits per layer",
	}, []string{"layer"})

	RuleCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total rule cache misses per layer",
	}, []string{"layer"})

	// -------------------------------------------------------------------------
	// CONTROL PLANE (admin API)
	// -------------------------------------------------------------------------

	ControlPlaneReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "control_plane",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle admin API requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	ControlPlaneReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "control_plane",
		Name:      "http_requests_total",
		Help:      "Total admin API requests",
	}, []string{"method", "path", "code"})
)
