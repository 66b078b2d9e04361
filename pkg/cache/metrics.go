package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by freshness
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flaskion_cache_hits_total",
			Help: "Total number of image cache hits",
		},
		[]string{"state"}, // "fresh", "stale"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flaskion_cache_misses_total",
			Help: "Total number of image cache misses",
		},
	)

	// CacheStoredBytes tracks bytes written to the cache
	CacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flaskion_cache_stored_bytes_total",
			Help: "Total bytes written to the image cache",
		},
	)

	// ConditionalRequests tracks 304 Not Modified responses
	ConditionalRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flaskion_cache_304_responses_total",
			Help: "Total number of 304 Not Modified responses for cached images",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flaskion_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
