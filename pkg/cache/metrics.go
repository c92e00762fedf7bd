package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks item reads that found a value.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anvil_cache_hits_total",
			Help: "Total number of cache item hits",
		},
	)

	// CacheMisses tracks item reads that found nothing.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anvil_cache_misses_total",
			Help: "Total number of cache item misses",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "put", "delete", "clear", "increment"
	)
)
