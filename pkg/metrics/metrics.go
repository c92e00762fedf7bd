// Package metrics provides the centralized Prometheus metrics reference for
// the Anvil client. All metrics are defined in their respective packages
// (api, queue, cache, ratelimit) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the Anvil client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Transport Metrics (pkg/api):
//   - anvil_requests_total{path, status} (Counter): Total requests by path and HTTP status
//   - anvil_request_duration_seconds{path} (Histogram): Request duration by path
//   - anvil_errors_total{class} (Counter): Errors by class (client, server, network)
//
// Retry Metrics (pkg/api):
//   - anvil_retries_total{error_class} (Counter): Retry attempts by error class
//   - anvil_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - anvil_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - anvil_rate_limit_remaining (Gauge): Requests remaining in the current budget window
//   - anvil_rate_limit_blocks_total (Counter): Requests blocked due to critical budget
//   - anvil_rate_limit_throttles_total (Counter): Requests throttled due to low budget
//
// Queue Metrics (pkg/queue):
//   - anvil_requeue_runs_total{outcome} (Counter): Requeue runs by outcome
//     (drained, limit, cancelled, no_error_queue)
//   - anvil_requeue_messages_total (Counter): Messages forwarded from error queues
//
// Cache Metrics (pkg/cache):
//   - anvil_cache_hits_total (Counter): Item reads that found a value
//   - anvil_cache_misses_total (Counter): Item reads that found nothing
//   - anvil_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(anvil_cache_hits_total[5m])) /
//   (sum(rate(anvil_cache_hits_total[5m])) + sum(rate(anvil_cache_misses_total[5m])))
//
//   # Budget Status
//   anvil_rate_limit_remaining < 20
//
//   # Request Error Rate
//   rate(anvil_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(anvil_request_duration_seconds_bucket[5m]))
//
//   # Requeue Throughput
//   rate(anvil_requeue_messages_total[5m])
