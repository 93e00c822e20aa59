// Package metrics provides the centralized Prometheus registry
// reference for mp-resolve. All metrics are defined in their
// respective packages (fetch, retry, dispatch, sink, cache) to
// maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by mp-resolve.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/fetch):
//   - resolve_requests_total{status} (Counter): API requests by HTTP status
//     (status "network_error" when no response was received)
//   - resolve_request_duration_seconds (Histogram): Request duration
//
// Retry Metrics (pkg/retry):
//   - resolve_retries_total{reason} (Counter): Retry decisions by reason
//     (rate_limit, server, network)
//   - resolve_retry_backoff_seconds{reason} (Histogram): Backoff duration
//   - resolve_retry_exhausted_total{reason} (Counter): Identifiers that
//     used up their whole retry budget
//
// Dispatch Metrics (pkg/dispatch):
//   - resolve_workers_active (Gauge): Workers currently running
//   - resolve_worker_panics_recovered_total (Counter): Panics converted
//     into terminal outcomes
//
// Sink Metrics (pkg/sink):
//   - resolve_rows_written_total{result} (Counter): Rows written by
//     result (ok, error)
//
// Resume Cache Metrics (pkg/cache):
//   - resolve_cache_hits_total (Counter): Identifiers skipped via cache
//   - resolve_cache_misses_total (Counter): Cache misses
//   - resolve_cache_errors_total{operation} (Counter): Cache errors
//
// Example Prometheus Queries:
//
//   # Failure rate of the last run
//   sum(resolve_rows_written_total{result="error"}) /
//   sum(resolve_rows_written_total)
//
//   # Retry pressure by reason
//   rate(resolve_retries_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(resolve_request_duration_seconds_bucket[5m]))
