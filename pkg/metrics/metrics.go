// Package metrics exposes the Prometheus registry and HTTP handler for the
// dispatcher. Metrics themselves are defined next to the code that updates
// them (transport, cache, fetch, limiter, ratelimit, dispatch, sink).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all packages register into via promauto.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Transport (pkg/transport):
//   - fetch_transport_requests_total{outcome} (Counter): 2xx..5xx, cache, not_modified or error class
//   - fetch_transport_request_duration_seconds{source} (Histogram): network or cache
//
// Cache (pkg/cache):
//   - fetch_cache_hits_total{state} (Counter): fresh or revalidated
//   - fetch_cache_misses_total (Counter)
//   - fetch_cache_stored_bytes_total (Counter)
//   - fetch_cache_errors_total{operation} (Counter)
//
// Retry loop (pkg/fetch):
//   - fetch_attempts_total{outcome} (Counter): reply or transport_error
//   - fetch_retries_total (Counter)
//   - fetch_retry_backoff_seconds (Histogram)
//   - fetch_retry_exhausted_total (Counter)
//   - fetch_terminal_responses_total{kind} (Counter)
//
// Limiter (pkg/limiter):
//   - fetch_limiter_in_flight (Gauge)
//   - fetch_limiter_acquire_wait_seconds (Histogram)
//
// Rate limits (pkg/ratelimit):
//   - fetch_ratelimit_remaining{host} (Gauge): as advertised by the host
//   - fetch_ratelimit_observations_total{level} (Counter): healthy, warning or critical
//
// Batches (pkg/dispatch, pkg/sink):
//   - fetch_batches_total (Counter)
//   - fetch_batch_duration_seconds (Histogram)
//   - fetch_batch_responses_total{class} (Counter): successful or failed
//   - fetch_sink_publish_total{sink, outcome} (Counter)
//
// Example Prometheus Queries:
//
//   # Share of failed responses
//   sum(rate(fetch_batch_responses_total{class="failed"}[5m])) /
//   sum(rate(fetch_batch_responses_total[5m]))
//
//   # Retries per attempt
//   rate(fetch_retries_total[5m]) / rate(fetch_attempts_total[5m])
//
//   # Limiter saturation
//   fetch_limiter_in_flight
