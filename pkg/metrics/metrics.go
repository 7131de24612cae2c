// Package metrics exposes the Prometheus registry of the adapter.
// All metrics are defined in their respective packages (client, ratelimit,
// monitor, strategy, pagination, hints, retrieval) to keep them next to the
// code that updates them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the adapter.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the registered metrics for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - instantly_ratelimit_remaining (Gauge): Requests remaining in the current window
//   - instantly_ratelimit_blocks_total (Counter): Fetches refused because the quota was exhausted
//
// Client Profile Metrics (pkg/clientprofile):
//   - instantly_client_profile_detections_total{profile} (Counter): Detections by resulting profile
//
// Strategy Metrics (pkg/strategy):
//   - instantly_strategy_selections_total{strategy, source} (Counter): Decisions by strategy and source (auto, pinned, custom)
//
// Pagination Metrics (pkg/pagination):
//   - instantly_pages_normalized_total{operation, shape} (Counter): Pages by recognized payload shape
//
// Retrieval Metrics (pkg/monitor, pkg/retrieval):
//   - instantly_retrieval_fetches_total{operation} (Counter): Page fetches
//   - instantly_retrieval_items_total{operation} (Counter): Items returned
//   - instantly_retrieval_errors_total{operation} (Counter): Failed fetches
//   - instantly_retrieval_aborts_total{operation, reason} (Counter): Early stops by threshold
//   - instantly_retrieval_duration_seconds{operation} (Histogram): Retrieval wall time
//   - instantly_retrievals_total{operation, outcome} (Counter): Retrievals by outcome
//     (complete, partial, failed, rate_limited, stopped)
//   - instantly_retrieval_pages{operation} (Histogram): Pages per retrieval
//
// Size Hint Metrics (pkg/hints):
//   - instantly_hints_hits_total{store} (Counter): Lookups that found a live hint
//   - instantly_hints_misses_total{store} (Counter): Lookups without a live hint
//   - instantly_hints_errors_total{operation} (Counter): Store failures
//
// Request Metrics (pkg/client):
//   - instantly_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - instantly_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - instantly_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - instantly_retries_total{error_class} (Counter): Retry attempts by error class
//   - instantly_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - instantly_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Share of partial retrievals
//   sum(rate(instantly_retrievals_total{outcome="partial"}[5m])) /
//   sum(rate(instantly_retrievals_total[5m]))
//
//   # Quota pressure
//   instantly_ratelimit_remaining < 10
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(instantly_request_duration_seconds_bucket[5m]))
