// Package metrics provides the centralized Prometheus metrics registry for
// the BWS client. All metrics are defined in their respective packages
// (client, pool, endpoint) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the BWS client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Endpoint Metrics (pkg/endpoint):
//   - bws_endpoint_healthy{endpoint} (Gauge): Health state per endpoint (1 healthy, 0 unhealthy)
//   - bws_endpoint_latency_seconds{endpoint} (Gauge): Last observed latency per endpoint
//   - bws_endpoint_failures_total{endpoint} (Counter): Failure reports per endpoint
//   - bws_region_switches_total (Counter): Explicit and automatic region switches
//
// Pool Metrics (pkg/pool):
//   - bws_pool_connections_active{endpoint} (Gauge): Connections currently checked out
//   - bws_pool_connections_idle{endpoint} (Gauge): Connections parked in the idle set
//   - bws_pool_exhausted_total{endpoint} (Counter): Acquires that timed out waiting for a slot
//   - bws_pool_dial_failures_total{endpoint} (Counter): Failed dials for new pooled connections
//   - bws_pool_reaped_total{endpoint} (Counter): Idle connections closed by the reaper
//
// Request Metrics (pkg/client):
//   - bws_requests_total{operation, outcome} (Counter): Executed operations by outcome
//   - bws_request_duration_seconds{operation} (Histogram): Duration of successful attempts
//   - bws_retries_total{operation} (Counter): Retry attempts by operation
//   - bws_retry_exhausted_total{operation} (Counter): Operations that spent the retry budget
//   - bws_failovers_total{operation} (Counter): Attempts moved to a different endpoint
//
// Example Prometheus Queries:
//
//   # Failover Rate
//   rate(bws_failovers_total[5m])
//
//   # Unhealthy Endpoints
//   bws_endpoint_healthy == 0
//
//   # Pool Pressure
//   rate(bws_pool_exhausted_total[5m])
//
//   # P95 Operation Latency
//   histogram_quantile(0.95, rate(bws_request_duration_seconds_bucket[5m]))
//
//   # Retry Exhaustion Rate
//   rate(bws_retry_exhausted_total[5m]) / rate(bws_requests_total[5m])
