// Package prometheus exposes engine metrics to Prometheus.
//
// Two surfaces are offered. [PrometheusExporter] renders a self-contained text exposition
// behind an [http.Handler]. [Collector] implements the client_golang Collector interface so
// the same counters can be registered on an application-owned registry next to other
// metrics. Counter names are prefixed authcore_*_total; the single histogram is
// authcore_backend_latency_seconds.
//
// # What this package must NOT do
//
//   - Register anything on the global default registry.
//   - Mutate engine state.
package prometheus
