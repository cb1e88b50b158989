// Package metrics is the storage behind authcore.Metrics: a fixed set of counters and
// backend latency histograms addressed by small integer IDs.
//
// Each counter sits in its own padded slot so concurrent increments from the engine loop
// and its workers do not contend on a cache line. Histograms have eight buckets, the last
// unbounded. Neither Inc nor Observe allocates.
//
// Metric names, snapshots, and exporters are not defined here; see the root package and
// metrics/export.
package metrics
