package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/internal/metrics"
)

// MetricID identifies a counter or histogram.
type MetricID uint16

const (
	MetricPasswordLoginSuccess MetricID = iota
	MetricPasswordLoginFailure
	MetricOtpLoginSuccess
	MetricOtpLoginFailure
	MetricFederatedLoginSuccess
	MetricFederatedLoginFailure
	MetricOtpIssued
	MetricOtpConsumed
	MetricOtpMissingChallenge
	MetricOtpRequestThrottled
	MetricFederatedIgnored
	MetricBootstrapSuccess
	MetricBootstrapFailure
	MetricBootstrapTimeout
	MetricLogout
	MetricForcedLogout
	MetricExtendSuccess
	MetricExtendFailure
	MetricProfileUpdated
	MetricStaleResultDiscarded
	MetricWarningShown
	MetricGuardRedirect
	MetricTokenStoreFailure
	// MetricBackendLatency is the only histogram: latency of every backend call.
	MetricBackendLatency
	metricIDCount
)

// Metrics counts engine events. A nil or disabled Metrics is a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	registry      *metrics.Registry
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds metrics from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
		registry:      metrics.NewRegistry(int(metricIDCount)),
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.registry.Inc(int(id))
}

// Observe records a backend call latency.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricBackendLatency {
		return
	}
	m.registry.Observe(int(id), d)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.registry.Value(int(id))
}

// Snapshot copies all metrics. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricBackendLatency {
			continue
		}
		s.Counters[id] = m.registry.Value(int(id))
	}
	if m.enableLatency {
		s.Histograms[MetricBackendLatency] = m.registry.Buckets(int(MetricBackendLatency))
	}
	return s
}
