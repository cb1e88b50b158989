package otel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	authcore "github.com/MrEthical07/authcore"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// stubSource serves a snapshot that tests may swap while collection runs.
type stubSource struct {
	snap    atomic.Pointer[authcore.MetricsSnapshot]
	dropped atomic.Uint64
}

func newStubSource(counters map[authcore.MetricID]uint64, latency []uint64) *stubSource {
	s := &stubSource{}
	s.set(counters, latency)
	return s
}

func (s *stubSource) set(counters map[authcore.MetricID]uint64, latency []uint64) {
	snap := authcore.MetricsSnapshot{
		Counters:   counters,
		Histograms: map[authcore.MetricID][]uint64{authcore.MetricBackendLatency: latency},
	}
	s.snap.Store(&snap)
}

func (s *stubSource) MetricsSnapshot() authcore.MetricsSnapshot {
	if p := s.snap.Load(); p != nil {
		return *p
	}
	return authcore.MetricsSnapshot{}
}

func (s *stubSource) AuditDropped() uint64 { return s.dropped.Load() }

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) > 0 {
				return sum.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("authcore-test")

	src := newStubSource(map[authcore.MetricID]uint64{authcore.MetricPasswordLoginSuccess: 3}, []uint64{1, 1, 1, 1, 1, 1, 1, 1})
	src.dropped.Store(1)

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if v, ok := findSum(rm, "authcore_password_login_success_total"); !ok || v != 3 {
		t.Fatalf("login counter = %d, %v", v, ok)
	}
	if v, ok := findSum(rm, "authcore_audit_dropped_total"); !ok || v != 1 {
		t.Fatalf("dropped counter = %d, %v", v, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()

	if _, err := NewOTelExporterFromSource(provider.Meter("authcore-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &stubSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("authcore-test")

	src := newStubSource(map[authcore.MetricID]uint64{authcore.MetricLogout: 1}, []uint64{1, 0, 0, 0, 0, 0, 0, 0})

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.set(map[authcore.MetricID]uint64{authcore.MetricLogout: v}, []uint64{v, 0, 0, 0, 0, 0, 0, 0})

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestCloseNilExporter(t *testing.T) {
	var e *OTelExporter
	if err := e.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
