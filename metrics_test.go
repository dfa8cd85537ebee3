package goSession

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricRefreshVerified)

	if got := m.Value(MetricRefreshVerified); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsNilIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricRevoked)
	m.Observe(MetricVerifyLatency, time.Millisecond)
	if got := m.Value(MetricRevoked); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRevocationHitCache)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRevocationHitCache); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}
	for _, d := range observations {
		m.Observe(MetricRevocationLookupLatency, d)
	}

	buckets := m.Snapshot().Histograms[MetricRevocationLookupLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricRevoked, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricRevoked]; ok {
		t.Fatalf("counter id must not appear as histogram")
	}
	if _, ok := snap.Counters[MetricVerifyLatency]; ok {
		t.Fatalf("histogram id must not appear as counter")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricOTPVerified)
	m.Inc(MetricOTPFailure)
	m.Add(MetricOTPFailure, 2)
	m.Observe(MetricVerifyLatency, 2*time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricOTPVerified] != 1 {
		t.Fatalf("expected MetricOTPVerified=1 got %d", snap.Counters[MetricOTPVerified])
	}
	if snap.Counters[MetricOTPFailure] != 3 {
		t.Fatalf("expected MetricOTPFailure=3 got %d", snap.Counters[MetricOTPFailure])
	}
	if snap.Histograms[MetricVerifyLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricVerifyLatency][0])
	}
}
