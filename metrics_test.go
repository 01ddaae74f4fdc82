package authcore

import (
	"sync"
	"testing"
	"time"
)

func TestMetricNamesComplete(t *testing.T) {
	for id := MetricID(0); id < metricIDCount; id++ {
		if MetricName(id) == "" {
			t.Fatalf("metric %d has no name", id)
		}
	}
	if MetricName(metricIDCount) != "" {
		t.Fatal("out-of-range id should have no name")
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics recorded a count")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if nilMetrics.Value(MetricLoginSuccess) != 0 {
		t.Fatal("nil metrics recorded a count")
	}
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricAuthenticateSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricAuthenticateSuccess); got != workers*perWorker {
		t.Fatalf("counter = %d, want %d", got, workers*perWorker)
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	samples := []time.Duration{
		2 * time.Millisecond,   // bucket 0
		8 * time.Millisecond,   // bucket 1
		40 * time.Millisecond,  // bucket 3
		900 * time.Millisecond, // bucket 7
	}
	for _, d := range samples {
		m.Observe(MetricAuthenticateLatency, d)
	}

	buckets := m.Snapshot().Histograms[MetricAuthenticateLatency]
	if len(buckets) != len(HistogramBucketBounds()) {
		t.Fatalf("bucket count = %d, want %d", len(buckets), len(HistogramBucketBounds()))
	}

	want := map[int]uint64{0: 1, 1: 1, 3: 1, 7: 1}
	for i, count := range buckets {
		if count != want[i] {
			t.Fatalf("bucket %d = %d, want %d", i, count, want[i])
		}
	}

	// Only the latency metric carries a histogram.
	m.Observe(MetricLoginSuccess, time.Millisecond)
	if _, ok := m.Snapshot().Histograms[MetricLoginSuccess]; ok {
		t.Fatal("unexpected histogram for a counter metric")
	}
}

func TestMetricsSnapshotCopies(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLogout)

	snap := m.Snapshot()
	m.Inc(MetricLogout)

	if snap.Counters[MetricLogout] != 1 {
		t.Fatalf("snapshot = %d, want 1", snap.Counters[MetricLogout])
	}
	if m.Value(MetricLogout) != 2 {
		t.Fatalf("live value = %d, want 2", m.Value(MetricLogout))
	}
}
