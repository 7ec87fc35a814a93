package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsRecordAndCollect(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()
	m.ChunksIngested.Add(ctx, 3, WithSource("decoder"))
	m.SegmentsEmitted.Add(ctx, 1)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	sums := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				sums[metric.Name] += dp.Value
			}
		}
	}

	if got := sums["transcriber.chunks.ingested"]; got != 3 {
		t.Fatalf("chunks ingested = %d, want 3", got)
	}
	if got := sums["transcriber.segments.emitted"]; got != 1 {
		t.Fatalf("segments emitted = %d, want 1", got)
	}
}

func TestDefaultNeverNil(t *testing.T) {
	t.Parallel()

	m := Default()
	if m == nil || m.ChunksIngested == nil || m.TranscribeDuration == nil {
		t.Fatalf("Default() returned an unusable Metrics: %+v", m)
	}

	// Recording against the unconfigured global provider must be a no-op,
	// not a panic.
	m.ChunksIngested.Add(context.Background(), 1, WithSource("decoder"))
}
