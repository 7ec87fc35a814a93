// Package observe provides OpenTelemetry metrics for the audio pipeline,
// bridged to Prometheus so they can be scraped from the /metrics endpoint.
//
// A package-level default [Metrics] instance ([Default]) is provided for
// convenience; it binds lazily to the global meter provider, so it is a
// cheap no-op recorder until [InitProvider] has run. Tests that need
// isolation should construct their own instance with [NewMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope for all pipeline metrics.
const meterName = "github.com/user/stream-transcriber"

// Metrics holds the metric instruments for the pipeline. The underlying
// OTel types are safe for concurrent use.
type Metrics struct {
	meter metric.Meter

	// ChunksIngested counts sample chunks entering the transport. Use with
	// WithSource("decoder") or WithSource("http").
	ChunksIngested metric.Int64Counter

	// SegmentsEmitted counts completed speech segments flushed to the sink.
	SegmentsEmitted metric.Int64Counter

	// DecoderRestarts counts live-source decoder restarts after failure.
	DecoderRestarts metric.Int64Counter

	// TranscribeDuration tracks per-segment transcription latency.
	TranscribeDuration metric.Float64Histogram

	// TranscribeErrors counts failed transcription attempts.
	TranscribeErrors metric.Int64Counter
}

// latencyBuckets covers transcription latencies from near-realtime local
// models to slow remote batch calls (seconds).
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// WithSource returns the option recording which producer ingested a chunk.
func WithSource(source string) metric.AddOption {
	return metric.WithAttributes(attribute.String("source", source))
}

// NewMetrics creates a fully initialised Metrics using the given meter
// provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{meter: m}
	var err error

	if met.ChunksIngested, err = m.Int64Counter("transcriber.chunks.ingested",
		metric.WithDescription("Sample chunks pushed into the transport."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsEmitted, err = m.Int64Counter("transcriber.segments.emitted",
		metric.WithDescription("Completed speech segments flushed to the sink."),
	); err != nil {
		return nil, err
	}
	if met.DecoderRestarts, err = m.Int64Counter("transcriber.decoder.restarts",
		metric.WithDescription("Decoder restarts on a live source."),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("transcriber.stt.duration",
		metric.WithDescription("Latency of per-segment transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeErrors, err = m.Int64Counter("transcriber.stt.errors",
		metric.WithDescription("Failed transcription attempts."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ObserveQueueDepth registers an observable gauge reporting the transport's
// current depth via lenFn. Unregister through the returned Registration when
// the transport is done.
func (m *Metrics) ObserveQueueDepth(lenFn func() int) (metric.Registration, error) {
	gauge, err := m.meter.Int64ObservableGauge("transcriber.transport.depth",
		metric.WithDescription("Segments currently queued in the transport."),
	)
	if err != nil {
		return nil, err
	}
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(lenFn()))
		return nil
	}, gauge)
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the shared Metrics bound to the global meter provider.
// Instrument creation against the global provider cannot fail.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// The global provider delegates lazily and never errors on
			// instrument creation; fall back to a no-op recorder regardless.
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
