package voicecore

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voicecore metrics.
const meterName = "github.com/opd-ai/voicecore"

// Metrics holds the OpenTelemetry metric instruments for the media core.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation. Real-time code records only counter increments,
// which are non-blocking.
type Metrics struct {
	// InferenceDuration tracks per-hop/per-frame model inference latency.
	InferenceDuration metric.Float64Histogram

	// DroppedUnits counts hops or frames dropped by backpressure before
	// reaching the inference worker. Attribute: unit ("hop"|"frame").
	DroppedUnits metric.Int64Counter

	// Underruns counts real-time callbacks that emitted silence because the
	// output queue held fewer samples than one block.
	Underruns metric.Int64Counter

	// OverflowSamples counts samples discarded by the ring queue's
	// oldest-data-dropped overflow policy.
	OverflowSamples metric.Int64Counter

	// BitrateAdaptations counts effective bitrate changes applied to the
	// transport. Attribute: direction ("up"|"down").
	BitrateAdaptations metric.Int64Counter
}

// inferenceLatencyBuckets defines histogram boundaries (in seconds) sized
// for per-hop inference at a 10 ms cadence.
var inferenceLatencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
}

// NewMetrics creates a fully initialised Metrics struct using the given
// MeterProvider. Returns an error if any instrument creation fails. Tests
// should pass a dedicated sdk/metric provider to avoid cross-test pollution.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.InferenceDuration, err = m.Float64Histogram("voicecore.inference.duration",
		metric.WithDescription("Latency of one noise-suppression inference call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceLatencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DroppedUnits, err = m.Int64Counter("voicecore.pipeline.dropped_units",
		metric.WithDescription("Hops or frames dropped by inference backpressure."),
	); err != nil {
		return nil, err
	}
	if met.Underruns, err = m.Int64Counter("voicecore.pipeline.underruns",
		metric.WithDescription("Render callbacks that emitted silence on an empty output queue."),
	); err != nil {
		return nil, err
	}
	if met.OverflowSamples, err = m.Int64Counter("voicecore.pipeline.overflow_samples",
		metric.WithDescription("Samples discarded by ring-queue overflow."),
	); err != nil {
		return nil, err
	}
	if met.BitrateAdaptations, err = m.Int64Counter("voicecore.bitrate.adaptations",
		metric.WithDescription("Effective outbound bitrate changes."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics instance built from the
// global OTel meter provider. Sessions use it when no provider is injected.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// The no-op provider never fails instrument creation; a real
			// provider failing here leaves metrics disabled.
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// add is a nil-tolerant counter increment helper so uninstrumented
// components can share code paths with instrumented ones.
func add(c metric.Int64Counter, n int64, opts ...metric.AddOption) {
	if c != nil {
		c.Add(context.Background(), n, opts...)
	}
}

// The methods below tolerate a nil *Metrics so the pipeline can run
// uninstrumented in tests without guarding every call site.

func (m *Metrics) addDropped() {
	if m == nil {
		return
	}
	add(m.DroppedUnits, 1)
}

func (m *Metrics) addUnderrun() {
	if m == nil {
		return
	}
	add(m.Underruns, 1)
}

func (m *Metrics) addOverflow(samples int64) {
	if m == nil {
		return
	}
	add(m.OverflowSamples, samples)
}

func (m *Metrics) addAdaptation(up bool) {
	if m == nil {
		return
	}
	direction := "down"
	if up {
		direction = "up"
	}
	add(m.BitrateAdaptations, 1,
		metric.WithAttributes(attribute.String("direction", direction)))
}

func (m *Metrics) recordInference(d time.Duration) {
	if m == nil || m.InferenceDuration == nil {
		return
	}
	m.InferenceDuration.Record(context.Background(), d.Seconds())
}
