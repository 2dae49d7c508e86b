// Package observe provides the observability primitives for the voice
// pipeline: OpenTelemetry metric instruments and the SDK provider setup with
// a Prometheus exporter bridge.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all pipeline metrics.
const meterName = "github.com/pedrosoares/godot-whisper"

// Metrics holds all metric instruments for the pipeline. All fields are safe
// for concurrent use — the underlying OTel types handle their own
// synchronisation.
type Metrics struct {
	// InferenceDuration tracks per-window speech inference latency.
	InferenceDuration metric.Float64Histogram

	// TriggerLatency tracks time from a final segment arriving to its
	// trigger event being queued.
	TriggerLatency metric.Float64Histogram

	// CapturedFrames counts frames delivered by the audio source.
	CapturedFrames metric.Int64Counter

	// DroppedSamples counts samples lost to ring-buffer overwrite. Overflow
	// is expected steady-state behaviour; the counter sizes it.
	DroppedSamples metric.Int64Counter

	// Windows counts scheduler ticks. Use with
	// attribute.String("outcome", "inferred"|"skipped"|"silent").
	Windows metric.Int64Counter

	// InferenceFailures counts windows whose inference call failed.
	InferenceFailures metric.Int64Counter

	// KeywordMatches counts emitted trigger events. Use with
	// attribute.String("alias", ...).
	KeywordMatches metric.Int64Counter

	// CodecFrames counts codec session calls. Use with
	// attribute.String("dir", "encode"|"decode"), attribute.String("status", "ok"|"error").
	CodecFrames metric.Int64Counter

	// PipelinesRunning tracks the number of live capture pipelines.
	PipelinesRunning metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// streaming-inference latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.InferenceDuration, err = m.Float64Histogram("speech.inference.duration",
		metric.WithDescription("Latency of one speech-inference window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TriggerLatency, err = m.Float64Histogram("speech.trigger.latency",
		metric.WithDescription("Delay between a segment arriving and its trigger event being queued."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CapturedFrames, err = m.Int64Counter("speech.capture.frames",
		metric.WithDescription("Audio frames delivered by the input source."),
	); err != nil {
		return nil, err
	}
	if met.DroppedSamples, err = m.Int64Counter("speech.ring.dropped_samples",
		metric.WithDescription("Samples overwritten by ring-buffer overflow."),
	); err != nil {
		return nil, err
	}
	if met.Windows, err = m.Int64Counter("speech.scheduler.windows",
		metric.WithDescription("Window scheduler ticks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.InferenceFailures, err = m.Int64Counter("speech.inference.failures",
		metric.WithDescription("Windows whose inference call failed and was skipped."),
	); err != nil {
		return nil, err
	}
	if met.KeywordMatches, err = m.Int64Counter("speech.keyword.matches",
		metric.WithDescription("Emitted keyword trigger events."),
	); err != nil {
		return nil, err
	}
	if met.CodecFrames, err = m.Int64Counter("codec.frames",
		metric.WithDescription("Codec session calls by direction and status."),
	); err != nil {
		return nil, err
	}
	if met.PipelinesRunning, err = m.Int64UpDownCounter("speech.pipelines.running",
		metric.WithDescription("Live capture pipelines."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide Metrics built from the global
// meter provider. Instruments against the global provider are no-ops until
// [InitProvider] registers a real one.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// Instrument creation only fails on malformed names, which is a
			// programming error.
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
