// Package observe provides application-wide observability primitives for the
// transcriber: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// All instruments go through the OpenTelemetry Metrics API; [InitProvider]
// installs a Prometheus reader so the usual /metrics endpoint keeps working.
// Production code records against the process-wide [DefaultMetrics]. Tests
// build their own [Metrics] from a private [metric.MeterProvider] so nothing
// leaks between them.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all transcriber metrics.
const meterName = "github.com/sridhar-mani/whisper-web-transcriber"

// Metrics bundles every instrument the pipeline records. The OTel instrument
// types synchronise internally, so the struct needs no locking of its own.
type Metrics struct {
	// --- Stage latency histograms ---

	// DecodeDuration tracks how long one cumulative-buffer decode and render
	// pass takes before its samples are fed to the engine.
	DecodeDuration metric.Float64Histogram

	// ModelLoadDuration tracks model download and install time.
	ModelLoadDuration metric.Float64Histogram

	// --- Volume counters ---

	// SegmentsCaptured counts raw audio chunks delivered by the capture
	// platform. Use with attribute:
	//   attribute.String("platform", ...)
	SegmentsCaptured metric.Int64Counter

	// SamplesFed counts PCM samples handed to the inference engine across all
	// feeds.
	SamplesFed metric.Int64Counter

	// TranscriptsEmitted counts transcripts delivered to observers. Use with
	// attribute:
	//   attribute.Bool("polished", ...)
	TranscriptsEmitted metric.Int64Counter

	// CaptureRestarts counts capture device reacquisitions after the device
	// chunk stream ended mid-recording. Use with attribute:
	//   attribute.String("platform", ...)
	CaptureRestarts metric.Int64Counter

	// --- Failure counters ---

	// DecodeFailures counts chunks skipped because decoding or rendering the
	// cumulative buffer failed. Use with attribute:
	//   attribute.String("stage", ...)
	DecodeFailures metric.Int64Counter

	// --- Live gauges ---

	// ActiveRecordings tracks the number of live capture sessions.
	ActiveRecordings metric.Int64UpDownCounter

	// --- Diagnostic HTTP server ---

	// HTTPRequestDuration tracks request handling time on the diagnostic
	// endpoints. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets covers the decode path, which should complete well inside a
// capture interval. Seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// loadBuckets covers model download and install, which runs far longer than
// the decode path. Seconds.
var loadBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics registers every instrument on a meter from mp and returns the
// populated struct. The first instrument that fails to register aborts the
// whole construction.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DecodeDuration, err = m.Float64Histogram("transcriber.decode.duration",
		metric.WithDescription("Latency of one cumulative-buffer decode and render pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelLoadDuration, err = m.Float64Histogram("transcriber.model.load.duration",
		metric.WithDescription("Time to download and install the model."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(loadBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsCaptured, err = m.Int64Counter("transcriber.capture.segments",
		metric.WithDescription("Total audio chunks delivered by the capture platform."),
	); err != nil {
		return nil, err
	}
	if met.SamplesFed, err = m.Int64Counter("transcriber.feed.samples",
		metric.WithDescription("Total PCM samples handed to the inference engine."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptsEmitted, err = m.Int64Counter("transcriber.transcripts",
		metric.WithDescription("Total transcripts delivered to observers."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRestarts, err = m.Int64Counter("transcriber.capture.restarts",
		metric.WithDescription("Total capture device reacquisitions by platform."),
	); err != nil {
		return nil, err
	}

	// Failure counters.
	if met.DecodeFailures, err = m.Int64Counter("transcriber.decode.failures",
		metric.WithDescription("Total chunks skipped due to decode or render errors."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveRecordings, err = m.Int64UpDownCounter("transcriber.active_recordings",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}

	// Diagnostic HTTP server.
	if met.HTTPRequestDuration, err = m.Float64Histogram("transcriber.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics lazily builds one process-wide [Metrics] on the global
// meter provider and hands back the same pointer ever after. Instrument
// registration cannot fail on the global provider, so a failure here panics.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr shortens [attribute.String] at recording call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegment is a convenience method that records one captured audio chunk
// for the given platform.
func (m *Metrics) RecordSegment(ctx context.Context, platform string) {
	m.SegmentsCaptured.Add(ctx, 1,
		metric.WithAttributes(attribute.String("platform", platform)),
	)
}

// RecordFeed is a convenience method that records the number of PCM samples
// handed to the engine in one feed.
func (m *Metrics) RecordFeed(ctx context.Context, samples int) {
	m.SamplesFed.Add(ctx, int64(samples))
}

// RecordDecodeFailure is a convenience method that records a skipped chunk by
// failing stage ("decode" or "render").
func (m *Metrics) RecordDecodeFailure(ctx context.Context, stage string) {
	m.DecodeFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordCaptureRestart is a convenience method that records a capture device
// reacquisition for the given platform.
func (m *Metrics) RecordCaptureRestart(ctx context.Context, platform string) {
	m.CaptureRestarts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("platform", platform)),
	)
}

// RecordTranscript is a convenience method that records a transcript delivered
// to observers.
func (m *Metrics) RecordTranscript(ctx context.Context, polished bool) {
	m.TranscriptsEmitted.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("polished", polished)),
	)
}
