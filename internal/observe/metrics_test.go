package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance whose recordings can be read
// back through the ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValue returns the value of the int64 sum data point whose attributes
// cover match. Fails the test when the metric or the point is absent.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string, match map[string]any) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		if attrsCover(dp.Attributes, match) {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point matching %v", name, match)
	return 0
}

func attrsCover(set attribute.Set, match map[string]any) bool {
	for k, want := range match {
		v, ok := set.Value(attribute.Key(k))
		if !ok {
			return false
		}
		switch w := want.(type) {
		case string:
			if v.AsString() != w {
				return false
			}
		case bool:
			if v.AsBool() != w {
				return false
			}
		}
	}
	return true
}

func TestCounters_RecordHelpers(t *testing.T) {
	cases := []struct {
		name   string
		record func(*Metrics, context.Context)
		metric string
		match  map[string]any
		want   int64
	}{
		{
			name: "segments keyed by platform",
			record: func(m *Metrics, ctx context.Context) {
				m.RecordSegment(ctx, "mic")
				m.RecordSegment(ctx, "mic")
				m.RecordSegment(ctx, "wav")
			},
			metric: "transcriber.capture.segments",
			match:  map[string]any{"platform": "mic"},
			want:   2,
		},
		{
			name: "fed samples accumulate",
			record: func(m *Metrics, ctx context.Context) {
				m.RecordFeed(ctx, 16000)
				m.RecordFeed(ctx, 8000)
			},
			metric: "transcriber.feed.samples",
			want:   24000,
		},
		{
			name: "transcripts keyed by polish",
			record: func(m *Metrics, ctx context.Context) {
				m.RecordTranscript(ctx, true)
				m.RecordTranscript(ctx, true)
				m.RecordTranscript(ctx, false)
			},
			metric: "transcriber.transcripts",
			match:  map[string]any{"polished": true},
			want:   2,
		},
		{
			name: "decode failures keyed by stage",
			record: func(m *Metrics, ctx context.Context) {
				m.RecordDecodeFailure(ctx, "decode")
				m.RecordDecodeFailure(ctx, "render")
			},
			metric: "transcriber.decode.failures",
			match:  map[string]any{"stage": "decode"},
			want:   1,
		},
		{
			name: "capture restarts keyed by platform",
			record: func(m *Metrics, ctx context.Context) {
				m.RecordCaptureRestart(ctx, "mic")
			},
			metric: "transcriber.capture.restarts",
			match:  map[string]any{"platform": "mic"},
			want:   1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, reader := newTestMetrics(t)
			tc.record(m, context.Background())

			rm := collect(t, reader)
			if got := sumValue(t, rm, tc.metric, tc.match); got != tc.want {
				t.Errorf("%s = %d, want %d", tc.metric, got, tc.want)
			}
		})
	}
}

func TestLatencyHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.DecodeDuration.Record(ctx, 0.12)
	m.DecodeDuration.Record(ctx, 0.31)
	m.ModelLoadDuration.Record(ctx, 42.5)

	rm := collect(t, reader)
	for name, wantCount := range map[string]uint64{
		"transcriber.decode.duration":     2,
		"transcriber.model.load.duration": 1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not recorded", name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok || len(hist.DataPoints) == 0 {
			t.Fatalf("metric %q is not a populated histogram", name)
		}
		if got := hist.DataPoints[0].Count; got != wantCount {
			t.Errorf("%s count = %d, want %d", name, got, wantCount)
		}
	}
}

func TestActiveRecordings_TracksUpAndDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRecordings.Add(ctx, 1)
	m.ActiveRecordings.Add(ctx, 1)
	m.ActiveRecordings.Add(ctx, -1)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "transcriber.active_recordings", nil); got != 1 {
		t.Errorf("active recordings = %d, want 1", got)
	}
}

func TestDefaultMetrics_Memoised(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers across calls")
	}
}
