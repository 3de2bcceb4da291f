package transcriber_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcriber"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcript"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcript/phonetic"
	enginemock "github.com/sridhar-mani/whisper-web-transcriber/pkg/engine/mock"
)

func TestPoller_ForwardsRecognisedText(t *testing.T) {
	inst := &enginemock.Instance{TranscriptScript: []string{"hello"}}
	var rec atomic.Bool
	rec.Store(true)
	texts := &textLog{}

	p := transcriber.NewPoller(transcriber.PollerConfig{
		Instance:  inst,
		Interval:  5 * time.Millisecond,
		Recording: &rec,
		Observers: transcriber.Observers{OnTranscription: texts.add},
		Metrics:   testMetrics(t),
	})
	p.Start()

	waitFor(t, time.Second, func() bool { return texts.count() == 1 }, "transcript never forwarded")

	// Give the loop plenty more ticks; the script is exhausted and the empty
	// result must not be forwarded again.
	time.Sleep(50 * time.Millisecond)
	rec.Store(false)
	p.Stop()

	if got := texts.all(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("forwarded texts = %q, want exactly one %q", got, "hello")
	}
}

func TestPoller_SkipsShortOutput(t *testing.T) {
	inst := &enginemock.Instance{TranscriptScript: []string{"a", "ok"}}
	var rec atomic.Bool
	rec.Store(true)
	texts := &textLog{}

	p := transcriber.NewPoller(transcriber.PollerConfig{
		Instance:  inst,
		Interval:  5 * time.Millisecond,
		Recording: &rec,
		Observers: transcriber.Observers{OnTranscription: texts.add},
		Metrics:   testMetrics(t),
	})
	p.Start()

	waitFor(t, time.Second, func() bool { return texts.count() == 1 }, "transcript never forwarded")
	rec.Store(false)
	p.Stop()

	if got := texts.all(); got[0] != "ok" {
		t.Fatalf("forwarded text = %q, want %q (single-character output skipped)", got[0], "ok")
	}
	if inst.CallCountTranscript < 2 {
		t.Fatalf("Transcript called %d times, want at least 2", inst.CallCountTranscript)
	}
}

func TestPoller_ExitsWhenRecordingEnds(t *testing.T) {
	inst := &enginemock.Instance{TranscriptResult: "should never surface"}
	var rec atomic.Bool // stays false
	texts := &textLog{}

	p := transcriber.NewPoller(transcriber.PollerConfig{
		Instance:  inst,
		Interval:  5 * time.Millisecond,
		Recording: &rec,
		Observers: transcriber.Observers{OnTranscription: texts.add},
		Metrics:   testMetrics(t),
	})
	p.Start()

	// Ten ticks of opportunity; the loop must bail on the first one.
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	if inst.CallCountTranscript != 0 {
		t.Fatalf("Transcript called %d times after recording ended, want 0", inst.CallCountTranscript)
	}
	if texts.count() != 0 {
		t.Fatalf("texts forwarded after recording ended: %q", texts.all())
	}
}

func TestPoller_AppliesVocabularyCorrections(t *testing.T) {
	refinery := transcript.NewRefinery(
		transcript.WithMatcher(phonetic.New()),
		transcript.WithTerms([]string{"Grafana"}),
	)
	inst := &enginemock.Instance{TranscriptScript: []string{"the gravanna dashboard"}}
	var rec atomic.Bool
	rec.Store(true)
	texts := &textLog{}

	p := transcriber.NewPoller(transcriber.PollerConfig{
		Instance:  inst,
		Interval:  5 * time.Millisecond,
		Recording: &rec,
		Refinery:  refinery,
		Observers: transcriber.Observers{OnTranscription: texts.add},
		Metrics:   testMetrics(t),
	})
	p.Start()

	waitFor(t, time.Second, func() bool { return texts.count() == 1 }, "transcript never forwarded")
	rec.Store(false)
	p.Stop()

	want := "the Grafana dashboard"
	if got := texts.all()[0]; got != want {
		t.Fatalf("forwarded text = %q, want %q", got, want)
	}
	if got := p.LastText(); got != want {
		t.Fatalf("LastText() = %q, want %q", got, want)
	}
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	inst := &enginemock.Instance{}
	var rec atomic.Bool
	rec.Store(true)

	p := transcriber.NewPoller(transcriber.PollerConfig{
		Instance:  inst,
		Interval:  5 * time.Millisecond,
		Recording: &rec,
		Metrics:   testMetrics(t),
	})
	p.Start()
	p.Stop()
	p.Stop()
}
