package transcriber

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/observe"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/audio"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/capture"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/engine"
)

// DefaultSampleRate is the PCM rate fed to the inference engine.
const DefaultSampleRate = 16000

const (
	defaultRestartAttempts = 3
	defaultRestartBackoff  = 250 * time.Millisecond
)

// RestartPolicy bounds device reacquisition after the active device's chunk
// stream ends while the recording flag is still on.
type RestartPolicy struct {
	// Attempts is the number of open attempts per restart. Zero means 3.
	Attempts int

	// BackoffStep scales the linear backoff; the session sleeps
	// BackoffStep*attempt between failed attempts. Zero means 250ms.
	BackoffStep time.Duration
}

func (p RestartPolicy) attempts() int {
	if p.Attempts <= 0 {
		return defaultRestartAttempts
	}
	return p.Attempts
}

func (p RestartPolicy) backoff(attempt int) time.Duration {
	step := p.BackoffStep
	if step <= 0 {
		step = defaultRestartBackoff
	}
	return step * time.Duration(attempt)
}

// SessionConfig configures a [CaptureSession].
type SessionConfig struct {
	// Platform reopens capture devices when the active one ends mid-span.
	Platform capture.Platform

	// PlatformName labels capture metrics ("mic", "wav").
	PlatformName string

	// Capture is the device configuration used for reacquisition.
	Capture capture.Config

	// Instance receives the rendered cumulative sample buffers.
	Instance engine.Instance

	// TargetRate is the PCM rate rendered for the engine. Zero means
	// [DefaultSampleRate].
	TargetRate int

	// Recording is the shared span flag. The session winds down once it goes
	// false and a device stream ends.
	Recording *atomic.Bool

	// Restart bounds device reacquisitions. Zero fields take the defaults.
	Restart RestartPolicy

	// Observers receives the error status when reacquisition is exhausted.
	Observers Observers

	// Metrics records pipeline instruments. Nil means [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// CaptureSession pumps one recording span. It owns the span accumulator,
// decodes each device generation's cumulative chunk buffer off the capture
// goroutine, and feeds the engine ever-growing sample windows so recognition
// refines earlier audio as more context arrives.
//
// A generation is one device's lifetime within the span. When a device ends
// early the session reacquires and the new generation decodes fresh chunks on
// top of the samples accumulated so far, so the transcript survives device
// churn.
type CaptureSession struct {
	platform     capture.Platform
	platformName string
	captureCfg   capture.Config
	instance     engine.Instance
	targetRate   int
	recording    *atomic.Bool
	restart      RestartPolicy
	obs          Observers
	met          *observe.Metrics

	seq atomic.Uint64

	mu          sync.Mutex
	dev         capture.Device
	accumulated []float32
	lastFedSeq  uint64

	done chan struct{}
}

// NewCaptureSession builds a session. Start must be called to begin pumping.
func NewCaptureSession(cfg SessionConfig) *CaptureSession {
	target := cfg.TargetRate
	if target <= 0 {
		target = DefaultSampleRate
	}
	met := cfg.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}
	return &CaptureSession{
		platform:     cfg.Platform,
		platformName: cfg.PlatformName,
		captureCfg:   cfg.Capture,
		instance:     cfg.Instance,
		targetRate:   target,
		recording:    cfg.Recording,
		restart:      cfg.Restart,
		obs:          cfg.Observers,
		met:          met,
		done:         make(chan struct{}),
	}
}

// Start begins pumping chunks from dev in a background goroutine. The device
// must already be open and the recording flag already true.
func (s *CaptureSession) Start(dev capture.Device) {
	go s.run(dev)
}

// Stop stops the active device and waits for the pump loop and all in-flight
// decodes to finish. The recording flag must already be false, otherwise the
// loop treats the stopped device as a failure and reacquires.
func (s *CaptureSession) Stop() {
	s.mu.Lock()
	dev := s.dev
	s.dev = nil
	s.mu.Unlock()

	if dev != nil {
		if err := dev.Stop(); err != nil {
			slog.Warn("capture device stop", "error", err)
		}
	}
	<-s.done
}

// Discard drops the span accumulator. Decodes still in flight rebuild from
// their own generation snapshot, but the span is over either way.
func (s *CaptureSession) Discard() {
	s.mu.Lock()
	s.accumulated = nil
	s.mu.Unlock()
}

func (s *CaptureSession) run(dev capture.Device) {
	defer close(s.done)

	for generation := 1; ; generation++ {
		if !s.trackDevice(dev) {
			// Stopped before this generation could begin.
			if err := dev.Stop(); err != nil {
				slog.Warn("capture device stop", "error", err)
			}
			return
		}
		s.pump(dev)
		if !s.recording.Load() {
			return
		}

		slog.Info("capture device ended mid-span, reacquiring", "generation", generation)
		next, err := s.reacquire()
		if err != nil {
			s.obs.status(statusError(err))
			slog.Error("capture reacquisition exhausted, ending session", "error", err)
			return
		}
		if next == nil {
			// Stopped during backoff.
			return
		}
		dev = next
	}
}

// trackDevice publishes dev as the session's active device so Stop can reach
// it. Returns false when the span already ended.
func (s *CaptureSession) trackDevice(dev capture.Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording.Load() {
		return false
	}
	s.dev = dev
	return true
}

// pump consumes one device generation: it appends each chunk to the
// generation's cumulative raw buffer and hands a snapshot of the whole buffer
// to an async decode. It returns after the chunk stream closes and every
// decode spawned for this generation has finished, so the next generation's
// base snapshot sees all feeds applied.
func (s *CaptureSession) pump(dev capture.Device) {
	decoder := dev.Decoder()
	renderer := &audio.Renderer{TargetRate: s.targetRate}
	ctx := context.Background()

	s.mu.Lock()
	base := s.accumulated
	s.mu.Unlock()

	var raw []byte
	var decodes sync.WaitGroup
	defer decodes.Wait()

	for chunk := range dev.Chunks() {
		s.met.RecordSegment(ctx, s.platformName)
		if !s.recording.Load() {
			continue
		}

		raw = append(raw, chunk.Data...)
		seq := s.seq.Add(1)
		buf := make([]byte, len(raw))
		copy(buf, raw)

		decodes.Add(1)
		go func() {
			defer decodes.Done()
			s.decodeAndFeed(ctx, decoder, renderer, base, buf, seq)
		}()
	}
}

// decodeAndFeed decodes one cumulative buffer snapshot, renders it to the
// engine rate, and feeds base+rendered if no longer snapshot got there first.
func (s *CaptureSession) decodeAndFeed(ctx context.Context, decoder audio.Decoder, renderer *audio.Renderer, base []float32, raw []byte, seq uint64) {
	start := time.Now()
	samples, format, err := decoder.Decode(raw)
	if err != nil {
		slog.Warn("segment decode failed, skipping", "seq", seq, "bytes", len(raw), "error", err)
		s.met.RecordDecodeFailure(ctx, "decode")
		return
	}
	rendered := renderer.Render(samples, format)
	s.met.DecodeDuration.Record(ctx, time.Since(start).Seconds())

	full := make([]float32, 0, len(base)+len(rendered))
	full = append(full, base...)
	full = append(full, rendered...)

	s.mu.Lock()
	if seq <= s.lastFedSeq {
		// A longer snapshot already fed; this one is stale.
		s.mu.Unlock()
		return
	}
	s.lastFedSeq = seq
	s.accumulated = full
	s.instance.Feed(full)
	s.mu.Unlock()

	s.met.RecordFeed(ctx, len(full))
}

// reacquire opens a replacement device with bounded linear backoff. Returns
// (nil, nil) when recording stopped mid-restart, and an error once every
// attempt is spent.
func (s *CaptureSession) reacquire() (capture.Device, error) {
	attempts := s.restart.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !s.recording.Load() {
			return nil, nil
		}
		dev, err := s.platform.Open(context.Background(), s.captureCfg)
		if err == nil {
			s.met.RecordCaptureRestart(context.Background(), s.platformName)
			slog.Info("capture device reacquired", "attempt", attempt)
			return dev, nil
		}
		lastErr = err
		slog.Warn("capture reacquisition failed", "attempt", attempt, "error", err)
		if attempt < attempts {
			time.Sleep(s.restart.backoff(attempt))
		}
	}
	return nil, fmt.Errorf("transcriber: reacquire capture device after %d attempts: %w", attempts, lastErr)
}
