// Package transcriber drives live audio through a speech-to-text engine. The
// Controller owns the bring-up sequence (runtime activation, model install)
// and the recording loop (capture session, transcript poller), reporting
// everything user-visible through observer callbacks.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/isolation"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/observe"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcript"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/capture"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/engine"
)

// State identifies where the controller is in its bring-up sequence.
type State int

const (
	// StateUninitialized is the zero state: no runtime, no model.
	StateUninitialized State = iota
	// StateInitializing means runtime activation is in flight.
	StateInitializing
	// StateRuntimeReady means the engine runtime is activated.
	StateRuntimeReady
	// StateModelLoading means the model transfer is in flight.
	StateModelLoading
	// StateModelReady means the model is installed and recording may start.
	StateModelReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRuntimeReady:
		return "runtime-ready"
	case StateModelLoading:
		return "model-loading"
	case StateModelReady:
		return "model-ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// User-visible status lines, delivered through Observers.OnStatus.
const (
	statusReadyToLoad   = "Ready to load model"
	statusLoadingModel  = "Loading model..."
	statusModelLoaded   = "Model loaded successfully"
	statusLoadCancelled = "Model load cancelled"
	statusRecording     = "Recording..."
	statusStopped       = "Stopped"

	// enginePausedStatus is written into the engine handle on stop so late
	// readers of the engine surface see the span ended.
	enginePausedStatus = "paused"
)

// statusError renders an operation failure as a user-visible status line.
func statusError(err error) string {
	return "Error: " + err.Error()
}

// polishTimeout bounds the post-span LLM pass over the final transcript.
const polishTimeout = 30 * time.Second

// Singleflight keys for the two memoized bring-up steps.
const (
	initializeKey = "initialize"
	loadModelKey  = "load-model"
)

// ControllerConfig configures a [Controller].
type ControllerConfig struct {
	// Loader resolves and activates the inference runtime.
	Loader *RuntimeLoader

	// Provisioner downloads and installs the model.
	Provisioner *ModelProvisioner

	// Isolation probes the shared-memory mount during Initialize. Optional.
	Isolation *isolation.Bootstrapper

	// Platform opens capture devices.
	Platform capture.Platform

	// PlatformName labels capture metrics ("mic", "wav").
	PlatformName string

	// Observers receives user-visible events.
	Observers Observers

	// Refinery corrects transcripts between the engine and the observer.
	// Optional.
	Refinery *transcript.Refinery

	// Metrics records pipeline instruments. Nil means
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// SampleRate is the capture and engine PCM rate. Zero means
	// [DefaultSampleRate].
	SampleRate int

	// SegmentInterval is the capture chunk cadence. Zero means
	// [capture.DefaultSegmentInterval].
	SegmentInterval time.Duration

	// PollInterval is the transcript polling cadence. Zero means
	// [DefaultPollInterval].
	PollInterval time.Duration

	// AutoGain, NoiseSuppression, and EchoCancellation are handed to the
	// capture platform as given; config-level defaulting happens upstream.
	AutoGain         bool
	NoiseSuppression bool
	EchoCancellation bool

	// Restart bounds capture device reacquisition. Zero fields take the
	// defaults.
	Restart RestartPolicy
}

// Controller drives the transcription pipeline through bring-up and recording
// spans. The sequence is strict: Initialize activates the inference runtime,
// LoadModel installs the model, and only then can StartRecording open a
// capture device. Both bring-up steps are memoized and share work between
// concurrent callers; a failed step can simply be retried.
//
// All methods are safe for concurrent use.
type Controller struct {
	loader       *RuntimeLoader
	provisioner  *ModelProvisioner
	isolation    *isolation.Bootstrapper
	platform     capture.Platform
	platformName string
	obs          Observers
	refinery     *transcript.Refinery
	met          *observe.Metrics

	sampleRate       int
	segmentInterval  time.Duration
	pollInterval     time.Duration
	autoGain         bool
	noiseSuppression bool
	echoCancellation bool
	restartPolicy    RestartPolicy

	group singleflight.Group

	recording atomic.Bool

	mu        sync.Mutex
	state     State
	gen       int
	handle    engine.Handle
	instance  engine.Instance
	modelPath string
	session   *CaptureSession
	poller    *Poller
}

// NewController builds a controller in the uninitialized state.
func NewController(cfg ControllerConfig) *Controller {
	met := cfg.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	segment := cfg.SegmentInterval
	if segment <= 0 {
		segment = capture.DefaultSegmentInterval
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Controller{
		loader:           cfg.Loader,
		provisioner:      cfg.Provisioner,
		isolation:        cfg.Isolation,
		platform:         cfg.Platform,
		platformName:     cfg.PlatformName,
		obs:              cfg.Observers,
		refinery:         cfg.Refinery,
		met:              met,
		sampleRate:       sampleRate,
		segmentInterval:  segment,
		pollInterval:     poll,
		autoGain:         cfg.AutoGain,
		noiseSuppression: cfg.NoiseSuppression,
		echoCancellation: cfg.EchoCancellation,
		restartPolicy:    cfg.Restart,
	}
}

// Initialize activates the inference runtime and probes process isolation.
// Concurrent callers share one activation; once the runtime is up, later
// calls return nil without side effects. A failed attempt leaves the
// controller uninitialized so the caller can retry.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.state >= StateRuntimeReady {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	_, err, _ := c.group.Do(initializeKey, func() (any, error) {
		return nil, c.initialize(ctx, gen)
	})
	return err
}

func (c *Controller) initialize(ctx context.Context, gen int) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.state >= StateRuntimeReady {
		c.mu.Unlock()
		return nil
	}
	c.state = StateInitializing
	c.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "transcriber.initialize")
	defer span.End()

	// The probe never fails bring-up; an unusable mount is logged and kept
	// for IsolationDiagnostics.
	if c.isolation != nil {
		c.isolation.Ensure(ctx)
	}

	handle, err := c.activateRuntime(ctx)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen && c.state == StateInitializing {
			c.state = StateUninitialized
		}
		c.mu.Unlock()
		err = fmt.Errorf("%w: %w", ErrInit, err)
		c.obs.status(statusError(err))
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		// Destroy won the race; the fresh handle has no owner.
		if cerr := handle.Close(); cerr != nil {
			slog.Warn("engine runtime close", "error", cerr)
		}
		return ErrDestroyed
	}
	c.handle = handle
	c.state = StateRuntimeReady
	c.mu.Unlock()

	c.obs.status(statusReadyToLoad)
	slog.Info("inference runtime ready")
	return nil
}

func (c *Controller) activateRuntime(ctx context.Context) (engine.Handle, error) {
	runtime, err := c.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return runtime.Activate(ctx)
}

// LoadModel downloads and installs the model, running Initialize first when
// that has not happened yet. Concurrent callers share one transfer; once the
// model is ready, later calls return nil with no transfer at all. Progress is
// reported through OnProgress as integer percentages. Cancelling ctx aborts
// the transfer with [ErrModelLoadCancelled] and leaves the runtime ready for
// a retry.
func (c *Controller) LoadModel(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateModelReady {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	if err := c.Initialize(ctx); err != nil {
		return err
	}

	_, err, _ := c.group.Do(loadModelKey, func() (any, error) {
		return nil, c.loadModel(ctx, gen)
	})
	return err
}

func (c *Controller) loadModel(ctx context.Context, gen int) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.state == StateModelReady {
		c.mu.Unlock()
		return nil
	}
	c.state = StateModelLoading
	c.mu.Unlock()

	c.obs.status(statusLoadingModel)

	ctx, span := observe.StartSpan(ctx, "transcriber.load_model")
	defer span.End()
	start := time.Now()

	path, err := c.provisioner.Provision(ctx, c.obs.progress)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen && c.state == StateModelLoading {
			c.state = StateRuntimeReady
		}
		c.mu.Unlock()

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.obs.status(statusLoadCancelled)
			return fmt.Errorf("%w: %w", ErrModelLoadCancelled, err)
		}
		err = fmt.Errorf("%w: %w", ErrModelLoad, err)
		c.obs.status(statusError(err))
		return err
	}

	c.met.ModelLoadDuration.Record(ctx, time.Since(start).Seconds())

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrDestroyed
	}
	c.modelPath = path
	c.state = StateModelReady
	c.mu.Unlock()

	c.obs.status(statusModelLoaded)
	return nil
}

// StartRecording opens a capture device and begins a recording span. The
// model must be loaded first, or [ErrModelNotLoaded] returns without touching
// any device. Calling it during an active span is a no-op. The engine
// instance is created lazily on the first span and reused for every span
// after it.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateModelReady {
		return fmt.Errorf("%w: state is %s", ErrModelNotLoaded, c.state)
	}
	if c.recording.Load() {
		return nil
	}

	if c.instance == nil {
		inst, err := c.handle.NewInstance(c.modelPath)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrEngineInit, err)
			c.obs.status(statusError(err))
			return err
		}
		c.instance = inst
	}

	dev, err := c.platform.Open(ctx, c.captureConfig())
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrDeviceAcquisition, err)
		c.obs.status(statusError(err))
		return err
	}

	c.recording.Store(true)
	c.obs.status(statusRecording)
	c.handle.SetStatus("")
	c.met.ActiveRecordings.Add(ctx, 1)

	c.session = NewCaptureSession(SessionConfig{
		Platform:     c.platform,
		PlatformName: c.platformName,
		Capture:      c.captureConfig(),
		Instance:     c.instance,
		TargetRate:   c.sampleRate,
		Recording:    &c.recording,
		Restart:      c.restartPolicy,
		Observers:    c.obs,
		Metrics:      c.met,
	})
	c.poller = NewPoller(PollerConfig{
		Instance:  c.instance,
		Interval:  c.pollInterval,
		Recording: &c.recording,
		Refinery:  c.refinery,
		Observers: c.obs,
		Metrics:   c.met,
	})
	c.session.Start(dev)
	c.poller.Start()

	slog.Info("recording started", "platform", c.platformName, "sample_rate", c.sampleRate)
	return nil
}

// StopRecording ends the active span: the engine is marked paused, the
// session drains its in-flight decodes, the poller halts, and the span
// accumulator is released. A no-op when nothing is recording. When a refinery
// with an LLM stage is configured, the span's final transcript is polished in
// the background and re-emitted through OnTranscription if it changed.
func (c *Controller) StopRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRecordingLocked()
}

func (c *Controller) stopRecordingLocked() {
	if !c.recording.Load() {
		return
	}

	// Teardown order matters: the engine is marked paused before the flag
	// flips, the accumulator is released before the device stops, and the
	// session drains before the poller halts.
	c.handle.SetStatus(enginePausedStatus)
	c.recording.Store(false)

	var lastText string
	if c.session != nil {
		c.session.Discard()
		c.session.Stop()
		c.session = nil
	}
	if c.poller != nil {
		c.poller.Stop()
		lastText = c.poller.LastText()
		c.poller = nil
	}

	c.met.ActiveRecordings.Add(context.Background(), -1)
	c.obs.status(statusStopped)
	slog.Info("recording stopped")

	if c.refinery != nil && lastText != "" {
		go c.polish(lastText)
	}
}

// polish runs the slow LLM stage over the span's final transcript and
// forwards the result when it changed the text.
func (c *Controller) polish(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), polishTimeout)
	defer cancel()

	polished, corrections, err := c.refinery.Polish(ctx, text)
	if err != nil {
		slog.Warn("transcript polish failed", "error", err)
		return
	}
	if polished == text {
		return
	}
	slog.Info("transcript polished", "corrections", len(corrections))
	c.obs.transcription(polished)
	c.met.RecordTranscript(ctx, true)
}

// Destroy stops any active recording and tears the pipeline down: the engine
// instance and runtime handle are closed and the state returns to
// uninitialized. Bring-up operations still in flight have their results
// discarded with [ErrDestroyed]. Safe to call repeatedly. The controller can
// be brought up again afterwards with a fresh Initialize and LoadModel.
func (c *Controller) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopRecordingLocked()

	c.gen++
	c.group.Forget(initializeKey)
	c.group.Forget(loadModelKey)

	if c.instance != nil {
		if err := c.instance.Close(); err != nil {
			slog.Warn("engine instance close", "error", err)
		}
		c.instance = nil
	}
	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			slog.Warn("engine runtime close", "error", err)
		}
		c.handle = nil
	}
	c.modelPath = ""
	c.state = StateUninitialized
	slog.Info("transcriber destroyed")
}

// IsolationDiagnostics reports the shared-memory probe's findings in
// operator-readable form. Never empty.
func (c *Controller) IsolationDiagnostics() string {
	if c.isolation == nil {
		return "Shared memory probing is not configured."
	}
	return c.isolation.Diagnostics()
}

// State returns the controller's position in the bring-up sequence.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Recording reports whether a capture span is active.
func (c *Controller) Recording() bool {
	return c.recording.Load()
}

func (c *Controller) captureConfig() capture.Config {
	return capture.Config{
		SampleRate:       c.sampleRate,
		Channels:         1,
		SegmentInterval:  c.segmentInterval,
		AutoGain:         c.autoGain,
		NoiseSuppression: c.noiseSuppression,
		EchoCancellation: c.echoCancellation,
	}
}
