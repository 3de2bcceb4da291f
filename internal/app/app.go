// Package app wires the transcriber subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run drives bring-up and the recording span, and Shutdown tears
// everything down in order.
//
// The concrete inference runtime and capture backend arrive pre-selected in
// [Providers]; main populates them from the config registry. For testing,
// inject alternatives via functional options (WithMetrics, WithIsolation).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/config"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/health"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/isolation"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/observe"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcriber"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcript"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcript/llmpolish"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcript/phonetic"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/capture"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/fetch"
	llm "github.com/sridhar-mani/whisper-web-transcriber/pkg/provider/llm"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/storage"
)

// serverReadHeaderTimeout bounds header reads on the diagnostics listener.
const serverReadHeaderTimeout = 5 * time.Second

// Providers holds the concrete backends selected by main via the config
// registry. Source and Platform are required; LLM is optional and enables the
// polish stage of the transcript refinery.
type Providers struct {
	// Source selects where the inference runtime comes from.
	Source transcriber.Source

	// Platform opens capture devices.
	Platform capture.Platform

	// PlatformName labels capture metrics ("mic", "wav").
	PlatformName string

	// LLM backs the transcript polish stage. Nil disables it.
	LLM llm.Provider
}

// App owns all subsystem lifetimes and drives the transcription pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	obs       transcriber.Observers

	// Subsystems, initialised in New, torn down in Shutdown.
	metrics    *observe.Metrics
	boot       *isolation.Bootstrapper
	refinery   *transcript.Refinery
	store      *storage.Store
	fetcher    *fetch.Client
	controller *transcriber.Controller
	handler    http.Handler
	server     *http.Server

	// closers run in reverse-append order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics bundle instead of initialising the telemetry
// SDK. Tests use this to stay off the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithIsolation injects a shared-memory bootstrapper instead of the default
// one probing the system mount.
func WithIsolation(b *isolation.Bootstrapper) Option {
	return func(a *App) { a.boot = b }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main (populated via the config registry); obs receives
// transcription, progress, and status events.
//
// New performs all wiring synchronously but starts nothing: the diagnostics
// listener and the pipeline come up in Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, obs transcriber.Observers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		obs:       obs,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Shared-memory probe ───────────────────────────────────────────
	if a.boot == nil {
		a.boot = isolation.New()
	}

	// ── 3. Transcript refinery ───────────────────────────────────────────
	if err := a.initRefinery(); err != nil {
		return nil, fmt.Errorf("app: init refinery: %w", err)
	}

	// ── 4. Pipeline controller ───────────────────────────────────────────
	if err := a.initController(); err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}

	// ── 5. Diagnostics server ────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTelemetry sets up the OTel SDK with the Prometheus bridge unless a
// metrics bundle was injected.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "transcriber"})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(sctx)
	})

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initRefinery builds the transcript refinery from the refine config. The
// refinery always exists, even with an empty vocabulary, so a config reload
// can introduce terms later.
func (a *App) initRefinery() error {
	terms, err := vocabularyTerms(a.cfg.Refine)
	if err != nil {
		return err
	}

	opts := []transcript.Option{
		transcript.WithMatcher(phonetic.New()),
		transcript.WithTerms(terms),
	}
	if a.providers.LLM != nil {
		opts = append(opts, transcript.WithPolisher(llmpolish.New(a.providers.LLM)))
		slog.Info("transcript polish enabled")
	}
	a.refinery = transcript.NewRefinery(opts...)

	if len(terms) > 0 {
		slog.Info("vocabulary loaded", "terms", len(terms))
	}
	return nil
}

// initController assembles the storage, transfer, and bring-up collaborators
// around the pipeline controller.
func (a *App) initController() error {
	if a.providers.Platform == nil {
		return errors.New("capture platform is required")
	}
	if a.providers.Source.Embedded == nil && a.providers.Source.Remote == nil {
		return errors.New("runtime source is required")
	}

	a.store = storage.New(a.cfg.Model.Dir)
	a.fetcher = fetch.New()

	locator, expectedSize := a.cfg.Model.Resolve()
	provisioner := transcriber.NewModelProvisioner(transcriber.ProvisionerConfig{
		Fetcher:      a.fetcher,
		Store:        a.store,
		Locator:      locator,
		ExpectedSize: expectedSize,
		Name:         a.cfg.Model.FileName,
	})
	loader := transcriber.NewRuntimeLoader(a.providers.Source, a.fetcher, a.store)

	a.controller = transcriber.NewController(transcriber.ControllerConfig{
		Loader:           loader,
		Provisioner:      provisioner,
		Isolation:        a.boot,
		Platform:         a.providers.Platform,
		PlatformName:     a.providers.PlatformName,
		Observers:        a.obs,
		Refinery:         a.refinery,
		Metrics:          a.metrics,
		SampleRate:       a.cfg.Capture.SampleRate,
		SegmentInterval:  a.cfg.Capture.SegmentInterval,
		PollInterval:     a.cfg.Engine.PollInterval,
		AutoGain:         a.cfg.Capture.AutoGainEnabled(),
		NoiseSuppression: a.cfg.Capture.NoiseSuppressionEnabled(),
		EchoCancellation: a.cfg.Capture.EchoCancellation,
	})

	slog.Debug("pipeline controller wired",
		"platform", a.providers.PlatformName,
		"model_locator", locator,
		"model_dir", a.cfg.Model.Dir,
	)
	return nil
}

// initServer builds the diagnostics handler and, when an address is
// configured, the listener serving it. The listener is started in Run.
func (a *App) initServer() {
	mux := http.NewServeMux()
	health.New(
		health.Checker{Name: "runtime", Check: a.runtimeReady},
		health.Checker{Name: "model", Check: a.modelReady},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.handler = observe.Middleware(a.metrics)(mux)

	if a.cfg.Server.ListenAddr == "" {
		return
	}
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: serverReadHeaderTimeout,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run brings the pipeline up and records until ctx is cancelled.
//
// Bring-up is sequential: Initialize activates the inference runtime,
// LoadModel downloads and installs the model, StartRecording opens the
// capture device. When ctx is done, the recording span is stopped and Run
// returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	a.startServer()

	if err := a.controller.Initialize(ctx); err != nil {
		return fmt.Errorf("app: initialize: %w", err)
	}
	slog.Debug("isolation probe", "diagnostics", a.controller.IsolationDiagnostics())

	if err := a.controller.LoadModel(ctx); err != nil {
		return fmt.Errorf("app: load model: %w", err)
	}

	if err := a.controller.StartRecording(ctx); err != nil {
		return fmt.Errorf("app: start recording: %w", err)
	}
	slog.Info("pipeline running", "platform", a.providers.PlatformName)

	<-ctx.Done()

	a.controller.StopRecording()
	return ctx.Err()
}

// startServer launches the diagnostics listener, if one was configured.
func (a *App) startServer() {
	if a.server == nil {
		return
	}
	go func() {
		slog.Info("diagnostics listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("diagnostics server failed", "err", err)
		}
	}()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// The diagnostics listener goes first so probes stop reporting ready.
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("diagnostics server shutdown error", "err", err)
			}
		}

		a.controller.Destroy()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyRefine swaps the refinery vocabulary for the one described by rc. The
// config watcher calls this when a reload changes the vocabulary or the vocab
// file path. In-flight corrections finish against the old vocabulary.
func (a *App) ApplyRefine(rc config.RefineConfig) error {
	terms, err := vocabularyTerms(rc)
	if err != nil {
		return fmt.Errorf("app: reload vocabulary: %w", err)
	}
	a.refinery.SetTerms(terms)
	slog.Info("vocabulary updated", "terms", len(terms))
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller exposes the pipeline controller for callers that drive bring-up
// manually instead of using Run.
func (a *App) Controller() *transcriber.Controller { return a.controller }

// Refinery exposes the transcript refinery.
func (a *App) Refinery() *transcript.Refinery { return a.refinery }

// Handler returns the diagnostics handler (health, readiness, metrics), for
// embedders that mount it on their own listener instead of configuring
// server.listen_addr.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Helpers ─────────────────────────────────────────────────────────────────

// runtimeReady is the /readyz checker for the inference runtime.
func (a *App) runtimeReady(_ context.Context) error {
	if a.controller.State() < transcriber.StateRuntimeReady {
		return errors.New("inference runtime not initialized")
	}
	return nil
}

// modelReady is the /readyz checker for the speech model.
func (a *App) modelReady(_ context.Context) error {
	if a.controller.State() < transcriber.StateModelReady {
		return errors.New("model not loaded")
	}
	return nil
}

// vocabularyTerms merges the inline vocabulary with the vocab file, inline
// first so its spellings win on duplicates.
func vocabularyTerms(rc config.RefineConfig) ([]string, error) {
	if rc.VocabFile == "" {
		return transcript.MergeTerms(rc.Vocabulary), nil
	}
	fileTerms, err := transcript.LoadTerms(rc.VocabFile)
	if err != nil {
		return nil, err
	}
	return transcript.MergeTerms(rc.Vocabulary, fileTerms), nil
}
