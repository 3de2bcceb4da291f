// Command transcriber captures live audio and prints transcriptions to
// stdout as speech is recognised. Progress and status go to the log on
// stderr, so the transcript stream stays clean for piping.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/app"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/config"
	"github.com/sridhar-mani/whisper-web-transcriber/internal/transcriber"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/capture"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/capture/mic"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/capture/wavfile"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/engine"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/engine/whispercpp"
	llm "github.com/sridhar-mani/whisper-web-transcriber/pkg/provider/llm"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/provider/llm/anyllm"
	openaillm "github.com/sridhar-mani/whisper-web-transcriber/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file")
	modelSize := flag.String("model", "", "model size: tiny, tiny.en, base, base.en, small, small.en")
	wavPath := flag.String("wav", "", "replay a WAV file instead of capturing the microphone")
	listenAddr := flag.String("listen", "", "address for the health and metrics endpoints (e.g. :8080)")
	logLevel := flag.String("log-level", "", "log verbosity: debug, info, warn, error")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transcriber: %v\n", err)
		return 1
	}
	if err := applyFlags(cfg, *modelSize, *wavPath, *listenAddr, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "transcriber: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so a config reload can adjust it.
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})))

	// ── Backend registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build backends", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStartupSummary(cfg)

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers, cliObservers())
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if !d.Changed() {
				return
			}
			if d.LogLevelChanged {
				levelVar.Set(d.NewLogLevel.Slog())
				slog.Info("log level updated", "level", d.NewLogLevel)
			}
			if d.VocabularyChanged || d.VocabFileChanged {
				if err := application.ApplyRefine(new.Refine); err != nil {
					slog.Warn("vocabulary reload failed", "err", err)
				}
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
			slog.Info("watching config for changes", "path", *configPath)
		}
	}

	slog.Info("press Ctrl+C to stop")

	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyFlags lays the command-line overrides over the loaded config. Flags
// win over both the file and the environment.
func applyFlags(cfg *config.Config, model, wav, listen, level string) error {
	if model != "" {
		size := config.ModelSize(model)
		if !size.IsValid() {
			return fmt.Errorf("invalid -model %q; valid sizes: tiny, tiny.en, base, base.en, small, small.en", model)
		}
		cfg.Model.Size = size
		// The flag picks a catalog build outright, overriding any custom URL.
		cfg.Model.URL = ""
	}
	if wav != "" {
		cfg.Capture.Platform = "wav"
		cfg.Capture.WavPath = wav
	}
	if listen != "" {
		cfg.Server.ListenAddr = listen
	}
	if level != "" {
		l := config.LogLevel(level)
		if !l.IsValid() {
			return fmt.Errorf("invalid -log-level %q; valid levels: debug, info, warn, error", level)
		}
		cfg.Server.LogLevel = l
	}
	return nil
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltinBackends wires the capture platforms and inference runtimes
// that ship with the binary into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterPlatform("mic", func(config.CaptureConfig) (capture.Platform, error) {
		return mic.New(), nil
	})
	reg.RegisterPlatform("wav", func(cc config.CaptureConfig) (capture.Platform, error) {
		if cc.WavPath == "" {
			return nil, errors.New("wav platform requires capture.wav_path")
		}
		return wavfile.New(cc.WavPath), nil
	})
	reg.RegisterRuntime("whispercpp", func(ec config.EngineConfig) (engine.Runtime, error) {
		return whispercpp.New(whispercpp.WithLanguage(ec.Language)), nil
	})

	slog.Debug("registered backends", "platforms", []string{"mic", "wav"}, "runtimes", []string{"whispercpp"})
}

// buildProviders instantiates the configured backends via the registry and
// returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	platform, err := reg.CreatePlatform(cfg.Capture)
	if err != nil {
		return nil, fmt.Errorf("create capture platform %q: %w", cfg.Capture.Platform, err)
	}
	slog.Info("backend created", "kind", "capture", "name", cfg.Capture.Platform)

	runtime, err := reg.CreateRuntime(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("create runtime %q: %w", cfg.Engine.Runtime, err)
	}
	slog.Info("backend created", "kind", "runtime", "name", cfg.Engine.Runtime)

	if cfg.Engine.RuntimeURL != "" {
		// The built-in runtime links its engine into the binary; remote
		// runtime payloads are for embedders registering their own backend.
		slog.Warn("engine.runtime_url is ignored by the built-in runtime", "runtime", cfg.Engine.Runtime)
	}

	ps := &app.Providers{
		Source:       transcriber.Source{Embedded: runtime},
		Platform:     platform,
		PlatformName: cfg.Capture.Platform,
	}

	if rc := cfg.Refine.LLM; rc != nil {
		p, err := buildPolishProvider(*rc)
		if err != nil {
			return nil, fmt.Errorf("create polish provider %q: %w", rc.Provider, err)
		}
		ps.LLM = p
		slog.Info("backend created", "kind", "llm", "name", rc.Provider, "model", rc.Model)
	}

	return ps, nil
}

// buildPolishProvider constructs the chat-completion backend for the
// transcript polish stage. "openai" uses the official SDK; every other name
// goes through the any-llm bridge.
func buildPolishProvider(rc config.LLMPolishConfig) (llm.Provider, error) {
	if rc.Provider == "openai" {
		var opts []openaillm.Option
		if rc.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(rc.BaseURL))
		}
		return openaillm.New(rc.APIKey, rc.Model, opts...)
	}

	var opts []anyllmlib.Option
	if rc.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(rc.APIKey))
	}
	if rc.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(rc.BaseURL))
	}
	return anyllm.New(rc.Provider, rc.Model, opts...)
}

// ── Observers ─────────────────────────────────────────────────────────────────

// cliObservers routes pipeline events to the terminal: transcriptions to
// stdout, everything else to the log.
func cliObservers() transcriber.Observers {
	return transcriber.Observers{
		OnTranscription: func(text string) {
			fmt.Println(text)
		},
		OnProgress: func(pct int) {
			if pct%10 == 0 {
				slog.Info("model download", "pct", pct)
			} else {
				slog.Debug("model download", "pct", pct)
			}
		},
		OnStatus: func(status string) {
			slog.Info("pipeline status", "status", status)
		},
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

// printStartupSummary writes a one-glance box of the effective configuration
// to stderr, keeping stdout clean for the transcript stream.
func printStartupSummary(cfg *config.Config) {
	out := os.Stderr

	model := "custom URL"
	if cfg.Model.URL == "" {
		model = fmt.Sprintf("%s (%d MB)", cfg.Model.Size, cfg.Model.Size.ExpectedBytes()>>20)
	}

	captureName := cfg.Capture.Platform
	if captureName == "wav" {
		captureName = "wav " + cfg.Capture.WavPath
	}

	vocab := fmt.Sprintf("%d terms", len(cfg.Refine.Vocabulary))
	if cfg.Refine.VocabFile != "" {
		vocab += " + file"
	}

	polish := "(disabled)"
	if cfg.Refine.LLM != nil {
		polish = cfg.Refine.LLM.Provider + " / " + cfg.Refine.LLM.Model
	}

	listen := cfg.Server.ListenAddr
	if listen == "" {
		listen = "(disabled)"
	}

	fmt.Fprintln(out, "╔════════════════════════════════════════╗")
	fmt.Fprintf(out, "║  %-37s ║\n", "transcriber")
	fmt.Fprintln(out, "╠════════════════════════════════════════╣")
	printRow(out, "Model", model)
	printRow(out, "Capture", captureName)
	printRow(out, "Runtime", cfg.Engine.Runtime+" / "+cfg.Engine.Language)
	printRow(out, "Vocabulary", vocab)
	printRow(out, "Polish", polish)
	printRow(out, "Listen addr", listen)
	fmt.Fprintln(out, "╚════════════════════════════════════════╝")
}

func printRow(out *os.File, label, value string) {
	if len(value) > 22 {
		value = value[:21] + "…"
	}
	fmt.Fprintf(out, "║  %-12s : %-22s ║\n", label, value)
}
