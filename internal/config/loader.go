package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ValidFactoryNames lists the backend names registered by the stock binary.
// Used by [Validate] to warn about unrecognised names; embedders may register
// additional ones, so unknown names are not errors.
var ValidFactoryNames = map[string][]string{
	"capture": {"mic", "wav"},
	"runtime": {"whispercpp"},
}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config]. An empty path
// yields the default configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{}
		if err := finalize(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finalize runs the post-decode pipeline shared by all load paths.
func finalize(cfg *Config) error {
	if err := applyEnvOverrides(cfg); err != nil {
		return err
	}
	applyDefaults(cfg)
	return Validate(cfg)
}

// envOverrides mirrors the subset of [Config] settable from the environment.
// Set values take precedence over the file.
type envOverrides struct {
	ListenAddr string `env:"TRANSCRIBER_LISTEN_ADDR"`
	LogLevel   string `env:"TRANSCRIBER_LOG_LEVEL"`
	ModelSize  string `env:"TRANSCRIBER_MODEL_SIZE"`
	ModelURL   string `env:"TRANSCRIBER_MODEL_URL"`
	ModelDir   string `env:"TRANSCRIBER_MODEL_DIR"`
	WavPath    string `env:"TRANSCRIBER_WAV_PATH"`
	LLMAPIKey  string `env:"TRANSCRIBER_LLM_API_KEY"`
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}

	if o.ListenAddr != "" {
		cfg.Server.ListenAddr = o.ListenAddr
	}
	if o.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(o.LogLevel)
	}
	if o.ModelSize != "" {
		cfg.Model.Size = ModelSize(o.ModelSize)
	}
	if o.ModelURL != "" {
		cfg.Model.URL = o.ModelURL
	}
	if o.ModelDir != "" {
		cfg.Model.Dir = o.ModelDir
	}
	if o.WavPath != "" {
		cfg.Capture.WavPath = o.WavPath
	}
	// Secret injection applies only when the polish block exists; a key
	// without a provider and model is unusable.
	if o.LLMAPIKey != "" && cfg.Refine.LLM != nil {
		cfg.Refine.LLM.APIKey = o.LLMAPIKey
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Model.Size == "" {
		cfg.Model.Size = DefaultModelSize
	}
	if cfg.Model.Dir == "" {
		cfg.Model.Dir = "models"
	}
	if cfg.Model.FileName == "" {
		cfg.Model.FileName = "whisper.bin"
	}
	if cfg.Capture.Platform == "" {
		cfg.Capture.Platform = "mic"
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = 16000
	}
	if cfg.Capture.SegmentInterval == 0 {
		cfg.Capture.SegmentInterval = 3 * time.Second
	}
	if cfg.Engine.Runtime == "" {
		cfg.Engine.Runtime = "whispercpp"
	}
	if cfg.Engine.Language == "" {
		cfg.Engine.Language = "en"
	}
	if cfg.Engine.PollInterval == 0 {
		cfg.Engine.PollInterval = 100 * time.Millisecond
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Model
	if cfg.Model.Size != "" && !cfg.Model.Size.IsValid() {
		errs = append(errs, fmt.Errorf("model.size %q is invalid; valid values: tiny, tiny.en, base, base.en, small, small.en", cfg.Model.Size))
	}

	// Capture
	validateFactoryName("capture", cfg.Capture.Platform)
	if cfg.Capture.Platform == "wav" && cfg.Capture.WavPath == "" {
		errs = append(errs, errors.New("capture.wav_path is required when capture.platform is wav"))
	}
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", cfg.Capture.SampleRate))
	}
	if cfg.Capture.SegmentInterval < 0 {
		errs = append(errs, fmt.Errorf("capture.segment_interval %s must be positive", cfg.Capture.SegmentInterval))
	}

	// Engine
	validateFactoryName("runtime", cfg.Engine.Runtime)
	if cfg.Engine.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("engine.poll_interval %s must be positive", cfg.Engine.PollInterval))
	}
	if cfg.Engine.RuntimeURL == "" && cfg.Engine.RuntimeSize != 0 {
		slog.Warn("engine.runtime_size is set without engine.runtime_url; the hint has no effect")
	}

	// Refine
	if cfg.Refine.LLM != nil {
		if cfg.Refine.LLM.Provider == "" {
			errs = append(errs, errors.New("refine.llm.provider is required when refine.llm is set"))
		}
		if cfg.Refine.LLM.Model == "" {
			errs = append(errs, errors.New("refine.llm.model is required when refine.llm is set"))
		}
		if cfg.Refine.LLM.APIKey == "" {
			slog.Warn("refine.llm.api_key is empty; the polish backend will rely on its own environment variables")
		}
	}

	return errors.Join(errs...)
}

// validateFactoryName logs a warning if name is non-empty and not found in
// the [ValidFactoryNames] list for the given kind.
func validateFactoryName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidFactoryNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown factory name; may be a typo or an embedder-registered backend",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
