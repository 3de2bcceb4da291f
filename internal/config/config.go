// Package config provides the configuration schema, loader, and factory
// registry for the transcriber service.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the transcriber service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the corresponding slog level. Unrecognised levels map to
// info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for the transcriber.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Capture CaptureConfig `yaml:"capture"`
	Engine  EngineConfig  `yaml:"engine"`
	Refine  RefineConfig  `yaml:"refine"`
}

// ServerConfig holds the diagnostics endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the health and metrics endpoints listen
	// on (e.g., ":8080"). Empty disables the HTTP listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ModelConfig selects the speech model and where its bytes are installed.
type ModelConfig struct {
	// Size picks one of the published model builds (see [ModelSize]).
	// Defaults to [DefaultModelSize].
	Size ModelSize `yaml:"size"`

	// URL overrides the size-derived download locator. The catalog size hint
	// for Size still applies, so progress reporting keeps working against
	// servers that omit Content-Length.
	URL string `yaml:"url"`

	// Dir is the directory the model file is installed into.
	Dir string `yaml:"dir"`

	// FileName is the installed model file name. The install overwrites any
	// previous content under the same name.
	FileName string `yaml:"file_name"`
}

// CaptureConfig describes the audio source and segmenting cadence.
type CaptureConfig struct {
	// Platform selects the registered capture backend ("mic" or "wav").
	Platform string `yaml:"platform"`

	// WavPath is the container file replayed when Platform is "wav".
	WavPath string `yaml:"wav_path"`

	// SampleRate is the capture rate in Hz. The engine consumes 16 kHz mono;
	// other rates are resampled.
	SampleRate int `yaml:"sample_rate"`

	// SegmentInterval is the cadence at which buffered audio is cut into
	// chunks and handed to the decode pipeline.
	SegmentInterval time.Duration `yaml:"segment_interval"`

	// AutoGain toggles automatic gain control. Defaults to on; use
	// [CaptureConfig.AutoGainEnabled] to read the effective value.
	AutoGain *bool `yaml:"auto_gain"`

	// NoiseSuppression toggles noise suppression. Defaults to on; use
	// [CaptureConfig.NoiseSuppressionEnabled] to read the effective value.
	NoiseSuppression *bool `yaml:"noise_suppression"`

	// EchoCancellation toggles echo cancellation. Defaults to off.
	EchoCancellation bool `yaml:"echo_cancellation"`
}

// AutoGainEnabled reports the effective auto-gain setting.
func (c CaptureConfig) AutoGainEnabled() bool {
	return c.AutoGain == nil || *c.AutoGain
}

// NoiseSuppressionEnabled reports the effective noise-suppression setting.
func (c CaptureConfig) NoiseSuppressionEnabled() bool {
	return c.NoiseSuppression == nil || *c.NoiseSuppression
}

// EngineConfig selects and tunes the inference runtime.
type EngineConfig struct {
	// Runtime selects the registered runtime backend. Defaults to
	// "whispercpp".
	Runtime string `yaml:"runtime"`

	// Language is the transcription language hint passed to the engine.
	Language string `yaml:"language"`

	// PollInterval is the transcript polling cadence.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RuntimeURL, when set, points at a downloadable runtime payload. Empty
	// means the runtime linked into the binary is used directly, avoiding
	// any transfer.
	RuntimeURL string `yaml:"runtime_url"`

	// RuntimeSize is the expected payload size for RuntimeURL transfers,
	// used as the progress hint.
	RuntimeSize int64 `yaml:"runtime_size"`
}

// RefineConfig tunes the transcript post-processing stages.
type RefineConfig struct {
	// Vocabulary lists domain terms the phonetic refiner corrects
	// mistranscriptions towards.
	Vocabulary []string `yaml:"vocabulary"`

	// VocabFile is a newline-delimited vocabulary file merged with
	// Vocabulary. Changes to it apply on config reload.
	VocabFile string `yaml:"vocab_file"`

	// LLM configures the optional language-model polish pass. When nil, the
	// pass is disabled.
	LLM *LLMPolishConfig `yaml:"llm"`
}

// LLMPolishConfig configures the chat-completion backend used to polish
// transcripts.
type LLMPolishConfig struct {
	// Provider selects the backend ("openai", or one of the any-llm names
	// such as "anthropic", "ollama", "groq").
	Provider string `yaml:"provider"`

	// APIKey is the backend credential. May also arrive via the
	// TRANSCRIBER_LLM_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the backend-specific model identifier (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`
}
