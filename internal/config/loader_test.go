package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/config"
)

func TestLoad_EmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Model.Size != config.ModelBaseEN {
		t.Errorf("model.size: got %q, want base.en", cfg.Model.Size)
	}
	if cfg.Model.Dir != "models" {
		t.Errorf("model.dir: got %q, want models", cfg.Model.Dir)
	}
	if cfg.Model.FileName != "whisper.bin" {
		t.Errorf("model.file_name: got %q, want whisper.bin", cfg.Model.FileName)
	}
	if cfg.Capture.Platform != "mic" {
		t.Errorf("capture.platform: got %q, want mic", cfg.Capture.Platform)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Errorf("capture.sample_rate: got %d, want 16000", cfg.Capture.SampleRate)
	}
	if cfg.Capture.SegmentInterval != 3*time.Second {
		t.Errorf("capture.segment_interval: got %s, want 3s", cfg.Capture.SegmentInterval)
	}
	if cfg.Engine.Runtime != "whispercpp" {
		t.Errorf("engine.runtime: got %q, want whispercpp", cfg.Engine.Runtime)
	}
	if cfg.Engine.Language != "en" {
		t.Errorf("engine.language: got %q, want en", cfg.Engine.Language)
	}
	if cfg.Engine.PollInterval != 100*time.Millisecond {
		t.Errorf("engine.poll_interval: got %s, want 100ms", cfg.Engine.PollInterval)
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
model:
  size: small.en
  dir: /var/lib/transcriber
capture:
  platform: wav
  wav_path: testdata/sample.wav
  sample_rate: 48000
  segment_interval: 5s
  auto_gain: false
  echo_cancellation: true
engine:
  language: de
  poll_interval: 250ms
refine:
  vocabulary: [kubernetes, grafana]
  llm:
    provider: openai
    api_key: sk-test
    model: gpt-4o-mini
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Model.Size != config.ModelSmallEN {
		t.Errorf("model.size: got %q", cfg.Model.Size)
	}
	if cfg.Capture.Platform != "wav" || cfg.Capture.WavPath != "testdata/sample.wav" {
		t.Errorf("capture: got %+v", cfg.Capture)
	}
	if cfg.Capture.AutoGainEnabled() {
		t.Error("auto_gain: explicit false should stick")
	}
	if cfg.Capture.NoiseSuppressionEnabled() != true {
		t.Error("noise_suppression: unset should default to on")
	}
	if !cfg.Capture.EchoCancellation {
		t.Error("echo_cancellation: explicit true should stick")
	}
	if cfg.Capture.SegmentInterval != 5*time.Second {
		t.Errorf("segment_interval: got %s", cfg.Capture.SegmentInterval)
	}
	if cfg.Engine.Language != "de" {
		t.Errorf("language: got %q", cfg.Engine.Language)
	}
	if cfg.Engine.PollInterval != 250*time.Millisecond {
		t.Errorf("poll_interval: got %s", cfg.Engine.PollInterval)
	}
	if len(cfg.Refine.Vocabulary) != 2 {
		t.Errorf("vocabulary: got %v", cfg.Refine.Vocabulary)
	}
	if cfg.Refine.LLM == nil || cfg.Refine.LLM.Model != "gpt-4o-mini" {
		t.Errorf("refine.llm: got %+v", cfg.Refine.LLM)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
server:
  listen_address: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field listen_address, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: bananas
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_InvalidModelSize(t *testing.T) {
	yaml := `
model:
  size: enormous
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid model size, got nil")
	}
	if !strings.Contains(err.Error(), "model.size") {
		t.Errorf("error should mention model.size, got: %v", err)
	}
}

func TestValidate_WavPlatformRequiresPath(t *testing.T) {
	yaml := `
capture:
  platform: wav
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for wav platform without path, got nil")
	}
	if !strings.Contains(err.Error(), "wav_path") {
		t.Errorf("error should mention wav_path, got: %v", err)
	}
}

func TestValidate_LLMPolishRequiresProviderAndModel(t *testing.T) {
	yaml := `
refine:
  llm:
    api_key: sk-test
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for incomplete llm polish config, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "refine.llm.provider") {
		t.Errorf("error should mention refine.llm.provider, got: %v", err)
	}
	if !strings.Contains(errStr, "refine.llm.model") {
		t.Errorf("error should mention refine.llm.model, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	yaml := `
server:
  log_level: shout
model:
  size: enormous
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") || !strings.Contains(errStr, "model.size") {
		t.Errorf("error should list both failures, got: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRANSCRIBER_LOG_LEVEL", "debug")
	t.Setenv("TRANSCRIBER_MODEL_SIZE", "tiny")
	t.Setenv("TRANSCRIBER_MODEL_DIR", "/tmp/models")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  log_level: info
model:
  size: base.en
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("env should override log level, got %q", cfg.Server.LogLevel)
	}
	if cfg.Model.Size != config.ModelTiny {
		t.Errorf("env should override model size, got %q", cfg.Model.Size)
	}
	if cfg.Model.Dir != "/tmp/models" {
		t.Errorf("env should override model dir, got %q", cfg.Model.Dir)
	}
}

func TestLoad_EnvAPIKeyNeedsPolishBlock(t *testing.T) {
	t.Setenv("TRANSCRIBER_LLM_API_KEY", "sk-env")

	// Without a polish block the key must not conjure one up.
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Refine.LLM != nil {
		t.Fatal("env API key must not create a polish block")
	}

	// With a polish block the env key wins over the file value.
	yaml := `
refine:
  llm:
    provider: openai
    api_key: sk-file
    model: gpt-4o-mini
`
	cfg, err = config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Refine.LLM.APIKey != "sk-env" {
		t.Errorf("env key should win, got %q", cfg.Refine.LLM.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestValidFactoryNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidFactoryNames) == 0 {
		t.Fatal("ValidFactoryNames should not be empty")
	}
	captureNames := config.ValidFactoryNames["capture"]
	if len(captureNames) == 0 {
		t.Fatal("ValidFactoryNames[\"capture\"] should not be empty")
	}
	found := false
	for _, n := range captureNames {
		if n == "mic" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidFactoryNames[\"capture\"] should contain \"mic\"")
	}
}
