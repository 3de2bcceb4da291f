package config_test

import (
	"testing"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Server.LogLevel = config.LogInfo
	old.Refine.Vocabulary = []string{"kubernetes"}

	new := &config.Config{}
	new.Server.LogLevel = config.LogInfo
	new.Refine.Vocabulary = []string{"kubernetes"}

	d := config.Diff(old, new)
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Server.LogLevel = config.LogInfo
	new := &config.Config{}
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("expected LogLevelChanged")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want debug", d.NewLogLevel)
	}
	if !d.Changed() {
		t.Error("Changed() should be true")
	}
}

func TestDiff_VocabularyChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Refine.Vocabulary = []string{"kubernetes"}
	new := &config.Config{}
	new.Refine.Vocabulary = []string{"kubernetes", "grafana"}

	d := config.Diff(old, new)
	if !d.VocabularyChanged {
		t.Fatal("expected VocabularyChanged")
	}
	if len(d.NewVocabulary) != 2 {
		t.Errorf("NewVocabulary: got %v", d.NewVocabulary)
	}
}

func TestDiff_VocabularyOrderMatters(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Refine.Vocabulary = []string{"alpha", "beta"}
	new := &config.Config{}
	new.Refine.Vocabulary = []string{"beta", "alpha"}

	// Reordering triggers a harmless reload rather than a deep set compare.
	d := config.Diff(old, new)
	if !d.VocabularyChanged {
		t.Error("reordered vocabulary should count as changed")
	}
}

func TestDiff_VocabFileChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Refine.VocabFile = "vocab.txt"
	new := &config.Config{}
	new.Refine.VocabFile = "vocab-v2.txt"

	d := config.Diff(old, new)
	if !d.VocabFileChanged {
		t.Fatal("expected VocabFileChanged")
	}
	if d.VocabularyChanged {
		t.Error("inline vocabulary did not change")
	}
	if !d.Changed() {
		t.Error("Changed() should be true")
	}
}

func TestDiff_NonReloadableFieldsIgnored(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Capture.SampleRate = 16000
	new := &config.Config{}
	new.Capture.SampleRate = 48000
	new.Model.Size = config.ModelSmall

	// Capture and model changes need a restart and must not appear in the diff.
	d := config.Diff(old, new)
	if d.Changed() {
		t.Errorf("restart-only fields must not mark the diff changed, got %+v", d)
	}
}
