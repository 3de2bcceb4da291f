package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/config"
)

const (
	watcherBaseYAML = `
server:
  log_level: info
refine:
  vocabulary: [prometheus]
`
	watcherDebugYAML = `
server:
  log_level: debug
refine:
  vocabulary: [prometheus, grafana]
`
	watcherBrokenYAML = `
server:
  log_level: shouting
`
)

// watchEnv drives one Watcher against a real temp file.
type watchEnv struct {
	t       *testing.T
	path    string
	watcher *config.Watcher
	changes chan [2]*config.Config
}

func startWatch(t *testing.T, initial string) *watchEnv {
	t.Helper()
	env := &watchEnv{
		t:       t,
		path:    filepath.Join(t.TempDir(), "transcriber.yaml"),
		changes: make(chan [2]*config.Config, 4),
	}
	env.put(initial)

	w, err := config.NewWatcher(env.path, func(old, new *config.Config) {
		env.changes <- [2]*config.Config{old, new}
	}, config.WithInterval(25*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	env.watcher = w
	t.Cleanup(w.Stop)
	return env
}

func (e *watchEnv) put(content string) {
	e.t.Helper()
	if err := os.WriteFile(e.path, []byte(content), 0o644); err != nil {
		e.t.Fatalf("write %s: %v", e.path, err)
	}
}

// rewrite replaces the file content and forward-dates the mtime so the
// change is visible even on filesystems with coarse timestamp granularity.
func (e *watchEnv) rewrite(content string) {
	e.t.Helper()
	e.put(content)
	e.bumpMtime()
}

func (e *watchEnv) bumpMtime() {
	e.t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(e.path, future, future); err != nil {
		e.t.Fatalf("chtimes %s: %v", e.path, err)
	}
}

func (e *watchEnv) awaitChange() (old, new *config.Config) {
	e.t.Helper()
	select {
	case pair := <-e.changes:
		return pair[0], pair[1]
	case <-time.After(3 * time.Second):
		e.t.Fatal("no change reported before timeout")
		return nil, nil
	}
}

// expectQuiet fails if any change is reported within the window.
func (e *watchEnv) expectQuiet(window time.Duration) {
	e.t.Helper()
	select {
	case <-e.changes:
		e.t.Fatal("watcher reported a change it should have swallowed")
	case <-time.After(window):
	}
}

func TestWatcher_ServesInitialConfig(t *testing.T) {
	t.Parallel()
	env := startWatch(t, watcherBaseYAML)

	cfg := env.watcher.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after a successful initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if len(cfg.Refine.Vocabulary) != 1 {
		t.Errorf("vocabulary = %v, want one entry", cfg.Refine.Vocabulary)
	}
}

func TestWatcher_ReportsContentChange(t *testing.T) {
	t.Parallel()
	env := startWatch(t, watcherBaseYAML)

	env.rewrite(watcherDebugYAML)

	old, next := env.awaitChange()
	if old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q, want %q", old.Server.LogLevel, config.LogInfo)
	}
	if next.Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level = %q, want %q", next.Server.LogLevel, config.LogDebug)
	}
	if got := env.watcher.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current() log_level = %q, want %q", got, config.LogDebug)
	}
}

func TestWatcher_KeepsLastGoodOnBrokenEdit(t *testing.T) {
	t.Parallel()
	env := startWatch(t, watcherBaseYAML)

	env.rewrite(watcherBrokenYAML)
	env.expectQuiet(200 * time.Millisecond)

	if got := env.watcher.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() after broken edit = %q, want the prior %q", got, config.LogInfo)
	}

	// Repairing the file resumes delivery, with the pre-breakage config as old.
	env.rewrite(watcherDebugYAML)
	old, next := env.awaitChange()
	if old.Server.LogLevel != config.LogInfo {
		t.Errorf("old after repair = %q, want %q", old.Server.LogLevel, config.LogInfo)
	}
	if next.Server.LogLevel != config.LogDebug {
		t.Errorf("new after repair = %q, want %q", next.Server.LogLevel, config.LogDebug)
	}
}

func TestWatcher_MtimeOnlyTouchIsIgnored(t *testing.T) {
	t.Parallel()
	env := startWatch(t, watcherBaseYAML)

	env.bumpMtime()
	env.expectQuiet(200 * time.Millisecond)
}

func TestWatcher_InitialLoadErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
			t.Fatal("want error for a missing file, got nil")
		}
	})

	t.Run("invalid file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "broken.yaml")
		if err := os.WriteFile(path, []byte(watcherBrokenYAML), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		if _, err := config.NewWatcher(path, nil); err == nil {
			t.Fatal("want error for an invalid file, got nil")
		}
	})
}

func TestWatcher_StopIsSafeTwice(t *testing.T) {
	t.Parallel()
	env := startWatch(t, watcherBaseYAML)

	env.watcher.Stop()
	env.watcher.Stop()

	if env.watcher.Current() == nil {
		t.Error("Current() should keep serving the last config after Stop")
	}
}
