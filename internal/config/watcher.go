package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultPollInterval is how often the watcher re-stats the config file.
const defaultPollInterval = 5 * time.Second

// snapshot is one observed state of the config file.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// takeSnapshot reads, hashes, and parses the file at path. A file that fails
// to parse or validate yields an error so the caller keeps its last good
// snapshot.
func takeSnapshot(path string) (snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}

// Watcher polls a config file and reports content changes through a
// callback. Polling keeps the dependency surface flat; a 5s cadence is ample
// for a file humans edit.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu   sync.Mutex
	last snapshot

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption adjusts a [Watcher] under construction.
type WatcherOption func(*Watcher)

// WithInterval overrides the polling cadence.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher performs the initial load of path, then polls it in the
// background until [Watcher.Stop]. onChange fires with the previous and the
// freshly loaded config after every content change that parses and
// validates; an edit that breaks the file is logged and skipped, keeping the
// last good config current.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	first, err := takeSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.last = first

	go w.run()
	return w, nil
}

// Current hands out the last config that loaded cleanly.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if old, new, changed := w.refresh(); changed && w.onChange != nil {
				// Outside the lock so the callback may call Current.
				w.onChange(old, new)
			}
		}
	}
}

// refresh re-reads the file when its mtime moved and swaps in the new config
// when the content hash differs. Returns the old and new configs only when a
// real change landed.
func (w *Watcher) refresh() (old, new *Config, changed bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: stat failed", "path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.last.mtime)
	w.mu.Unlock()
	if unchanged {
		return nil, nil, false
	}

	next, err := takeSnapshot(w.path)
	if err != nil {
		slog.Warn("config watcher: reload failed, keeping previous config", "path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.last
	if next.sum == prev.sum {
		// Touched without a content change.
		w.last.mtime = next.mtime
		return nil, nil, false
	}
	w.last = next
	slog.Info("config reloaded", "path", w.path)
	return prev.cfg, next.cfg, true
}
