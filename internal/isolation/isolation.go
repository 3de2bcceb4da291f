// Package isolation verifies the shared-memory capability the inference
// runtime uses for its scratch buffers.
//
// The probe is best-effort: an unusable mount downgrades to a warning and a
// remediation hint, never a bring-up failure. The engine still runs without
// shared scratch space, only slower.
package isolation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// DefaultMount is the shared-memory mount probed on Linux hosts.
const DefaultMount = "/dev/shm"

const probePattern = "transcriber-probe-*"

var probePayload = []byte("shared-memory probe")

// Bootstrapper probes the shared-memory mount and keeps the outcome for
// diagnostics. Safe for concurrent use.
type Bootstrapper struct {
	mount string

	mu        sync.Mutex
	probed    bool
	available bool
	freeBytes int64
	reason    string
}

// Option is a functional option for [Bootstrapper].
type Option func(*Bootstrapper)

// WithMount overrides the probed mount point. Useful on hosts without
// /dev/shm and in tests.
func WithMount(path string) Option {
	return func(b *Bootstrapper) { b.mount = path }
}

// New creates a Bootstrapper probing [DefaultMount] unless overridden.
func New(opts ...Option) *Bootstrapper {
	b := &Bootstrapper{mount: DefaultMount}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Ensure probes the mount by writing, reading back, and removing a probe
// file, and records the space available to the engine. It never fails:
// problems are recorded for [Bootstrapper.Diagnostics] and logged as a
// warning. Calling Ensure again repeats the probe.
func (b *Bootstrapper) Ensure(ctx context.Context) {
	available, free, reason := b.probe(ctx)

	b.mu.Lock()
	b.probed = true
	b.available = available
	b.freeBytes = free
	b.reason = reason
	b.mu.Unlock()

	if available {
		slog.Debug("shared-memory mount usable", "mount", b.mount, "free_bytes", free)
		return
	}
	slog.Warn("shared-memory mount unusable, continuing without it",
		"mount", b.mount,
		"reason", reason)
}

// Available reports whether the last probe found the mount usable.
func (b *Bootstrapper) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.probed && b.available
}

// Diagnostics reports the probe outcome together with remediation steps.
// The returned string is never empty.
func (b *Bootstrapper) Diagnostics() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case !b.probed:
		return "Shared memory has not been probed yet. Run Initialize first."
	case b.available:
		return fmt.Sprintf(
			"Shared memory is available at %s (%d MB free). Engine scratch buffers are memory-backed.",
			b.mount, b.freeBytes/(1<<20))
	default:
		return fmt.Sprintf(
			"Shared memory at %s is unavailable (%s). Transcription still works, but engine scratch buffers fall back to the heap. "+
				"To remediate, mount a tmpfs there (mount -t tmpfs tmpfs %s) or point the transcriber at a writable tmpfs in its configuration.",
			b.mount, b.reason, b.mount)
	}
}

// probe performs one write/readback/remove round trip on the mount.
func (b *Bootstrapper) probe(ctx context.Context) (available bool, free int64, reason string) {
	if err := ctx.Err(); err != nil {
		return false, 0, fmt.Sprintf("probe cancelled: %v", err)
	}

	f, err := os.CreateTemp(b.mount, probePattern)
	if err != nil {
		return false, 0, fmt.Sprintf("create probe file: %v", err)
	}
	name := f.Name()
	// Backstop for the early-error paths below; the success path has already
	// removed the file by the time this runs.
	defer os.Remove(name)

	if _, err := f.Write(probePayload); err != nil {
		f.Close()
		return false, 0, fmt.Sprintf("write probe file: %v", err)
	}
	if err := f.Close(); err != nil {
		return false, 0, fmt.Sprintf("close probe file: %v", err)
	}

	got, err := os.ReadFile(name)
	if err != nil {
		return false, 0, fmt.Sprintf("read probe file back: %v", err)
	}
	if !bytes.Equal(got, probePayload) {
		return false, 0, "probe file contents did not survive the round trip"
	}
	if err := os.Remove(name); err != nil {
		return false, 0, fmt.Sprintf("remove probe file: %v", err)
	}

	free, err = mountFreeBytes(b.mount)
	if err != nil {
		// The mount works; free-space reporting is informational only.
		slog.Debug("shared-memory free space unavailable", "mount", b.mount, "error", err)
		free = 0
	}
	return true, free, ""
}
