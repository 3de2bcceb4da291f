package isolation_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sridhar-mani/whisper-web-transcriber/internal/isolation"
)

func TestEnsure_UsableMount(t *testing.T) {
	dir := t.TempDir()
	b := isolation.New(isolation.WithMount(dir))

	b.Ensure(context.Background())

	if !b.Available() {
		t.Fatalf("expected mount %s to be usable: %s", dir, b.Diagnostics())
	}
	if diag := b.Diagnostics(); !strings.Contains(diag, "available") {
		t.Errorf("diagnostics should report availability, got %q", diag)
	}

	// The probe must clean up after itself.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read probe dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no probe residue, found %d entries", len(entries))
	}
}

func TestEnsure_MissingMount(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	b := isolation.New(isolation.WithMount(missing))

	b.Ensure(context.Background())

	if b.Available() {
		t.Fatal("expected missing mount to be unavailable")
	}
	diag := b.Diagnostics()
	if diag == "" {
		t.Fatal("diagnostics must not be empty after Ensure")
	}
	if !strings.Contains(diag, "unavailable") {
		t.Errorf("diagnostics should report unavailability, got %q", diag)
	}
	if !strings.Contains(diag, "tmpfs") {
		t.Errorf("diagnostics should include remediation steps, got %q", diag)
	}
}

func TestEnsure_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := isolation.New(isolation.WithMount(t.TempDir()))
	b.Ensure(ctx)

	if b.Available() {
		t.Fatal("expected cancelled probe to leave the mount unavailable")
	}
	if diag := b.Diagnostics(); diag == "" {
		t.Fatal("diagnostics must not be empty after a cancelled Ensure")
	}
}

func TestDiagnostics_BeforeProbe(t *testing.T) {
	b := isolation.New()
	if diag := b.Diagnostics(); diag == "" {
		t.Fatal("diagnostics must not be empty before the probe runs")
	}
	if b.Available() {
		t.Fatal("mount must not report available before the probe runs")
	}
}

func TestEnsure_RepeatedProbeTracksMount(t *testing.T) {
	dir := t.TempDir()
	b := isolation.New(isolation.WithMount(dir))

	b.Ensure(context.Background())
	if !b.Available() {
		t.Fatalf("first probe should succeed: %s", b.Diagnostics())
	}

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove mount dir: %v", err)
	}
	b.Ensure(context.Background())
	if b.Available() {
		t.Fatal("second probe should observe the removed mount")
	}
}
