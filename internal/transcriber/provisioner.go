package transcriber

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/fetch"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/storage"
)

// DefaultModelFileName is where the model lands in the store when the
// provisioner is not given a name.
const DefaultModelFileName = "whisper.bin"

// ProvisionerConfig configures a [ModelProvisioner].
type ProvisionerConfig struct {
	// Fetcher downloads the model bytes.
	Fetcher *fetch.Client

	// Store installs the downloaded bytes.
	Store *storage.Store

	// Locator is the model download URL.
	Locator string

	// ExpectedSize is the transfer size hint for progress reporting when the
	// server omits Content-Length. Zero disables the hint.
	ExpectedSize int64

	// Name is the installed file name. Empty means [DefaultModelFileName].
	Name string
}

// ModelProvisioner downloads model bytes and installs them atomically under
// a fixed name, replacing any stale install from an earlier run.
type ModelProvisioner struct {
	fetcher      *fetch.Client
	store        *storage.Store
	locator      string
	expectedSize int64
	name         string
}

// NewModelProvisioner builds a provisioner from cfg.
func NewModelProvisioner(cfg ProvisionerConfig) *ModelProvisioner {
	name := cfg.Name
	if name == "" {
		name = DefaultModelFileName
	}
	return &ModelProvisioner{
		fetcher:      cfg.Fetcher,
		store:        cfg.Store,
		locator:      cfg.Locator,
		expectedSize: cfg.ExpectedSize,
		name:         name,
	}
}

// Provision fetches the model and installs it, reporting integer transfer
// percentages to onProgress. onProgress may be nil. Returns the installed
// path. Cancellation of ctx aborts the transfer.
func (p *ModelProvisioner) Provision(ctx context.Context, onProgress func(pct int)) (string, error) {
	slog.Info("downloading model", "locator", p.locator, "expected_bytes", p.expectedSize)

	data, err := p.fetcher.Fetch(ctx, p.locator,
		fetch.WithExpectedSize(p.expectedSize),
		fetch.WithProgress(onProgress),
	)
	if err != nil {
		return "", fmt.Errorf("transcriber: fetch model: %w", err)
	}

	// Clear any stale install first; rename-over-existing is not portable.
	_ = p.store.Remove(p.name)

	path, err := p.store.Install(p.name, data)
	if err != nil {
		return "", fmt.Errorf("transcriber: install model: %w", err)
	}
	slog.Info("model installed", "path", path, "bytes", len(data))
	return path, nil
}
