package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/engine"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/fetch"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/storage"
)

// defaultRuntimeFileName is where a remote runtime payload lands in the store.
const defaultRuntimeFileName = "runtime.bin"

// RemoteRuntime describes an inference runtime fetched at bring-up rather
// than linked into the binary.
type RemoteRuntime struct {
	// Locator is the payload URL.
	Locator string

	// Size is the expected transfer size in bytes, used as the progress hint
	// when the server omits Content-Length. Zero disables the hint.
	Size int64

	// Name is the installed file name. Empty means "runtime.bin".
	Name string

	// Build turns the installed payload into a runtime.
	Build func(path string) (engine.Runtime, error)
}

// Source selects where the inference runtime comes from. Exactly one field
// should be set; Embedded wins when both are.
type Source struct {
	// Embedded is a runtime compiled into the binary. No transfer happens.
	Embedded engine.Runtime

	// Remote downloads the runtime payload during Initialize.
	Remote *RemoteRuntime
}

// RuntimeLoader resolves a [Source] into a ready [engine.Runtime].
type RuntimeLoader struct {
	source  Source
	fetcher *fetch.Client
	store   *storage.Store
}

// NewRuntimeLoader builds a loader. fetcher and store may be nil when the
// source is embedded.
func NewRuntimeLoader(source Source, fetcher *fetch.Client, store *storage.Store) *RuntimeLoader {
	return &RuntimeLoader{source: source, fetcher: fetcher, store: store}
}

// Load resolves the runtime. Embedded sources return immediately; remote
// sources are fetched, installed, and handed to the build function.
func (l *RuntimeLoader) Load(ctx context.Context) (engine.Runtime, error) {
	if l.source.Embedded != nil {
		return l.source.Embedded, nil
	}
	remote := l.source.Remote
	if remote == nil {
		return nil, errors.New("transcriber: no runtime source configured")
	}
	if remote.Build == nil {
		return nil, errors.New("transcriber: remote runtime has no build function")
	}

	slog.Info("downloading inference runtime", "locator", remote.Locator, "expected_bytes", remote.Size)
	data, err := l.fetcher.Fetch(ctx, remote.Locator, fetch.WithExpectedSize(remote.Size))
	if err != nil {
		return nil, fmt.Errorf("transcriber: fetch runtime: %w", err)
	}

	name := remote.Name
	if name == "" {
		name = defaultRuntimeFileName
	}
	path, err := l.store.Install(name, data)
	if err != nil {
		return nil, fmt.Errorf("transcriber: install runtime: %w", err)
	}

	runtime, err := remote.Build(path)
	if err != nil {
		return nil, fmt.Errorf("transcriber: build runtime: %w", err)
	}
	slog.Info("inference runtime installed", "path", path, "bytes", len(data))
	return runtime, nil
}
