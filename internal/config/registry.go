package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/capture"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/engine"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested backend name.
var ErrNotRegistered = errors.New("config: factory not registered")

// Registry maps backend names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]func(CaptureConfig) (capture.Platform, error)
	runtimes  map[string]func(EngineConfig) (engine.Runtime, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		platforms: make(map[string]func(CaptureConfig) (capture.Platform, error)),
		runtimes:  make(map[string]func(EngineConfig) (engine.Runtime, error)),
	}
}

// RegisterPlatform registers a capture platform factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterPlatform(name string, factory func(CaptureConfig) (capture.Platform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[name] = factory
}

// RegisterRuntime registers an inference runtime factory under name.
func (r *Registry) RegisterRuntime(name string, factory func(EngineConfig) (engine.Runtime, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimes[name] = factory
}

// CreatePlatform instantiates the capture platform selected by cfg.Platform.
// Returns [ErrNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreatePlatform(cfg CaptureConfig) (capture.Platform, error) {
	r.mu.RLock()
	factory, ok := r.platforms[cfg.Platform]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture/%q", ErrNotRegistered, cfg.Platform)
	}
	return factory(cfg)
}

// CreateRuntime instantiates the inference runtime selected by cfg.Runtime.
// Returns [ErrNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateRuntime(cfg EngineConfig) (engine.Runtime, error) {
	r.mu.RLock()
	factory, ok := r.runtimes[cfg.Runtime]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: runtime/%q", ErrNotRegistered, cfg.Runtime)
	}
	return factory(cfg)
}
