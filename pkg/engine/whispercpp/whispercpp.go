// Package whispercpp implements [engine.Runtime] on the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// Feeds carry the cumulative sample buffer for the current recording span, so
// each inference pass covers only the tail beyond what was already processed,
// re-reading a short overlap window for context at the boundary.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/engine"
)

const defaultLanguage = "en"

// contextOverlapSeconds is how much already-processed audio each inference
// pass re-reads so whisper has context across the tail boundary.
const contextOverlapSeconds = 1

// Runtime creates whisper.cpp engine handles.
type Runtime struct {
	language string
}

// Option is a functional option for configuring a [Runtime].
type Option func(*Runtime)

// WithLanguage sets the BCP-47 language code for transcription (e.g. "en",
// "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Runtime) { r.language = lang }
}

// New creates a whisper.cpp runtime. The native library is linked into the
// binary, so no payload acquisition happens here.
func New(opts ...Option) *Runtime {
	r := &Runtime{language: defaultLanguage}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time assertion that Runtime satisfies engine.Runtime.
var _ engine.Runtime = (*Runtime)(nil)

// Activate implements [engine.Runtime]. The embedded native library needs no
// staging, so activation only hands out the capability surface.
func (r *Runtime) Activate(ctx context.Context) (engine.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whispercpp: context already cancelled: %w", err)
	}
	slog.Debug("whisper.cpp runtime activated", "language", r.language)
	return &handle{language: r.language}, nil
}

// ---- handle -----------------------------------------------------------------

type handle struct {
	language string

	mu     sync.Mutex
	status string
}

var _ engine.Handle = (*handle)(nil)

// NewInstance implements [engine.Handle]. It loads the ggml model from
// modelPath and starts the inference worker. Each instance owns its model.
func (h *handle) NewInstance(modelPath string) (engine.Instance, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}

	s := &instance{
		model:    model,
		language: h.language,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop()
	return s, nil
}

// SetStatus implements [engine.Handle].
func (h *handle) SetStatus(text string) {
	h.mu.Lock()
	h.status = text
	h.mu.Unlock()
}

// Status implements [engine.Handle].
func (h *handle) Status() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Close implements [engine.Handle]. The handle holds no native resources of
// its own.
func (h *handle) Close() error { return nil }

// ---- instance ---------------------------------------------------------------

// instance is a live inference session. Feeds land in a latest-wins pending
// slot; a single worker goroutine drains it, so at most one whisper context
// is processing at any time and superseded buffers are skipped rather than
// queued.
type instance struct {
	model    whisperlib.Model
	language string

	mu            sync.Mutex
	pending       []float32 // latest cumulative buffer awaiting inference
	lastProcessed int       // cumulative samples already inferred
	produced      string    // text accumulated since the last Transcript drain

	kick chan struct{}
	done chan struct{}

	once     sync.Once
	wg       sync.WaitGroup
	closeErr error
}

var _ engine.Instance = (*instance)(nil)

// Feed implements [engine.Instance]. Non-blocking: the buffer replaces any
// pending one and the worker is nudged.
func (s *instance) Feed(samples []float32) {
	select {
	case <-s.done:
		return
	default:
	}

	s.mu.Lock()
	s.pending = samples
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Transcript implements [engine.Instance].
func (s *instance) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.produced
	s.produced = ""
	return text
}

// Close implements [engine.Instance]. Waits for the worker to finish its
// current pass, then releases the model.
func (s *instance) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.closeErr = s.model.Close()
	})
	return s.closeErr
}

// processLoop is the single goroutine that runs inference passes.
func (s *instance) processLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.kick:
			s.processPending()
		}
	}
}

// processPending takes the pending cumulative buffer and infers the tail not
// yet processed. A buffer shorter than what was already processed means a new
// recording span began, so processing restarts from the top.
func (s *instance) processPending() {
	s.mu.Lock()
	buf := s.pending
	s.pending = nil
	if buf == nil {
		s.mu.Unlock()
		return
	}
	if len(buf) < s.lastProcessed {
		s.lastProcessed = 0
	}
	if len(buf) == s.lastProcessed {
		s.mu.Unlock()
		return
	}
	from := s.lastProcessed - contextOverlapSeconds*whisperlib.SampleRate
	if from < 0 {
		from = 0
	}
	s.lastProcessed = len(buf)
	s.mu.Unlock()

	text, err := s.infer(buf[from:])
	if err != nil {
		slog.Error("whisper inference failed", "error", err)
		return
	}
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.produced != "" {
		s.produced += " "
	}
	s.produced += text
	s.mu.Unlock()
}

// infer runs whisper.cpp over the samples using a fresh context and returns
// the concatenated segment text. Each context is NOT thread-safe, but the
// model can be shared across contexts.
func (s *instance) infer(samples []float32) (string, error) {
	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whispercpp: create context: %w", err)
	}

	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whispercpp: failed to set language, using default",
			"language", s.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whispercpp: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
