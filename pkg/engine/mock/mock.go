// Package mock provides in-memory mock implementations of the
// [engine.Runtime], [engine.Handle], and [engine.Instance] interfaces for use
// in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values. Result
// fields left nil default to a fresh nested mock, so a bare &mock.Runtime{}
// is a fully working engine.
package mock

import (
	"context"
	"sync"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/engine"
)

// ─── Runtime ──────────────────────────────────────────────────────────────────

// Runtime is a mock implementation of [engine.Runtime].
type Runtime struct {
	mu sync.Mutex

	// ActivateResult is returned by Activate. If left nil and ActivateError
	// is nil, a fresh [Handle] is created on first use and reused afterwards;
	// inspect it via [Runtime.LastHandle].
	ActivateResult engine.Handle

	// ActivateError is the error returned by Activate.
	ActivateError error

	// CallCountActivate records how many times Activate was called.
	CallCountActivate int
}

var _ engine.Runtime = (*Runtime)(nil)

// Activate implements [engine.Runtime].
func (r *Runtime) Activate(_ context.Context) (engine.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountActivate++
	if r.ActivateError != nil {
		return nil, r.ActivateError
	}
	if r.ActivateResult == nil {
		r.ActivateResult = &Handle{}
	}
	return r.ActivateResult, nil
}

// LastHandle returns the handle Activate handed out, or nil if Activate has
// not succeeded yet.
func (r *Runtime) LastHandle() engine.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ActivateResult
}

// ─── Handle ───────────────────────────────────────────────────────────────────

// NewInstanceCall records the arguments of a single [Handle.NewInstance]
// invocation.
type NewInstanceCall struct {
	// ModelPath is the modelPath argument passed to NewInstance.
	ModelPath string
}

// SetStatusCall records the arguments of a single [Handle.SetStatus]
// invocation.
type SetStatusCall struct {
	// Text is the status text passed to SetStatus.
	Text string
}

// Handle is a mock implementation of [engine.Handle]. SetStatus updates an
// internal status line that Status returns, so status round-trips behave like
// the real engine.
type Handle struct {
	mu sync.Mutex

	// NewInstanceResult is returned by NewInstance. If left nil and
	// NewInstanceError is nil, a fresh [Instance] is created on first use and
	// reused afterwards; inspect it via [Handle.LastInstance].
	NewInstanceResult engine.Instance

	// NewInstanceError is the error returned by NewInstance.
	NewInstanceError error

	// NewInstanceCalls records all NewInstance invocations.
	NewInstanceCalls []NewInstanceCall

	// SetStatusCalls records all SetStatus invocations.
	SetStatusCalls []SetStatusCall

	// CallCountStatus records how many times Status was called.
	CallCountStatus int

	// CloseError is returned by Close.
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	status string
}

var _ engine.Handle = (*Handle)(nil)

// NewInstance implements [engine.Handle].
func (h *Handle) NewInstance(modelPath string) (engine.Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.NewInstanceCalls = append(h.NewInstanceCalls, NewInstanceCall{ModelPath: modelPath})
	if h.NewInstanceError != nil {
		return nil, h.NewInstanceError
	}
	if h.NewInstanceResult == nil {
		h.NewInstanceResult = &Instance{}
	}
	return h.NewInstanceResult, nil
}

// LastInstance returns the instance NewInstance handed out, or nil if
// NewInstance has not succeeded yet.
func (h *Handle) LastInstance() engine.Instance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.NewInstanceResult
}

// SetStatus implements [engine.Handle]. Records the call and updates the
// internal status line.
func (h *Handle) SetStatus(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.SetStatusCalls = append(h.SetStatusCalls, SetStatusCall{Text: text})
	h.status = text
}

// Status implements [engine.Handle]. Returns the last value passed to
// SetStatus.
func (h *Handle) Status() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountStatus++
	return h.status
}

// Close implements [engine.Handle]. Returns CloseError.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountClose++
	return h.CloseError
}

// ─── Instance ─────────────────────────────────────────────────────────────────

// FeedCall records the arguments of a single [Instance.Feed] invocation.
type FeedCall struct {
	// Samples is a copy of the buffer passed to Feed.
	Samples []float32
}

// Instance is a mock implementation of [engine.Instance].
type Instance struct {
	mu sync.Mutex

	// TranscriptScript holds values returned, in order, by successive
	// Transcript calls. When the script is exhausted, Transcript returns
	// TranscriptResult.
	TranscriptScript []string

	// TranscriptResult is returned by Transcript once TranscriptScript is
	// exhausted. Defaults to "".
	TranscriptResult string

	// CloseError is returned by Close.
	CloseError error

	// FeedCalls records all Feed invocations.
	FeedCalls []FeedCall

	// CallCountTranscript records how many times Transcript was called.
	CallCountTranscript int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

var _ engine.Instance = (*Instance)(nil)

// Feed implements [engine.Instance]. Records a copy of the buffer.
func (i *Instance) Feed(samples []float32) {
	cp := make([]float32, len(samples))
	copy(cp, samples)
	i.mu.Lock()
	defer i.mu.Unlock()
	i.FeedCalls = append(i.FeedCalls, FeedCall{Samples: cp})
}

// Transcript implements [engine.Instance]. Returns the next scripted value,
// or TranscriptResult when the script is exhausted.
func (i *Instance) Transcript() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.CallCountTranscript++
	if len(i.TranscriptScript) > 0 {
		next := i.TranscriptScript[0]
		i.TranscriptScript = i.TranscriptScript[1:]
		return next
	}
	return i.TranscriptResult
}

// Close implements [engine.Instance]. Returns CloseError.
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.CallCountClose++
	return i.CloseError
}

// Feeds returns a snapshot of all recorded Feed invocations.
func (i *Instance) Feeds() []FeedCall {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]FeedCall, len(i.FeedCalls))
	copy(out, i.FeedCalls)
	return out
}
