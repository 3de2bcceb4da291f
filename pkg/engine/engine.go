// Package engine defines the inference engine abstractions the transcription
// pipeline drives.
//
// A [Runtime] activates once into a [Handle]; the handle creates [Instance]s
// bound to an installed model and carries a status line the pipeline can set
// and read. Feeding samples is fire-and-forget and pulling the transcript is
// a point-in-time drain, so the capture path never blocks on inference.
//
// Implementations must be safe for concurrent use.
package engine

import "context"

// Runtime is an inference engine that can be brought up.
type Runtime interface {
	// Activate brings the runtime up and returns its capability handle.
	// Activation may be expensive; callers are expected to memoize the
	// result rather than activate repeatedly.
	Activate(ctx context.Context) (Handle, error)
}

// Handle is an activated runtime.
type Handle interface {
	// NewInstance creates an inference instance bound to the model installed
	// at modelPath.
	NewInstance(modelPath string) (Instance, error)

	// SetStatus replaces the engine's status line. An empty string clears it.
	SetStatus(text string)

	// Status returns the current status line.
	Status() string

	// Close releases the runtime. Instances created from the handle must be
	// closed separately.
	Close() error
}

// Instance is one configured inference session bound to a loaded model.
type Instance interface {
	// Feed hands the engine the cumulative sample buffer for the current
	// recording span. It must not block: inference runs on the engine's own
	// worker, and a buffer that arrives while a previous one is still
	// processing supersedes it.
	Feed(samples []float32)

	// Transcript drains and returns the text produced since the last call,
	// or "" when nothing new is available.
	Transcript() string

	// Close stops the instance's worker and releases the model.
	Close() error
}
