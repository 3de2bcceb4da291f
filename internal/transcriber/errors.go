package transcriber

import "errors"

// Sentinel errors returned by the [Controller]. Operations wrap these with
// the failure cause, so callers test with [errors.Is].
var (
	// ErrInit means runtime activation failed during Initialize.
	ErrInit = errors.New("transcriber: runtime initialization failed")

	// ErrModelLoad means the model transfer or install failed.
	ErrModelLoad = errors.New("transcriber: model load failed")

	// ErrModelLoadCancelled means the model transfer was cancelled through the
	// caller's context before it completed.
	ErrModelLoadCancelled = errors.New("transcriber: model load cancelled")

	// ErrModelNotLoaded means StartRecording was called before LoadModel
	// succeeded. No capture device is touched.
	ErrModelNotLoaded = errors.New("transcriber: model not loaded")

	// ErrDeviceAcquisition means the capture device could not be opened.
	ErrDeviceAcquisition = errors.New("transcriber: capture device acquisition failed")

	// ErrEngineInit means the engine refused to create an inference instance.
	ErrEngineInit = errors.New("transcriber: engine instance creation failed")

	// ErrDestroyed means Destroy tore the controller down while the operation
	// was still in flight; its result was discarded. The controller can be
	// brought up again with a fresh Initialize.
	ErrDestroyed = errors.New("transcriber: controller destroyed")
)
