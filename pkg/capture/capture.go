// Package capture defines platform-agnostic audio capture abstractions.
//
// A [Platform] opens capture [Device]s: the system microphone, a WAV file
// replayed in real time, or an in-memory test double. A device delivers raw
// byte chunks on a fixed cadence until it stops; the encoding of those bytes
// is the device's business, so each device pairs itself with the matching
// [audio.Decoder].
//
// Implementations must be safe for concurrent use.
package capture

import (
	"context"
	"time"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/audio"
)

// DefaultSegmentInterval is the chunk flush cadence used when a [Config]
// leaves SegmentInterval unset.
const DefaultSegmentInterval = 3 * time.Second

// Config describes how a capture device should be opened.
type Config struct {
	// SampleRate is the capture rate in Hz. Required for devices that record
	// rather than replay.
	SampleRate int

	// Channels is the number of capture channels. Zero means mono.
	Channels int

	// SegmentInterval is the cadence at which the device flushes a chunk.
	// Zero means [DefaultSegmentInterval].
	SegmentInterval time.Duration

	// AutoGain enables automatic gain control where the platform supports it.
	AutoGain bool

	// NoiseSuppression enables noise suppression where the platform supports it.
	NoiseSuppression bool

	// EchoCancellation enables echo cancellation where the platform supports it.
	EchoCancellation bool
}

// Chunk is one segment interval's worth of raw captured bytes. Data is a
// delta: only the bytes produced since the previous chunk, in the device's
// encoding.
type Chunk struct {
	Data      []byte
	Timestamp time.Time
}

// Device is one open capture stream.
type Device interface {
	// Chunks returns the stream of captured chunks. The channel is closed
	// when the device stops, whether through [Device.Stop] or an underlying
	// failure or end of input.
	Chunks() <-chan Chunk

	// Decoder returns the decoder matching the byte encoding this device
	// emits.
	Decoder() audio.Decoder

	// Stop ends the capture and releases the underlying resources. It is
	// idempotent and safe to call concurrently with channel reads.
	Stop() error
}

// Platform opens capture devices.
type Platform interface {
	// Open acquires a capture device and starts it. The context bounds only
	// the acquisition, not the lifetime of the returned device.
	Open(ctx context.Context, cfg Config) (Device, error)
}
