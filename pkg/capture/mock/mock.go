// Package mock provides in-memory mock implementations of the
// [capture.Platform] and [capture.Device] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	dev := mock.NewDevice(4)
//	platform := &mock.Platform{OpenResult: dev}
//	got, err := platform.Open(ctx, capture.Config{SampleRate: 16000})
//	dev.EmitChunk([]byte{1, 2, 3})
//	dev.End() // simulate the device stopping on its own
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/audio"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/capture"
)

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [capture.Device].
// Set the exported Result fields before use; inspect the Call* fields after.
type Device struct {
	mu sync.Mutex

	// DecoderResult is returned by [Device.Decoder]. Defaults to a
	// [audio.RawF32Decoder] for 16kHz mono if left nil.
	DecoderResult audio.Decoder

	// StopError is returned by [Device.Stop].
	StopError error

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	chunks chan capture.Chunk
	closed bool
}

// NewDevice returns a Device whose chunk channel is buffered to size buf.
func NewDevice(buf int) *Device {
	return &Device{chunks: make(chan capture.Chunk, buf)}
}

var _ capture.Device = (*Device)(nil)

// Chunks implements [capture.Device].
func (d *Device) Chunks() <-chan capture.Chunk { return d.chunks }

// Decoder implements [capture.Device]. Returns DecoderResult.
func (d *Device) Decoder() audio.Decoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DecoderResult == nil {
		return audio.RawF32Decoder{Format: audio.Format{SampleRate: 16000, Channels: 1}}
	}
	return d.DecoderResult
}

// Stop implements [capture.Device]. Records the call, closes the chunk
// channel and returns StopError.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	if !d.closed {
		d.closed = true
		close(d.chunks)
	}
	return d.StopError
}

// EmitChunk delivers one chunk to the device's channel. Use this in tests to
// simulate the segment cadence. Chunks emitted after the device stopped are
// dropped and reported false.
func (d *Device) EmitChunk(data []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.chunks <- capture.Chunk{Data: data, Timestamp: time.Now()}
	return true
}

// End closes the chunk channel without a Stop call, simulating the device
// stopping on its own (failure or end of input). Safe to call repeatedly.
func (d *Device) End() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.chunks)
	}
}

// Ended reports whether the chunk channel has been closed.
func (d *Device) Ended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Platform.Open] invocation.
type OpenCall struct {
	// Config is the configuration passed to Open.
	Config capture.Config
}

// OpenOutcome is one scripted result for [Platform.Open].
type OpenOutcome struct {
	Device capture.Device
	Err    error
}

// Platform is a mock implementation of [capture.Platform].
type Platform struct {
	mu sync.Mutex

	// OpenScript holds scripted outcomes consumed, in order, by successive
	// Open calls. When the script is exhausted, Open falls back to
	// OpenResult / OpenError.
	OpenScript []OpenOutcome

	// OpenResult is the [capture.Device] returned by Open once OpenScript is
	// exhausted.
	OpenResult capture.Device

	// OpenError is the error returned by Open once OpenScript is exhausted.
	OpenError error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall
}

var _ capture.Platform = (*Platform)(nil)

// Open implements [capture.Platform]. Records the call and returns the next
// scripted outcome, or OpenResult / OpenError when the script is exhausted.
func (p *Platform) Open(_ context.Context, cfg capture.Config) (capture.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCalls = append(p.OpenCalls, OpenCall{Config: cfg})
	if len(p.OpenScript) > 0 {
		next := p.OpenScript[0]
		p.OpenScript = p.OpenScript[1:]
		return next.Device, next.Err
	}
	return p.OpenResult, p.OpenError
}

// CallCountOpen returns how many times Open was called.
func (p *Platform) CallCountOpen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.OpenCalls)
}
