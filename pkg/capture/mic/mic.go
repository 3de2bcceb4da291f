// Package mic captures audio from the system's default input device.
//
// It drives the miniaudio library through malgo and emits bare little-endian
// float32 PCM, paired with [audio.RawF32Decoder]. Chunks are flushed on the
// configured segment cadence by a background goroutine; the device callback
// itself only appends to a pending buffer.
package mic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/audio"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/capture"
)

// chunkBuffer is the capacity of a device's chunk channel. The capture loop
// drains promptly; the buffer only absorbs a slow decode cycle.
const chunkBuffer = 8

// Platform opens microphone capture devices.
type Platform struct{}

// New returns a microphone capture platform backed by miniaudio.
func New() *Platform { return &Platform{} }

var _ capture.Platform = (*Platform)(nil)

// Open implements [capture.Platform]. It initializes a miniaudio context and
// capture device for the requested format and starts recording immediately.
// malgo exposes no gain or noise processing toggles, so the corresponding
// Config fields are ignored here.
func (*Platform) Open(_ context.Context, cfg capture.Config) (capture.Device, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("mic: sample rate required, got %d", cfg.SampleRate)
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	interval := cfg.SegmentInterval
	if interval <= 0 {
		interval = capture.DefaultSegmentInterval
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("mic: init context: %w", err)
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = uint32(channels)
	deviceCfg.SampleRate = uint32(cfg.SampleRate)

	d := &device{
		mctx:   mctx,
		format: audio.Format{SampleRate: cfg.SampleRate, Channels: channels},
		chunks: make(chan capture.Chunk, chunkBuffer),
		done:   make(chan struct{}),
	}

	dev, err := malgo.InitDevice(mctx.Context, deviceCfg, malgo.DeviceCallbacks{
		Data: d.onData,
	})
	if err != nil {
		uninitContext(mctx)
		return nil, fmt.Errorf("mic: init device: %w", err)
	}
	d.dev = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		uninitContext(mctx)
		return nil, fmt.Errorf("mic: start device: %w", err)
	}

	go d.flushLoop(interval)

	slog.Debug("microphone capture started",
		"sample_rate", cfg.SampleRate,
		"channels", channels,
		"segment_interval", interval,
	)
	return d, nil
}

// ---- device ----

type device struct {
	mctx   *malgo.AllocatedContext
	dev    *malgo.Device
	format audio.Format

	mu      sync.Mutex
	pending []byte

	chunks   chan capture.Chunk
	done     chan struct{}
	stopOnce sync.Once
}

var _ capture.Device = (*device)(nil)

func (d *device) Chunks() <-chan capture.Chunk { return d.chunks }

func (d *device) Decoder() audio.Decoder {
	return audio.RawF32Decoder{Format: d.format}
}

// Stop implements [capture.Device]. Safe to call more than once; the chunk
// channel is closed by the flush loop after it drains the final buffer.
func (d *device) Stop() error {
	d.stopOnce.Do(func() {
		d.dev.Uninit()
		uninitContext(d.mctx)
		close(d.done)
	})
	return nil
}

// onData is the miniaudio data callback. It must return quickly, so it only
// copies the sample bytes into the pending buffer.
func (d *device) onData(_, pSample []byte, _ uint32) {
	if len(pSample) == 0 {
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, pSample...)
	d.mu.Unlock()
}

// flushLoop emits the pending buffer as one chunk per segment interval. It is
// the sole closer of the chunk channel.
func (d *device) flushLoop(interval time.Duration) {
	defer close(d.chunks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			d.flush()
			return
		case <-ticker.C:
			d.flush()
		}
	}
}

// flush swaps out the pending buffer and delivers it as a chunk. Empty
// intervals produce no chunk.
func (d *device) flush() {
	d.mu.Lock()
	data := d.pending
	d.pending = nil
	d.mu.Unlock()

	if len(data) == 0 {
		return
	}

	select {
	case d.chunks <- capture.Chunk{Data: data, Timestamp: time.Now()}:
	case <-d.done:
	}
}

func uninitContext(mctx *malgo.AllocatedContext) {
	if err := mctx.Uninit(); err != nil {
		slog.Warn("miniaudio context uninit failed", "err", err)
	}
	mctx.Free()
}
