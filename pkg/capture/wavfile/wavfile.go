// Package wavfile replays a WAV file as if it were a live capture device.
//
// The device streams the container's bytes, header first, pacing itself to
// real time on the configured segment cadence, and pairs with
// [audio.WavDecoder]. When the file is exhausted the device ends its chunk
// stream on its own; a capture loop that restarts ended devices will replay
// the file from the start. Useful for development without a microphone and
// for exercising the pipeline in integration tests.
package wavfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"github.com/sridhar-mani/whisper-web-transcriber/pkg/audio"
	"github.com/sridhar-mani/whisper-web-transcriber/pkg/capture"
)

// Platform opens replay devices for a single WAV file.
type Platform struct {
	path string
}

// New returns a platform that replays the WAV file at path.
func New(path string) *Platform {
	return &Platform{path: path}
}

var _ capture.Platform = (*Platform)(nil)

// Open implements [capture.Platform]. The file is read and validated up
// front; replay pacing starts immediately.
func (p *Platform) Open(_ context.Context, cfg capture.Config) (capture.Device, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: %w", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if dec.SampleRate == 0 || dec.NumChans == 0 || dec.BitDepth == 0 {
		return nil, fmt.Errorf("wavfile: %s: not a usable wav container", p.path)
	}
	byteRate := int(dec.SampleRate) * int(dec.NumChans) * int(dec.BitDepth) / 8

	interval := cfg.SegmentInterval
	if interval <= 0 {
		interval = capture.DefaultSegmentInterval
	}
	chunkSize := int(float64(byteRate) * interval.Seconds())
	if chunkSize <= 0 {
		chunkSize = byteRate
	}

	d := &device{
		data:      data,
		chunkSize: chunkSize,
		interval:  interval,
		chunks:    make(chan capture.Chunk, 4),
		done:      make(chan struct{}),
	}
	go d.replayLoop()
	return d, nil
}

// ---- device ----

type device struct {
	data      []byte
	chunkSize int
	interval  time.Duration

	chunks   chan capture.Chunk
	done     chan struct{}
	stopOnce sync.Once
}

var _ capture.Device = (*device)(nil)

func (d *device) Chunks() <-chan capture.Chunk { return d.chunks }

func (d *device) Decoder() audio.Decoder { return audio.WavDecoder{} }

// Stop implements [capture.Device].
func (d *device) Stop() error {
	d.stopOnce.Do(func() { close(d.done) })
	return nil
}

// replayLoop slices the container into interval-sized chunks and delivers
// them on the segment cadence. The first chunk carries the header. It is the
// sole closer of the chunk channel.
func (d *device) replayLoop() {
	defer close(d.chunks)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for offset := 0; offset < len(d.data); {
		select {
		case <-d.done:
			return
		case ts := <-ticker.C:
			end := offset + d.chunkSize
			if end > len(d.data) {
				end = len(d.data)
			}
			select {
			case d.chunks <- capture.Chunk{Data: d.data[offset:end], Timestamp: ts}:
				offset = end
			case <-d.done:
				return
			}
		}
	}
}
