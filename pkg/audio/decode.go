// Package audio provides PCM decoding and sample conversion for the
// transcription pipeline.
//
// A [Decoder] turns the raw bytes a capture device delivers into interleaved
// float32 samples: [RawF32Decoder] for devices that emit bare little-endian
// float32 PCM, [WavDecoder] for devices that emit a growing WAV container.
// A [Renderer] then flattens decoded samples into the single-channel stream
// the inference engine consumes.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-audio/wav"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Decoder turns raw captured bytes into interleaved float32 PCM samples.
//
// Decode receives the cumulative bytes captured so far in the current device
// generation, not a delta: the capture loop re-decodes the whole buffer after
// every chunk, so implementations must be cheap to call repeatedly and must
// tolerate a truncated tail. Implementations must be safe for concurrent use.
type Decoder interface {
	Decode(raw []byte) ([]float32, Format, error)
}

// DecoderFunc adapts a function to the [Decoder] interface.
type DecoderFunc func(raw []byte) ([]float32, Format, error)

// Decode calls f.
func (f DecoderFunc) Decode(raw []byte) ([]float32, Format, error) {
	return f(raw)
}

// RawF32Decoder decodes bare little-endian float32 PCM, the byte layout the
// microphone capture device emits. The stream carries no header, so the
// decoder must be told the format at construction.
type RawF32Decoder struct {
	Format Format
}

// Decode converts every complete 4-byte sample in raw. A torn trailing sample
// is ignored; the next cumulative decode picks it up.
func (d RawF32Decoder) Decode(raw []byte) ([]float32, Format, error) {
	n := len(raw) / 4
	samples := make([]float32, n)
	for i := range n {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, d.Format, nil
}

// WavDecoder decodes an integer-PCM WAV container. The capture path hands it
// the whole container captured so far, header included, so a stream cut off
// mid-data is expected and yields the samples decoded up to that point.
// Samples are normalized to [-1, 1] based on the container's bit depth.
type WavDecoder struct{}

// Decode parses the container and returns normalized samples with the format
// declared in the header. An incomplete header is an error; incomplete sample
// data is not.
func (WavDecoder) Decode(raw []byte) ([]float32, Format, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, Format{}, errors.New("audio: decode wav: no pcm data")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	scale := float32(uint(1) << (bitDepth - 1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	f := Format{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}
	return samples, f, nil
}
