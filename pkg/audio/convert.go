package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Renderer flattens decoded PCM into the mono stream an inference engine
// consumes: the first channel of the interleaved input, resampled to the
// target rate. It logs a warning on the first rate mismatch. Safe for
// concurrent use.
type Renderer struct {
	TargetRate     int
	warnedMismatch sync.Once
}

// Render extracts channel 0 from interleaved samples and resamples it to the
// target rate. If the source already matches, the input passes through
// without copying.
func (r *Renderer) Render(samples []float32, src Format) []float32 {
	mono := samples
	if src.Channels > 1 {
		mono = ExtractChannel(samples, src.Channels, 0)
	}

	if src.SampleRate > 0 && r.TargetRate > 0 && src.SampleRate != r.TargetRate {
		r.warnedMismatch.Do(func() {
			slog.Warn("audio rate mismatch: resampling",
				"from", formatString(src.SampleRate, src.Channels),
				"to", formatString(r.TargetRate, 1),
			)
		})
		mono = ResampleMonoF32(mono, src.SampleRate, r.TargetRate)
	}
	return mono
}

// ExtractChannel picks one channel out of interleaved PCM. Frames torn off
// before idx at the end of the input are dropped. For mono input the slice is
// returned unchanged.
func ExtractChannel(samples []float32, channels, idx int) []float32 {
	if channels <= 1 {
		return samples
	}
	if idx < 0 || idx >= channels {
		return nil
	}
	out := make([]float32, 0, len(samples)/channels+1)
	for i := idx; i < len(samples); i += channels {
		out = append(out, samples[i])
	}
	return out
}

// ResampleMonoF32 resamples mono float32 PCM from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMonoF32(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstSamples := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "16000Hz mono".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
