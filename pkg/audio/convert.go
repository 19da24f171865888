package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Converter turns interleaved device audio into mono samples at a target
// rate. It logs a warning on the first format mismatch.
// Create one per stream; not designed for shared use across goroutines.
//
// Successive Convert calls are treated as one continuous signal: the
// resampler carries its fractional read position and the last input sample
// across chunk boundaries, so no output is lost between chunks.
type Converter struct {
	TargetRate     int
	warnedMismatch sync.Once

	srcRate int
	pos     float64 // read position of the next output sample
	last    float32
	primed  bool
}

// Convert down-mixes interleaved samples in format from to mono and
// resamples them to TargetRate. If from is already mono at the target rate
// the input slice is returned unchanged.
// Conversion order: down-mix first, then resample.
func (c *Converter) Convert(interleaved []float32, from Format) []float32 {
	if from.Channels <= 1 && from.SampleRate == c.TargetRate {
		return interleaved
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", from.String(),
			"to", formatString(c.TargetRate, 1),
		)
	})

	mono := Downmix(interleaved, from.Channels)
	if from.SampleRate <= 0 || c.TargetRate <= 0 || from.SampleRate == c.TargetRate {
		return mono
	}
	return c.resample(mono, from.SampleRate)
}

// resample is the streaming form of [Resample]. The input is read as the
// previous chunk's last sample followed by mono.
func (c *Converter) resample(mono []float32, srcRate int) []float32 {
	if srcRate != c.srcRate {
		c.srcRate, c.pos, c.primed = srcRate, 0, false
	}
	if len(mono) == 0 {
		return nil
	}

	off := 0
	if c.primed {
		off = 1
	}
	at := func(i int) float32 {
		if i < off {
			return c.last
		}
		return mono[i-off]
	}

	ratio := float64(srcRate) / float64(c.TargetRate)
	end := float64(len(mono) + off - 1)
	out := make([]float32, 0, int(end/ratio)+1)
	for ; c.pos < end; c.pos += ratio {
		i := int(c.pos)
		frac := float32(c.pos - float64(i))
		out = append(out, at(i)*(1-frac)+at(i+1)*frac)
	}

	// The last sample becomes index 0 of the next chunk.
	c.pos -= end
	c.last = mono[len(mono)-1]
	c.primed = true
	return out
}

// Downmix averages interleaved frames of the given channel count into mono.
// A trailing partial frame is dropped.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
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
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Interleave flattens a planar buffer into a single interleaved slice.
func Interleave(b *Buffer) []float32 {
	channels := b.NumChannels()
	frames := b.Frames()
	out := make([]float32, frames*channels)
	for i := range frames {
		for ch := range channels {
			out[i*channels+ch] = b.Samples[ch][i]
		}
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
