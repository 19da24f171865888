package audio

import "time"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string { return formatString(f.SampleRate, f.Channels) }

// Buffer holds decoded audio as planar float32 samples in [-1, 1].
// Every channel slice has the same length.
type Buffer struct {
	// SampleRate in Hz (e.g. 24000 for model output).
	SampleRate int

	// Samples holds one slice per channel.
	Samples [][]float32
}

// NewBuffer allocates a zeroed buffer with the given shape.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	b := &Buffer{SampleRate: sampleRate, Samples: make([][]float32, channels)}
	for ch := range b.Samples {
		b.Samples[ch] = make([]float32, frames)
	}
	return b
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int { return len(b.Samples) }

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Duration returns the playback length of the buffer at its sample rate.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Format returns the buffer's sample rate and channel count.
func (b *Buffer) Format() Format {
	return Format{SampleRate: b.SampleRate, Channels: b.NumChannels()}
}

// Blob is an encoded media payload ready for a realtime transport: base64
// data plus its MIME type.
type Blob struct {
	Data     string
	MIMEType string
}
