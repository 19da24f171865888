// Package microphone implements [audio.InputDevice] for the host's default
// microphone using pion/mediadevices.
package microphone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/mediadevices"
	mdaudio "github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/mediadevices/pkg/wave"

	// Registers the malgo-backed microphone driver.
	_ "github.com/pion/mediadevices/pkg/driver/microphone"

	"github.com/MrWong99/warroom/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.InputDevice = (*Device)(nil)
	_ audio.InputStream = (*stream)(nil)
)

// Device opens the default microphone.
type Device struct {
	acquire func(audio.Format) (source, error)
}

// New returns a microphone Device.
func New() *Device { return &Device{acquire: acquireTrack} }

// source is an acquired track and a reader over its audio.
type source struct {
	track  io.Closer
	reader mdaudio.Reader
}

// Open requests the microphone with the given rate and channel count as
// constraints and primes the stream with one chunk so that the actual device
// format is known. Failures wrap [audio.ErrDeviceUnavailable]. Cancelling ctx
// abandons both the acquisition and the prime read.
func (d *Device) Open(ctx context.Context, want audio.Format) (audio.InputStream, error) {
	type result struct {
		s   *stream
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := d.open(ctx, want)
		ch <- result{s, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.s, nil
	case <-ctx.Done():
		// Release the device once acquisition eventually finishes.
		go func() {
			if r := <-ch; r.s != nil {
				_ = r.s.Close()
			}
		}()
		return nil, fmt.Errorf("microphone: open: %w", ctx.Err())
	}
}

func (d *Device) open(ctx context.Context, want audio.Format) (*stream, error) {
	src, err := d.acquire(want)
	if err != nil {
		return nil, fmt.Errorf("microphone: open: %w: %v", audio.ErrDeviceUnavailable, err)
	}
	s := &stream{track: src.track, reader: src.reader}

	// Closing the track unblocks a prime read that never gets audio.
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	first, err := s.readChunk()
	if !stop() {
		return nil, fmt.Errorf("microphone: open: %w", ctx.Err())
	}
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("microphone: prime: %w: %v", audio.ErrDeviceUnavailable, err)
	}
	s.primed = first
	return s, nil
}

func acquireTrack(want audio.Format) (source, error) {
	ms, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			if want.SampleRate > 0 {
				c.SampleRate = prop.Int(want.SampleRate)
			}
			if want.Channels > 0 {
				c.ChannelCount = prop.Int(want.Channels)
			}
		},
	})
	if err != nil {
		return source{}, err
	}
	tracks := ms.GetAudioTracks()
	if len(tracks) == 0 {
		return source{}, errors.New("no audio track in stream")
	}
	at, ok := tracks[0].(*mediadevices.AudioTrack)
	if !ok {
		for _, t := range tracks {
			_ = t.Close()
		}
		return source{}, fmt.Errorf("unexpected track type %T", tracks[0])
	}
	return source{track: at, reader: at.NewReader(false)}, nil
}

// ── stream ────────────────────────────────────────────────────────────────────

type chunk struct {
	samples []float32
	format  audio.Format
}

type stream struct {
	track  io.Closer
	reader mdaudio.Reader
	primed *chunk

	mu     sync.Mutex
	format audio.Format
	closed bool
}

func (s *stream) readChunk() (*chunk, error) {
	w, release, err := s.reader.Read()
	if err != nil {
		return nil, err
	}
	defer release()

	samples, err := toFloat32(w)
	if err != nil {
		return nil, err
	}
	info := w.ChunkInfo()
	c := &chunk{
		samples: samples,
		format:  audio.Format{SampleRate: info.SamplingRate, Channels: info.Channels},
	}
	s.mu.Lock()
	s.format = c.format
	s.mu.Unlock()
	return c, nil
}

// Format implements [audio.InputStream].
func (s *stream) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Read implements [audio.InputStream].
func (s *stream) Read() ([]float32, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, io.EOF
	}
	if p := s.primed; p != nil {
		s.primed = nil
		s.mu.Unlock()
		return p.samples, nil
	}
	s.mu.Unlock()

	c, err := s.readChunk()
	if err != nil {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("microphone: read: %w", err)
	}
	return c.samples, nil
}

// Close implements [audio.InputStream].
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.track.Close()
}

// toFloat32 flattens a driver chunk into interleaved float32 samples.
func toFloat32(w wave.Audio) ([]float32, error) {
	switch c := w.(type) {
	case *wave.Float32Interleaved:
		out := make([]float32, len(c.Data))
		copy(out, c.Data)
		return out, nil
	case *wave.Int16Interleaved:
		out := make([]float32, len(c.Data))
		for i, v := range c.Data {
			out[i] = float32(v) / 32768
		}
		return out, nil
	case *wave.Float32NonInterleaved:
		return interleave(c.Data, func(v float32) float32 { return v }), nil
	case *wave.Int16NonInterleaved:
		return interleave(c.Data, func(v int16) float32 { return float32(v) / 32768 }), nil
	default:
		return nil, fmt.Errorf("unsupported sample format %T", w)
	}
}

func interleave[T any](planar [][]T, conv func(T) float32) []float32 {
	if len(planar) == 0 {
		return nil
	}
	channels, frames := len(planar), len(planar[0])
	out := make([]float32, frames*channels)
	for ch, data := range planar {
		for i, v := range data {
			out[i*channels+ch] = conv(v)
		}
	}
	return out
}
