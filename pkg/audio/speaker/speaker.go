// Package speaker implements [audio.OutputDevice] on the host's default audio
// output using ebitengine/oto.
//
// Each opened [Output] owns an oto player fed by a mixing engine. Buffers are
// placed on the engine timeline at exact frame positions, so back-to-back
// buffers play without gaps, and end notifications fire from the render path
// once a buffer's last frame has been handed to the device.
package speaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/warroom/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.OutputDevice  = (*Device)(nil)
	_ audio.OutputContext = (*Output)(nil)
	_ audio.Voice         = (*voice)(nil)
)

const defaultBufferSize = 100 * time.Millisecond

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Device.
type Option func(*Device)

// WithBufferSize sets the device buffer length. Smaller values lower latency
// at the risk of underruns.
func WithBufferSize(d time.Duration) Option {
	return func(dev *Device) { dev.bufferSize = d }
}

// ── Device ─────────────────────────────────────────────────────────────────────

// Device opens playback outputs on the default audio device.
//
// oto permits a single context per process, so the Device creates it on the
// first Open and reuses it afterwards; all outputs of a Device must share one
// format.
type Device struct {
	bufferSize time.Duration

	mu     sync.Mutex
	otoCtx *oto.Context
	format audio.Format
}

// New creates a speaker Device.
func New(opts ...Option) *Device {
	d := &Device{bufferSize: defaultBufferSize}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Open implements [audio.OutputDevice].
func (d *Device) Open(ctx context.Context, format audio.Format) (audio.OutputContext, error) {
	otoCtx, err := d.context(ctx, format)
	if err != nil {
		return nil, err
	}

	eng := newEngine(format)
	player := otoCtx.NewPlayer(eng)
	player.Play()
	return &Output{engine: eng, player: player}, nil
}

func (d *Device) context(ctx context.Context, format audio.Format) (*oto.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.otoCtx != nil {
		if d.format != format {
			return nil, fmt.Errorf("speaker: open %s: %w: device already running at %s",
				format, audio.ErrDeviceUnavailable, d.format)
		}
		return d.otoCtx, nil
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   d.bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("speaker: open: %w: %v", audio.ErrDeviceUnavailable, err)
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("speaker: open: %w", ctx.Err())
	}
	d.otoCtx = otoCtx
	d.format = format
	return otoCtx, nil
}

// ── Output ─────────────────────────────────────────────────────────────────────

// Output is an open playback timeline backed by an oto player.
type Output struct {
	engine *engine
	player *oto.Player

	closeOnce sync.Once
	closeErr  error
}

// Now implements [audio.OutputContext]. The clock is the amount of audio
// handed to the device so far.
func (o *Output) Now() time.Duration { return o.engine.now() }

// Play implements [audio.OutputContext].
func (o *Output) Play(buf *audio.Buffer, at time.Duration, onEnded func()) (audio.Voice, error) {
	v, err := o.engine.play(buf, at, onEnded)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Close implements [audio.OutputContext]. Pending voices are dropped without
// end notifications.
func (o *Output) Close() error {
	o.closeOnce.Do(func() {
		o.engine.close()
		o.closeErr = o.player.Close()
	})
	return o.closeErr
}
