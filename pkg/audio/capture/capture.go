// Package capture turns an [audio.InputStream] into a sequence of fixed-size
// mono frames at a target sample rate, and tracks the RMS volume of the most
// recent frame.
package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/warroom/pkg/audio"
)

// DefaultFrameSize is the number of samples per frame delivered to the frame
// callback.
const DefaultFrameSize = 4096

// Config controls a capture pipeline.
type Config struct {
	// SampleRate is the rate of delivered frames. Defaults to
	// [audio.CaptureRate].
	SampleRate int

	// FrameSize is the number of samples per frame. Defaults to
	// [DefaultFrameSize].
	FrameSize int

	// OnLevel, if set, is called after every frame with its volume level
	// (RMS × 100).
	OnLevel func(level float64)
}

// Handle controls a running capture pipeline.
type Handle struct {
	stream  audio.InputStream
	onFrame func([]float32)
	onLevel func(float64)
	conv    audio.Converter
	size    int

	level    atomic.Uint64 // math.Float64bits of the last level
	stopOnce sync.Once
	stopped  atomic.Bool
	done     chan struct{}
	err      error
}

// Start begins pulling audio from stream on a new goroutine. Each complete
// frame is passed to onFrame in capture order, one at a time. onFrame must
// not retain the slice after returning.
func Start(stream audio.InputStream, cfg Config, onFrame func([]float32)) *Handle {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.CaptureRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	h := &Handle{
		stream:  stream,
		onFrame: onFrame,
		onLevel: cfg.OnLevel,
		conv:    audio.Converter{TargetRate: cfg.SampleRate},
		size:    cfg.FrameSize,
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Handle) run() {
	defer close(h.done)

	format := h.stream.Format()
	frame := make([]float32, 0, h.size)
	for {
		chunk, err := h.stream.Read()
		if err != nil {
			if h.stopped.Load() {
				return
			}
			// The stream only ends cleanly after Stop. An EOF before that
			// means the device went away.
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: %w", io.ErrUnexpectedEOF, err)
			}
			slog.Warn("capture: read failed", "err", err)
			h.err = err
			return
		}
		if h.stopped.Load() {
			return
		}

		mono := h.conv.Convert(chunk, format)
		for len(mono) > 0 {
			n := min(h.size-len(frame), len(mono))
			frame = append(frame, mono[:n]...)
			mono = mono[n:]
			if len(frame) == h.size {
				h.emit(frame)
				frame = frame[:0]
			}
		}
	}
}

func (h *Handle) emit(frame []float32) {
	lvl := audio.Level(frame)
	h.level.Store(math.Float64bits(lvl))
	if h.onLevel != nil {
		h.onLevel(lvl)
	}
	if h.onFrame != nil && !h.stopped.Load() {
		h.onFrame(frame)
	}
}

// Level returns the volume of the most recent frame (RMS × 100), or 0 before
// the first frame and after Stop.
func (h *Handle) Level() float64 {
	return math.Float64frombits(h.level.Load())
}

// Done is closed when the capture goroutine exits, either after Stop or
// because the stream ended.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the read error that ended capture, if any. A stream that ends
// before Stop reports an error wrapping [io.ErrUnexpectedEOF]. Only
// meaningful after Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

// Stop halts frame delivery, closes the stream and waits for the capture
// goroutine to exit. Safe to call more than once. Must not be called from
// within onFrame.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		if err := h.stream.Close(); err != nil {
			slog.Debug("capture: close stream", "err", err)
		}
		<-h.done
		h.level.Store(0)
	})
}
