package speaker

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/warroom/pkg/audio"
)

// voice is one buffer placed on the engine timeline.
type voice struct {
	samples [][]float32 // planar, already at the engine rate
	start   int64       // first frame on the timeline
	seq     uint64
	pos     int // next sample index within samples
	onEnded func()
	stopped atomic.Bool
}

func (v *voice) frames() int {
	if len(v.samples) == 0 {
		return 0
	}
	return len(v.samples[0])
}

// Stop implements [audio.Voice].
func (v *voice) Stop() { v.stopped.Store(true) }

// engine mixes scheduled voices into a float32 little-endian interleaved byte
// stream. Its clock is the number of frames handed to the device, so time
// only advances while the device pulls audio.
type engine struct {
	rate     int
	channels int

	mu       sync.Mutex
	frame    int64 // frames rendered so far
	seq      uint64
	upcoming voiceHeap
	active   []*voice
	closed   bool
}

func newEngine(format audio.Format) *engine {
	return &engine{rate: format.SampleRate, channels: format.Channels}
}

func (e *engine) now() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameToDuration(e.frame)
}

func (e *engine) frameToDuration(f int64) time.Duration {
	return time.Duration(f) * time.Second / time.Duration(e.rate)
}

func (e *engine) durationToFrame(d time.Duration) int64 {
	return int64(math.Round(d.Seconds() * float64(e.rate)))
}

// play places buf on the timeline at position at. Positions in the past are
// moved to the current frame.
func (e *engine) play(buf *audio.Buffer, at time.Duration, onEnded func()) (*voice, error) {
	if buf.NumChannels() == 0 {
		return nil, fmt.Errorf("speaker: play: buffer has no channels")
	}
	samples := buf.Samples
	if buf.SampleRate != e.rate {
		samples = make([][]float32, len(buf.Samples))
		for ch, data := range buf.Samples {
			samples[ch] = audio.Resample(data, buf.SampleRate, e.rate)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("speaker: play: output closed")
	}
	e.seq++
	v := &voice{
		samples: samples,
		start:   max(e.durationToFrame(at), e.frame),
		seq:     e.seq,
		onEnded: onEnded,
	}
	heap.Push(&e.upcoming, v)
	return v, nil
}

// Read renders len(p) bytes of mixed audio. It never blocks and never
// returns an error; silence fills gaps between voices. End notifications are
// dispatched after the engine lock is released.
func (e *engine) Read(p []byte) (int, error) {
	const bytesPerSample = 4
	frames := len(p) / (bytesPerSample * e.channels)

	var ended []func()

	e.mu.Lock()
	mix := make([]float32, e.channels)
	for i := range frames {
		f := e.frame + int64(i)
		for e.upcoming.Len() > 0 && e.upcoming[0].start <= f {
			v := heap.Pop(&e.upcoming).(*voice)
			if v.frames() == 0 {
				if v.onEnded != nil && !v.stopped.Load() {
					ended = append(ended, v.onEnded)
				}
				continue
			}
			e.active = append(e.active, v)
		}

		clear(mix)
		live := e.active[:0]
		for _, v := range e.active {
			if v.stopped.Load() {
				continue
			}
			for ch := range e.channels {
				mix[ch] += v.samples[ch%len(v.samples)][v.pos]
			}
			v.pos++
			if v.pos >= v.frames() {
				if v.onEnded != nil {
					ended = append(ended, v.onEnded)
				}
				continue
			}
			live = append(live, v)
		}
		clear(e.active[len(live):])
		e.active = live

		off := i * e.channels * bytesPerSample
		for ch, s := range mix {
			binary.LittleEndian.PutUint32(p[off+ch*bytesPerSample:], math.Float32bits(s))
		}
	}
	e.frame += int64(frames)
	e.mu.Unlock()

	// Zero any trailing partial frame.
	clear(p[frames*e.channels*bytesPerSample:])

	for _, cb := range ended {
		cb()
	}
	return len(p), nil
}

// stopAll drops every voice without firing end notifications.
func (e *engine) stopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range e.upcoming {
		v.Stop()
	}
	for _, v := range e.active {
		v.Stop()
	}
	e.upcoming = nil
	e.active = nil
}

func (e *engine) close() {
	e.stopAll()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}
