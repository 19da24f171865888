package speaker

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/warroom/pkg/audio"
)

var monoFormat = audio.Format{SampleRate: 1000, Channels: 1}

// render pulls n frames from e and returns them as float32 samples.
func render(t *testing.T, e *engine, n int) []float32 {
	t.Helper()
	p := make([]byte, n*4*e.channels)
	if _, err := e.Read(p); err != nil {
		t.Fatalf("Read: %v", err)
	}
	out := make([]float32, n*e.channels)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return out
}

func constBuffer(rate, frames int, v float32) *audio.Buffer {
	b := audio.NewBuffer(rate, 1, frames)
	for i := range b.Samples[0] {
		b.Samples[0][i] = v
	}
	return b
}

func TestEngine_ClockAdvancesWithReads(t *testing.T) {
	t.Parallel()

	e := newEngine(monoFormat)
	if got := e.now(); got != 0 {
		t.Fatalf("now = %v, want 0", got)
	}
	render(t, e, 500)
	if got := e.now(); got != 500*time.Millisecond {
		t.Errorf("now = %v, want 500ms", got)
	}
}

func TestEngine_BackToBackIsGapless(t *testing.T) {
	t.Parallel()

	e := newEngine(monoFormat)
	if _, err := e.play(constBuffer(1000, 3, 0.5), 0, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.play(constBuffer(1000, 2, 0.25), 3*time.Millisecond, nil); err != nil {
		t.Fatal(err)
	}

	got := render(t, e, 6)
	want := []float32{0.5, 0.5, 0.5, 0.25, 0.25, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEngine_EndNotificationOnce(t *testing.T) {
	t.Parallel()

	e := newEngine(monoFormat)
	var ended atomic.Int32
	if _, err := e.play(constBuffer(1000, 4, 0.1), 0, func() { ended.Add(1) }); err != nil {
		t.Fatal(err)
	}

	render(t, e, 3)
	if got := ended.Load(); got != 0 {
		t.Fatalf("ended early: %d", got)
	}
	render(t, e, 1)
	if got := ended.Load(); got != 1 {
		t.Fatalf("ended = %d, want 1", got)
	}
	render(t, e, 10)
	if got := ended.Load(); got != 1 {
		t.Errorf("ended = %d after more reads, want 1", got)
	}
}

func TestEngine_PastPositionStartsNow(t *testing.T) {
	t.Parallel()

	e := newEngine(monoFormat)
	render(t, e, 10)

	v, err := e.play(constBuffer(1000, 1, 1), 2*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.start != 10 {
		t.Errorf("start = %d, want 10", v.start)
	}
	if got := render(t, e, 1); got[0] != 1 {
		t.Errorf("first frame = %v, want 1", got[0])
	}
}

func TestEngine_StopSilencesWithoutNotification(t *testing.T) {
	t.Parallel()

	e := newEngine(monoFormat)
	var ended atomic.Int32
	v, err := e.play(constBuffer(1000, 4, 0.5), 0, func() { ended.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	render(t, e, 1)
	v.Stop()

	got := render(t, e, 4)
	for i, s := range got {
		if s != 0 {
			t.Errorf("frame %d = %v after Stop, want 0", i, s)
		}
	}
	if ended.Load() != 0 {
		t.Error("stopped voice fired end notification")
	}
}

func TestEngine_MixesOverlap(t *testing.T) {
	t.Parallel()

	e := newEngine(monoFormat)
	_, _ = e.play(constBuffer(1000, 2, 0.25), 0, nil)
	_, _ = e.play(constBuffer(1000, 2, 0.5), time.Millisecond, nil)

	got := render(t, e, 3)
	want := []float32{0.25, 0.75, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEngine_MonoToStereo(t *testing.T) {
	t.Parallel()

	e := newEngine(audio.Format{SampleRate: 1000, Channels: 2})
	_, _ = e.play(constBuffer(1000, 1, 0.5), 0, nil)

	got := render(t, e, 1)
	if got[0] != 0.5 || got[1] != 0.5 {
		t.Errorf("frame = %v, want [0.5 0.5]", got)
	}
}

func TestEngine_ResamplesToEngineRate(t *testing.T) {
	t.Parallel()

	e := newEngine(monoFormat)
	v, err := e.play(constBuffer(2000, 4, 0.5), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := v.frames(); got != 2 {
		t.Errorf("frames = %d, want 2", got)
	}
}

func TestEngine_ZeroLengthBufferEnds(t *testing.T) {
	t.Parallel()

	e := newEngine(monoFormat)
	var ended atomic.Int32
	if _, err := e.play(audio.NewBuffer(1000, 1, 0), 0, func() { ended.Add(1) }); err != nil {
		t.Fatal(err)
	}
	render(t, e, 1)
	if got := ended.Load(); got != 1 {
		t.Errorf("ended = %d, want 1", got)
	}
}

func TestEngine_CloseRejectsPlay(t *testing.T) {
	t.Parallel()

	e := newEngine(monoFormat)
	e.close()
	if _, err := e.play(constBuffer(1000, 1, 0.1), 0, nil); err == nil {
		t.Error("expected error after close")
	}
}
