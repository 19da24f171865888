package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/warroom/pkg/audio"
)

func approxEqual(a, b, eps float32) bool {
	return float32(math.Abs(float64(a-b))) <= eps
}

func TestDownmix_Stereo(t *testing.T) {
	t.Parallel()

	// Two stereo frames: L=0.2,R=0.4 and L=-0.2,R=-0.4
	got := audio.Downmix([]float32{0.2, 0.4, -0.2, -0.4}, 2)
	want := []float32{0.3, -0.3}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i], 1e-6) {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmix_DropsPartialFrame(t *testing.T) {
	t.Parallel()

	got := audio.Downmix([]float32{0.5, 0.5, 0.1}, 2)
	if len(got) != 1 {
		t.Fatalf("length: got %d, want 1", len(got))
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, 0.2}
	got := audio.Downmix(in, 1)
	if &got[0] != &in[0] {
		t.Error("mono input should be returned unchanged")
	}
}

func TestResample_SameRate(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, 0.2, 0.3}
	out := audio.Resample(in, 48000, 48000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
}

func TestResample_Downsample(t *testing.T) {
	t.Parallel()

	in := make([]float32, 480)
	for i := range in {
		in[i] = 0.25
	}
	out := audio.Resample(in, 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("length: got %d, want 160", len(out))
	}
	for i, s := range out {
		if !approxEqual(s, 0.25, 1e-6) {
			t.Fatalf("sample %d: got %v, want 0.25", i, s)
		}
	}
}

func TestResample_Interpolates(t *testing.T) {
	t.Parallel()

	out := audio.Resample([]float32{0, 1}, 1, 2)
	want := []float32{0, 0.5, 1, 1}
	if len(out) != len(want) {
		t.Fatalf("length: got %d, want %d", len(out), len(want))
	}
	for i := range want {
		if !approxEqual(out[i], want[i], 1e-6) {
			t.Errorf("sample %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestResample_InvalidRates(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, 0.2}
	if got := audio.Resample(in, 0, 16000); len(got) != len(in) {
		t.Errorf("zero src rate: got %d samples, want passthrough", len(got))
	}
	if got := audio.Resample(in, 16000, -1); len(got) != len(in) {
		t.Errorf("negative dst rate: got %d samples, want passthrough", len(got))
	}
}

func TestConverter_Passthrough(t *testing.T) {
	t.Parallel()

	c := audio.Converter{TargetRate: 16000}
	in := []float32{0.1, 0.2, 0.3}
	out := c.Convert(in, audio.Format{SampleRate: 16000, Channels: 1})
	if &out[0] != &in[0] {
		t.Error("matching format should return the input slice")
	}
}

func TestConverter_StereoAt48k(t *testing.T) {
	t.Parallel()

	c := audio.Converter{TargetRate: 16000}
	in := make([]float32, 960) // 480 stereo frames at 48 kHz = 10 ms
	out := c.Convert(in, audio.Format{SampleRate: 48000, Channels: 2})
	if len(out) != 160 {
		t.Fatalf("length: got %d, want 160", len(out))
	}
}

func TestConverter_ChunkedMatchesWhole(t *testing.T) {
	t.Parallel()

	// One second of a 44.1 kHz ramp, delivered in 512-sample chunks.
	const n = 44100
	in := make([]float32, n)
	for i := range in {
		in[i] = float32(i) / n
	}
	from := audio.Format{SampleRate: 44100, Channels: 1}

	c := audio.Converter{TargetRate: 16000}
	var got []float32
	for start := 0; start < n; start += 512 {
		got = append(got, c.Convert(in[start:min(start+512, n)], from)...)
	}

	// Truncating per chunk would lose ~0.76 samples at each of the 87
	// boundaries.
	if len(got) < 15999 || len(got) > 16000 {
		t.Fatalf("length: got %d, want 16000 (±1)", len(got))
	}
	// The ramp must stay linear across chunk boundaries.
	step := float32(44100.0/16000.0) / n
	for i := 1; i < len(got); i++ {
		if d := got[i] - got[i-1]; !approxEqual(d, step, 1e-6) {
			t.Fatalf("sample %d: step %v, want %v", i, d, step)
		}
	}
}

func TestConverter_RateChangeResets(t *testing.T) {
	t.Parallel()

	c := audio.Converter{TargetRate: 16000}
	c.Convert(make([]float32, 100), audio.Format{SampleRate: 44100, Channels: 1})

	in := make([]float32, 480)
	for i := range in {
		in[i] = 0.25
	}
	out := c.Convert(in, audio.Format{SampleRate: 48000, Channels: 1})
	if len(out) != 160 {
		t.Fatalf("length: got %d, want 160", len(out))
	}
	if !approxEqual(out[0], 0.25, 1e-6) {
		t.Errorf("first sample after rate change = %v, want 0.25", out[0])
	}
}

func TestInterleave(t *testing.T) {
	t.Parallel()

	b := &audio.Buffer{SampleRate: 24000, Samples: [][]float32{{1, 2}, {3, 4}}}
	got := audio.Interleave(b)
	want := []float32{1, 3, 2, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBuffer_Duration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		buf    *audio.Buffer
		wantMs int64
	}{
		{"one second", audio.NewBuffer(24000, 1, 24000), 1000},
		{"half second", audio.NewBuffer(24000, 1, 12000), 500},
		{"stereo frames", audio.NewBuffer(16000, 2, 1600), 100},
		{"empty", &audio.Buffer{SampleRate: 24000}, 0},
		{"zero rate", audio.NewBuffer(0, 1, 100), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.buf.Duration().Milliseconds(); got != tt.wantMs {
				t.Errorf("Duration = %dms, want %dms", got, tt.wantMs)
			}
		})
	}
}
