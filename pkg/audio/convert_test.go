package audio_test

import (
	"math"
	"testing"

	"github.com/pedrosoares/godot-whisper/pkg/audio"
)

func TestDownmixMono_Stereo(t *testing.T) {
	stereo := []float32{0.5, -0.5, 1.0, 0.0, -0.25, -0.75}
	got := audio.DownmixMono(stereo, 2)
	want := []float32{0, 0.5, -0.5}
	if len(got) != len(want) {
		t.Fatalf("length: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmixMono_MonoPassthrough(t *testing.T) {
	mono := []float32{0.1, 0.2, 0.3}
	got := audio.DownmixMono(mono, 1)
	if len(got) != 3 || got[0] != 0.1 {
		t.Fatalf("mono input must pass through unchanged, got %v", got)
	}
}

func TestResampleFloat32_SameRate(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := audio.ResampleFloat32(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length: got %d, want %d", len(out), len(in))
	}
}

func TestResampleFloat32_Downsample_Length(t *testing.T) {
	in := make([]float32, 480) // 10 ms at 48 kHz
	out := audio.ResampleFloat32(in, 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("length: got %d, want 160", len(out))
	}
}

func TestResampleFloat32_Upsample_PreservesShape(t *testing.T) {
	// A slow sine should survive 2x upsampling with small error.
	const srcRate, dstRate = 8000, 16000
	in := make([]float32, 200)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 100 * float64(i) / srcRate))
	}
	out := audio.ResampleFloat32(in, srcRate, dstRate)
	if len(out) != 400 {
		t.Fatalf("length: got %d, want 400", len(out))
	}
	for i := 0; i < len(out)-2; i++ {
		want := math.Sin(2 * math.Pi * 100 * float64(i) / dstRate)
		if diff := math.Abs(float64(out[i]) - want); diff > 0.05 {
			t.Fatalf("sample %d: got %v, want %v (diff %v)", i, out[i], want, diff)
		}
	}
}

func TestFloat32ToInt16_Clamps(t *testing.T) {
	in := []float32{1.5, -1.5, 0, 0.5}
	out := audio.Float32ToInt16(in)
	if out[0] != 32767 {
		t.Errorf("positive overflow: got %d, want 32767", out[0])
	}
	if out[1] != -32768 {
		t.Errorf("negative overflow: got %d, want -32768", out[1])
	}
	if out[2] != 0 {
		t.Errorf("zero: got %d", out[2])
	}
}

func TestInt16ToFloat32_RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.9}
	back := audio.Int16ToFloat32(audio.Float32ToInt16(in))
	for i := range in {
		if diff := math.Abs(float64(back[i] - in[i])); diff > 1.0/32768 {
			t.Errorf("sample %d: got %v, want %v", i, back[i], in[i])
		}
	}
}

func TestRMS(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("empty: got %v, want 0", got)
	}
	if got := audio.RMS([]float32{0, 0, 0}); got != 0 {
		t.Errorf("silence: got %v, want 0", got)
	}
	got := audio.RMS([]float32{0.5, -0.5, 0.5, -0.5})
	if math.Abs(got-0.5) > 1e-6 {
		t.Errorf("got %v, want 0.5", got)
	}
}
