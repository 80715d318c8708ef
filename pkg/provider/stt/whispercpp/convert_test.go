package whispercpp

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcmOf(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestNormalizeFormat(t *testing.T) {
	// 32 kHz stereo halves twice: resample drops every other frame, then the
	// downmix averages L+R. Constant samples survive the interpolation intact.
	stereo := pcmOf(
		1000, 3000, 1000, 3000, 1000, 3000, 1000, 3000,
		1000, 3000, 1000, 3000, 1000, 3000, 1000, 3000,
	)
	got, channels := normalizeFormat(stereo, 32000, 2)
	if channels != 1 {
		t.Fatalf("channels = %d, want 1", channels)
	}
	if len(got) != 8 {
		t.Fatalf("len = %d, want 8", len(got))
	}
	for i := 0; i < len(got); i += 2 {
		if s := int16(binary.LittleEndian.Uint16(got[i:])); s != 2000 {
			t.Errorf("sample %d = %d, want 2000", i/2, s)
		}
	}
}

func TestNormalizeFormat_Passthrough(t *testing.T) {
	mono := pcmOf(1, 2, 3, 4)
	got, channels := normalizeFormat(mono, 16000, 1)
	if channels != 1 || len(got) != len(mono) {
		t.Fatalf("got %d bytes %d channels, want %d bytes 1 channel",
			len(got), channels, len(mono))
	}

	// More than two channels is left for the float downmix.
	quad := pcmOf(1, 2, 3, 4, 5, 6, 7, 8)
	got, channels = normalizeFormat(quad, 48000, 4)
	if channels != 4 || len(got) != len(quad) {
		t.Fatalf("quad: got %d bytes %d channels, want untouched", len(got), channels)
	}
}

func TestPCMToFloat32(t *testing.T) {
	got := pcmToFloat32(pcmOf(0, 16384, -16384, 32767, -32768))
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	if len(got) != len(want) {
		t.Fatalf("length: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}

	// Trailing odd byte is dropped.
	if got := pcmToFloat32([]byte{0x00, 0x40, 0x7F}); len(got) != 1 {
		t.Errorf("odd input: got %d samples, want 1", len(got))
	}
}

func TestPCMToFloat32Mono_Downmix(t *testing.T) {
	// Two stereo frames: (16384, 0) and (-16384, -16384).
	stereo := pcmOf(16384, 0, -16384, -16384)
	got := pcmToFloat32Mono(stereo, 2)
	want := []float32{0.25, -0.5}
	if len(got) != len(want) {
		t.Fatalf("length: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("frame %d: got %f, want %f", i, got[i], want[i])
		}
	}
}
