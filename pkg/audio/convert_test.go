package audio_test

import (
	"testing"
	"time"

	"github.com/voicewire/voicewire/pkg/audio"
)

func TestStereoToMono(t *testing.T) {
	stereo := audio.Int16sToBytes([]int16{100, 200, -100, -200})
	got := audio.BytesToInt16s(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	stereo := audio.Int16sToBytes([]int16{32767, 32767})
	got := audio.BytesToInt16s(audio.StereoToMono(stereo))
	if len(got) != 1 || got[0] != 32767 {
		t.Fatalf("got %v, want [32767]", got)
	}
}

func TestMonoToStereo(t *testing.T) {
	mono := audio.Int16sToBytes([]int16{7, -7})
	got := audio.BytesToInt16s(audio.MonoToStereo(mono))
	want := []int16{7, 7, -7, -7}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16_HalvesRate(t *testing.T) {
	src := audio.Int16sToBytes(make([]int16, 320)) // 20 ms at 16 kHz
	out := audio.ResampleMono16(src, 16000, 8000)
	if len(out) != 320 { // 160 samples * 2 bytes
		t.Fatalf("resampled length: got %d bytes, want 320", len(out))
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := audio.Int16sToBytes([]int16{1, 2, 3})
	out := audio.ResampleMono16(pcm, 16000, 16000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestFormatConverter_FastPath(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	frame := audio.Frame{
		Data:       audio.Int16sToBytes([]int16{1, 2, 3}),
		SampleRate: 16000,
		Channels:   1,
	}
	got := conv.Convert(frame)
	if &got.Data[0] != &frame.Data[0] {
		t.Error("matching format should return the frame unchanged")
	}
}

func TestFormatConverter_DownmixAndResample(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	// 10 ms of 48 kHz stereo.
	frame := audio.Frame{
		Data:       make([]byte, 480*4),
		SampleRate: 48000,
		Channels:   2,
		Timestamp:  time.Second,
	}
	got := conv.Convert(frame)
	if got.SampleRate != 16000 || got.Channels != 1 {
		t.Fatalf("format: got %d/%d, want 16000/1", got.SampleRate, got.Channels)
	}
	if len(got.Data) != 160*2 {
		t.Errorf("data length: got %d, want %d", len(got.Data), 160*2)
	}
	if got.Timestamp != time.Second {
		t.Errorf("timestamp not preserved: got %v", got.Timestamp)
	}
}

func TestFormatConverter_OddByteCount(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	got := conv.Convert(audio.Frame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
	if len(got.Data) != 0 {
		t.Errorf("corrupt frame should drop payload, got %d bytes", len(got.Data))
	}
}

func TestFrameDuration(t *testing.T) {
	f := audio.Frame{Data: make([]byte, 4096*2), SampleRate: 16000, Channels: 1}
	if got, want := f.Duration(), 256*time.Millisecond; got != want {
		t.Errorf("duration: got %v, want %v", got, want)
	}
}
