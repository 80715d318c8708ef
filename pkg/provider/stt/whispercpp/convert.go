package whispercpp

import (
	"encoding/binary"

	"github.com/voicewire/voicewire/pkg/audio"
)

// normalizeFormat brings captured PCM to the format the model expects: mono
// at 16 kHz. Channel counts above two pass through untouched; those are
// down-mixed during float conversion instead.
func normalizeFormat(pcm []byte, sampleRate, channels int) ([]byte, int) {
	if channels > 2 {
		return pcm, channels
	}
	conv := audio.FormatConverter{
		Target: audio.Format{SampleRate: modelSampleRate, Channels: 1},
	}
	frame := conv.Convert(audio.Frame{
		Data:       pcm,
		SampleRate: sampleRate,
		Channels:   channels,
	})
	return frame.Data, frame.Channels
}

// pcmToFloat32 converts 16-bit signed little-endian PCM to float32 samples
// normalised to [-1.0, 1.0]. A trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// pcmToFloat32Mono down-mixes interleaved multi-channel 16-bit PCM to mono
// float32 by averaging the channels of each frame.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
