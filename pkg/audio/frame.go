// Package audio defines the PCM frame type and sample-level utilities shared
// by the Voicewire client pipeline and the gateway.
//
// All PCM in this package is 16-bit signed little-endian. The capture side
// produces mono frames at [DefaultSampleRate]; the gateway converts whatever
// it receives to the format its STT provider expects.
package audio

import "time"

// Default capture parameters. The frame size is what one capture callback
// delivers; at 16 kHz mono a 4096-sample frame is 256 ms of audio.
const (
	// DefaultSampleRate is the capture and synthesis sample rate in Hz.
	DefaultSampleRate = 16000

	// DefaultFrameSamples is the number of samples per capture block.
	DefaultFrameSamples = 4096

	// DefaultGain is the fixed multiplier applied to captured float samples
	// before quantisation, compensating for quiet microphone input.
	DefaultGain = 1.5
)

// Frame is one fixed-size block of outbound PCM audio. Frames are the atomic
// unit of capture transport: encoded once per capture callback, handed to the
// transport session by ownership transfer, and never retained after send.
type Frame struct {
	// Data is little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz (16000 for the reference deployment).
	SampleRate int

	// Channels: 1 for mono capture, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame's PCM data.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
// A trailing odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
