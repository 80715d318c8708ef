// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The gateway segments user speech itself with its voice-activity detector,
// so providers receive one complete utterance at a time: a buffer of raw PCM
// bytes in, a transcript string out. Implementations wrap either a hosted
// transcription API (e.g. the OpenAI or Groq Whisper endpoints) or a local
// whisper.cpp model.
//
// Implementations must be safe for concurrent use; the gateway transcribes
// utterances from many sessions in parallel.
package stt

import "context"

// Config describes the audio format and recognition hints for a
// transcription request.
type Config struct {
	// SampleRate is the PCM sample rate in Hz. Zero means 16000, the
	// gateway's capture rate.
	SampleRate int

	// Channels is the number of interleaved channels in the PCM data.
	// Zero or one means mono; providers downmix anything else.
	Channels int

	// Language is the ISO 639-1 language hint (e.g. "en", "de"). Empty lets
	// the provider auto-detect, if supported.
	Language string

	// Keywords is a list of vocabulary hints for uncommon words such as
	// tenant-specific product names. Providers without keyword support
	// ignore it; the transcript corrector covers the gap afterwards.
	Keywords []string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one utterance of 16-bit little-endian PCM into
	// text. The pcm buffer is complete: the voice-activity detector has
	// already decided where the utterance ends.
	//
	// An empty transcript with a nil error means the provider heard no
	// speech; callers skip the turn rather than treating it as a failure.
	Transcribe(ctx context.Context, pcm []byte, cfg Config) (string, error)
}
